/*
Package testutil provides fixtures for lay tests.

A TestIdentity owns a key pair and a counter that hands out strictly
increasing timestamps, so consecutive queries from the same identity never
trip the relay's replay check:

	alice := testutil.NewTestIdentity()
	post := alice.Post("hello")
	req := alice.PostRequest()

Options pin envelope fields when a test needs exact values:

	replay := alice.PostRequest(testutil.WithTimestamp(req.Timestamp))
	tagged := alice.Post("hi", testutil.WithMetadata(protocol.Metadata{"lang": "en"}))

Corrupt flips a signature byte to produce an envelope that fails verification.
*/
package testutil
