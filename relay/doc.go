// Package relay implements the lay relay: it accepts signed posts and profiles,
// and answers signed queries for them.
//
// Every operation verifies the envelope signature first. Post queries are
// additionally checked against a per-key ledger of the last accepted request
// timestamp; a request whose timestamp is not strictly greater is rejected with
// ReplayedTimestamp. Profile queries are not subject to the ledger.
//
// Handler maps the operations onto HTTP:
//
//	POST /text               submit a post
//	GET  /text               query posts (JSON body)
//	POST /text/query         query posts
//	POST /profile            submit a profile
//	GET  /profile            query a profile (JSON body)
//	POST /profile/query      query a profile
//
// Failures are returned as protocol.Error bodies with status 400, or 503 when
// the store is unavailable.
package relay
