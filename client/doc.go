// Package client implements a lay sync client.
//
// A client runs two roles linked by bounded channels. The Poller owns the
// network: it queries the relay for posts on every tick, submits posts and
// profiles, and resolves author profiles on request. The Session owns the
// View, the local copy of what has been seen, and turns input lines into
// commands:
//
//	text          post text on the current channel
//	/name <name>  publish a profile
//	/up [n]       scroll up
//	/down [n]     scroll down
//	/bottom       follow the newest message again
//	/quit, /exit  stop
//
// Authors are displayed as "Guest" until their profile is fetched. Posts and
// profiles that fail verification are kept and shown with UnverifiedMark.
package client
