// Package admin is the administrative client for Kinetic devices.
//
// Every AdminClient method builds one operation and hands it to Dispatch,
// optionally behind precondition guards that check the session PIN and the
// transport security of the connection. Dispatch never lets a failure
// escape: build, exchange, status and parse errors (and panics) all go
// through the operation's OnError.
package admin
