// Package auth verifies operator tokens for administrative commands.
//
// Operators present a signed JWT carrying their subject, roles and scopes.
// Verified claims travel on the context so the audit trail can attribute
// each device command, and so callers can check a command's scope before
// it is sent.
package auth
