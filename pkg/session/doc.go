// Package session manages authenticated Instagram clients across accounts.
//
// The Manager keeps an in-memory registry mapping usernames to client
// handles, restores sessions from the store at startup, and maps remote
// login failures to caller-facing results. Memory is authoritative: a login
// that succeeds remotely is reported successful even when persisting the
// session fails.
package session
