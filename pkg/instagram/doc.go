// Package instagram provides the per-account client for Instagram's
// private API.
//
// The Client interface is the only surface the rest of the hub sees: login,
// session blob serialization, an account-info probe, bounded reads of direct
// threads, messages, own media and comments, message sending, and logout.
// APIClient is the HTTP implementation; FakeClient is an in-memory scripted
// implementation used by the session manager and monitor tests.
//
// Failures are classified into the typed taxonomy of ighub/pkg/errors so
// callers can tell credential problems (terminal) from transient remote
// errors (retried, or survived by the polling loop).
package instagram
