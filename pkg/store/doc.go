// Package store persists account sessions and activity events.
//
// SessionStore keeps one record per username holding the opaque credential
// blob produced by the Instagram client, an active flag, and timestamps.
// Inactive records are retained for audit and never restored automatically.
// Two durable implementations exist: FileStore (plain JSON, atomic writes)
// and EncryptedFileStore (PBKDF2-derived key, AES-GCM at rest). The memory
// implementations serve tests and the hub's degraded memory-only mode.
//
// EventStore is the durable log of detected activity; EventLog is the
// file-backed implementation.
package store
