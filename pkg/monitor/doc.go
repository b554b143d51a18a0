// Package monitor polls monitored accounts for new direct messages and
// comments.
//
// One goroutine runs per account. Each cycle fetches a small bounded window
// of recent threads and comments, skips items authored by the account
// itself, and forwards anything strictly newer than the account's checkpoint
// to the event sink. The checkpoint advances to "now" at the end of each
// cycle, so an item stamped exactly at the boundary can be missed or seen
// twice; deduplication beyond timestamps is out of scope.
//
// The loops pace themselves with explicit inter-check and inter-cycle
// delays instead of a shared limiter: accounts run fully in parallel and
// only the remote side's rate limits bound them.
package monitor
