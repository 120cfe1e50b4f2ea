// Package lock implements directory-based reader/writer locks that work across
// goroutines and across processes sharing one filesystem. A lock identity is a
// directory; the exclusive section is the atomic creation of a "write_lock"
// subdirectory and every active reader registers a "read_lock_<uuid>"
// subdirectory. Entries older than the configured maximum hold duration are
// treated as abandoned and removed by the next contender.
//
// Waiting contenders poll with exponential backoff bounded by the acquire
// timeout. There is no FIFO ordering; once a writer owns the exclusive section
// no new reader can register until the writer releases it.
package lock
