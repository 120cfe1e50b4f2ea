// Package server hosts the Fiber HTTP service that exposes cache entries as
// /<scope>/<arena>/<key> resources. GET reads under the arena read lock, PUT
// replaces atomically under the write lock and DELETE removes. Lock timeouts
// surface as 503 so callers can fall back to recomputing the content; misses
// surface as 404. Diagnostics live under /-/ (see the routes subpackage).
package server
