// Package cache implements named, versioned blobs keyed by (scope, arena, key)
// on the local filesystem. An arena resolves to a directory under
// <CacheDir>/<SiteID>/<arena> (wiki scope), <CacheDir>/__common__/<arena>
// (farm scope) or an item's private cache directory (item scope). Each key is
// one file in that directory.
//
// Writes stage the full content in a uniquely named file inside the arena
// directory and then rename it over the target, so readers only ever observe
// the complete old or the complete new content. Reads, writes and removals are
// guarded by a reader/writer lock whose identity is the arena's __lock__
// directory: all keys of one arena share a single lock, which serialises
// writers to different keys of the same arena.
//
// Staleness is derived from modification times only: an entry needs updating
// when it is missing, older than its source file, or older than an optional
// dependency directory.
package cache
