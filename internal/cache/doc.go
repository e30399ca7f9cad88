// Package cache implements the TTL disk-backed memoization store. Each named
// store owns the directory <root>/__caches__/<name>; entries are files named by
// the millisecond timestamp of their write and hold the codec-encoded value.
// Only the newest entry is ever considered for freshness, and every write
// prunes superseded entries so a store settles on a single slot.
//
// Writers coordinate through an in-process mutex keyed by store directory and
// a .lock file created exclusively inside the store directory. Readers never
// wait on the lock. Stale lockfiles left behind by crashed writers are
// force-removed after StaleLockAge, and waiters give up after LockTimeout.
//
// All filesystem access goes through the Storage interface (afero-backed), so
// tests swap in an in-memory filesystem without touching real storage.
package cache
