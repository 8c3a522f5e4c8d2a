// Package cache provides a write-expiry key/value cache with an eviction
// hook.
//
// Entries expire a fixed duration after insertion (write-time, not
// access-time). Expiry is enforced lazily on read and physically by a
// background sweeper; regardless of which path removes an entry, the
// configured eviction hook fires exactly once per removal and receives the
// removal cause. geostream uses the hook to keep the spatial index
// consistent with the cache.
package cache
