// Package cache provides a TTL read cache with in-flight request
// coalescing for idempotent backend reads.
//
// Concurrent Fetch calls for the same key share a single loader
// invocation: the first caller runs the loader, later callers wait on its
// completion. Loader failures are never cached, so the next Fetch retries.
// Mutations invalidate by key prefix ("listings" drops "listings:active",
// "listings:mine", ...), leaving other prefixes untouched.
package cache
