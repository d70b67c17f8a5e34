// Package cache provides expiring byte-value stores.
//
// MemoryCache is a bounded in-process LRU. RedisCache shares entries across
// processes. Keys derived with HashKeyer keep caller-chosen identifiers out
// of the backend, and Policy clamps entry lifetimes.
package cache
