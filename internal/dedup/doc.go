// Package dedup tracks which offers have already been announced.
//
// MemorySet lives for the process and is never pruned. RedisSet moves the
// same data out of process, keyed per coordinator instance, with an optional
// TTL for long-lived deployments.
package dedup
