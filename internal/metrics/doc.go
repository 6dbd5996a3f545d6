// Package metrics aggregates component counters into one JSON snapshot.
//
// Components register a Source that returns their current stats struct; the
// registry serves the combined view on /debug/stats. Sources:
//   - poller: pending subscriptions, fetches, resolutions, timeouts
//   - longpoll: watched accounts, announced offers
//   - observers: per-observer queue depth and drops
//   - journal, relay, stream: delivery counters
package metrics
