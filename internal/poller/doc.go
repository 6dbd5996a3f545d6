// Package poller implements the offer polling and notification coordinator.
//
// The Poller:
//   - Registers "tell me when offer X leaves state S" subscriptions
//   - Performs at most one bulk fetch per account per tick, shared by every
//     subscription on that account
//   - Fails a subscription on deadline, cancellation or a vanished offer,
//     whichever happens first
//   - Sleeps when nothing is pending and wakes on the next Subscribe
//
// The LongPoller keeps accounts polled indefinitely and publishes an event
// for every offer it has not announced before.
package poller
