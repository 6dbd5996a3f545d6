// Package model defines shared data types used across offerwatch.
//
// Conventions:
//   - Offer IDs: opaque decimal strings as issued by the remote service
//   - Timestamps: time.Time in UTC, zero when the service did not report one
//   - States: OfferState, numbered the way the remote service numbers them
package model
