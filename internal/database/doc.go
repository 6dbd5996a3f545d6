// Package database provides the PostgreSQL connection pool and schema used by
// the offer journal.
//
// The journal is append-only: one row per (account_key, offer_id) the first
// time the long poller announces the offer.
package database
