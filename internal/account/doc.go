// Package account holds the configured bot accounts.
//
// Each account gets its own Web API client and offer source. The registry
// refreshes per-account offer summaries in the background, which doubles as
// a credential check and feeds /debug/accounts.
package account
