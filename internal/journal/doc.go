// Package journal persists new-offer announcements to PostgreSQL.
//
// The writer batches events from a notify observer and inserts them with
// ON CONFLICT DO NOTHING, so replays after a restart are harmless.
package journal
