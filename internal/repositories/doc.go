// Package repositories implements SQLite (and Redis) persistence for the client.
//
// Most client state is a handful of keys in one table, mirroring what a browser keeps
// in local storage:
//   - [StateRepository] : the key/value table itself
//   - [SessionRepository] : auth_token and auth_user, implementing session.Store
//   - [UserRepository] : the full user record with membership
//
// Idempotency guards for authorization exchanges:
//   - [GuardRepository] : SQLite, INSERT OR IGNORE on the dedupe key
//   - [RedisGuard] : SETNX with TTL, for guards shared across machines
//
// [HistoryRepository] stores processed files with sequence numbers and soft deletes.
// [NextSequence] bumps the single-row counter that orders history entries.
package repositories
