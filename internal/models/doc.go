// Package models defines the records the imgx client keeps about its user.
//
//   - [User] : the signed-in user with their [Membership], stored as a single JSON record
//   - [HistoryEntry] : one processed file, persisted with ID, sequence and soft delete
//
// [HistoryEntry] implements [Model] and is stored through a [Repository].
package models
