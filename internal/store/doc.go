// Package store provides SQLite-backed durable storage for Satchel.
//
// The store owns every persisted entity: bags, recipes, the append-only
// tiddler revision log, attachments, users, roles, ACL rows, and sessions.
//
// ARCHITECTURE:
//
// Append-Only Revision Log:
// Tiddler mutations never update rows in place. Every save or delete
// inserts a new row into the revisions table with a freshly allocated
// store-wide revision id; a delete inserts a tombstone row. The current
// state of a (bag, title) pair is its highest-id row. This makes
// cursor-based delta queries ("everything after id N") exact and cheap.
//
// Revision Id Allocation:
// The next revision id is computed as MAX(revision_id)+1 inside the same
// transaction as the row insert. No id is ever allocated without a
// committed row, and no two writers can observe the same next id: the
// connection pool is limited to a single connection, so write
// transactions serialize. Commit order therefore equals id order.
//
// Single-Writer SQLite:
// WAL mode with SetMaxOpenConns(1) avoids SQLITE_BUSY while keeping
// reads concurrent with the WAL. The busy timeout covers the rare lock
// contention from external processes.
//
// Error taxonomy: store methods return model.NotFoundError,
// model.ConflictError, and model.ValidationError for domain failures,
// and wrapped raw errors for unexpected SQLite failures.
package store
