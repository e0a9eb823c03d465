// Package pending holds the local queue of certificate submissions that have
// been pinned but not yet committed to the certificate contract.
//
// A Store owns the in-memory record set and rewrites the whole set through its
// Persister after every mutation. Persistence failures are logged and
// swallowed: the in-memory set stays authoritative for the life of the process.
//
// Persister implementations:
//   - MemoryPersister: in-process, for tests.
//   - FilePersister: one JSON file per slot.
//   - SQLitePersister: a row per slot in an embedded SQLite database.
//   - PostgresPersister: a row per slot in PostgreSQL, shared by replicas.
package pending
