// Package postgres provides PostgreSQL implementations of the store
// interfaces. The scan task table carries a partial unique index on
// (owner_id, target_id) over non-terminal rows, which gives admission
// control its atomic insert-if-absent without any external locking.
package postgres
