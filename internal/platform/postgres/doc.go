// Package postgres implements the store interfaces on PostgreSQL through
// database/sql and the pgx driver. Credential leasing relies on
// SELECT ... FOR UPDATE SKIP LOCKED, and task status writes are conditional
// updates, so concurrent workers coordinate only through the database.
//
// Schema migrations are embedded and applied with goose.
package postgres
