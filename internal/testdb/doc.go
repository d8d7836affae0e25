//go:build integration

// Package testdb opens a migrated PostgreSQL database for integration tests.
// Tests are skipped unless GENRELAY_TEST_DATABASE_URL or DATABASE_URL is set.
package testdb
