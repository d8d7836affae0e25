// Package lease manages each tenant's finite pool of vendor credentials.
//
// A credential is handed to at most one task at a time. Leasing is a single
// store operation that both marks the credential leased and records it on
// the task, so a leased credential is always attributable to the task that
// holds it. Callers hold the result as a *Lease and settle it exactly once:
// Release returns the credential to the pool, Retain keeps it leased.
package lease
