// Package store defines the persistence contracts of the relay: tenants,
// their credential pools and generation tasks. Implementations must make
// credential leasing and task status changes atomic, because cross-worker
// coordination happens only through the store.
package store
