// Package domain contains the core entities of the generation relay: tenants,
// the credentials they lease to vendor sessions, and the generation tasks
// that move through a fixed state machine. It is independent of storage and
// transport.
package domain
