// Package api exposes the task runner and the credential pool over HTTP.
// Handlers translate requests into runner and pool calls and map the
// resulting errors onto status codes without leaking internal detail.
package api
