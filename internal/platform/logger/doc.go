// Package logger provides structured logging functionality for the application.
//
// It configures a JSON log/slog logger from the server configuration and
// carries request or task scoped loggers through context.Context.
package logger
