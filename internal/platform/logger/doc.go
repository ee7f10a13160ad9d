// Package logger provides structured logging functionality for the application.
//
// It configures a log/slog JSON handler at the configured level and carries
// request-scoped loggers through context.Context so that trace ids and other
// per-request fields follow a call into the store and client layers.
package logger
