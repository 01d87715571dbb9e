package logging

import (
	"log/slog"
)

// WithTxn creates a logger with transaction context.
// Use this to automatically include the transaction id in all logs.
//
// Example:
//
//	log := logging.WithTxn(int32(txn.ID()))
//	log.Info("acquiring exclusive lock", "rid", rid)
func WithTxn(txnID int32) *slog.Logger {
	return GetLogger().With("txn_id", txnID)
}

// WithPage creates a logger with page context.
// Useful for buffer pool, directory, and B+ tree operations.
//
// Example:
//
//	log := logging.WithPage(int32(pageID))
//	log.Debug("page pinned", "dirty", isDirty)
func WithPage(pageID int32) *slog.Logger {
	return GetLogger().With("page_id", pageID)
}

// WithLSN creates a logger with log-sequence-number context.
// Useful for the log manager and recovery.
func WithLSN(lsn int32) *slog.Logger {
	return GetLogger().With("lsn", lsn)
}

// WithComponent creates a logger with component/subsystem context.
//
// Example:
//
//	log := logging.WithComponent("lock_manager")
//	log.Info("component initialized")
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithError creates a logger with error context.
// Use this when logging errors to include the error in structured format.
//
// Example:
//
//	log := logging.WithError(err)
//	log.Error("operation failed", "operation", "insert")
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}
