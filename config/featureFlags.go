package config

import (
	"os"
	"strings"
)

// ForceCoarseRollback disables savepoint-based scopes even when the store
// supports them, falling back to full-transaction rollback per failure.
// Useful against MySQL-compatible stores whose savepoint implementation
// misbehaves under long transactions.
//
// Set via env:
// - MIGRATION_FORCE_COARSE_ROLLBACK=true
func ForceCoarseRollback() bool {
	return envBool("MIGRATION_FORCE_COARSE_ROLLBACK")
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
