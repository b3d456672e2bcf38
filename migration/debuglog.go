package migration

import (
	"fmt"
	"time"
)

// DebugLog is the append-only per-run trace the caller can retrieve for
// diagnostics. It is deliberately in-memory, not transactional: entries
// written during a rolled-back scope survive the rollback, which is exactly
// what makes it useful for post-mortems.
type DebugLog struct {
	entries []string
	now     func() time.Time
}

func NewDebugLog() *DebugLog {
	return &DebugLog{now: time.Now}
}

func (d *DebugLog) Logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.entries = append(d.entries, d.now().UTC().Format(time.RFC3339)+" "+msg)
}

// Entries returns a copy of the log in append order.
func (d *DebugLog) Entries() []string {
	out := make([]string, len(d.entries))
	copy(out, d.entries)
	return out
}

func (d *DebugLog) Len() int {
	return len(d.entries)
}
