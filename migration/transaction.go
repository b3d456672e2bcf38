package migration

import (
	"time"

	"github.com/nlvegan/boekhouden_migration/config"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ScopeRunner is the nested-transaction abstraction the engine is written
// against. Two implementations exist: BatchTransaction (savepoints inside a
// long-lived batch transaction, with coarse full-rollback as fallback when
// the store has no savepoint support) and SingleScope (one full transaction
// per operation). Resolver and allocator code never touches the concrete
// mechanism.
type ScopeRunner interface {
	// Current returns the transaction handle work inside a scope must use.
	Current() *gorm.DB
	// RunInScope executes fn atomically: on error every effect since scope
	// entry is undone and the error is returned unchanged.
	RunInScope(name string, fn func(tx *gorm.DB) error) error
}

// SingleScope wraps each operation in its own full transaction. Used when
// processing one mutation outside a batch run.
type SingleScope struct {
	DB *gorm.DB
	tx *gorm.DB
}

func (s *SingleScope) Current() *gorm.DB {
	if s.tx != nil {
		return s.tx
	}
	return s.DB
}

func (s *SingleScope) RunInScope(name string, fn func(tx *gorm.DB) error) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		s.tx = tx
		defer func() { s.tx = nil }()
		return fn(tx)
	})
}

type TrackedOperation struct {
	Type string
	Ref  string
	At   time.Time
}

type BatchStats struct {
	TotalOperations     int
	CommittedOperations int
	PendingOperations   int
	RolledBack          int
	BatchCommits        int
	Duration            time.Duration
}

type BatchOptions struct {
	// BatchSize is the operation count that triggers a checkpoint commit.
	BatchSize int
	// CommitInterval commits regardless of count once this much wall-clock
	// time has passed since the last checkpoint.
	CommitInterval time.Duration
}

const (
	defaultBatchSize      = 25
	defaultCommitInterval = 50 * time.Second
	checkpointName        = "migration_checkpoint"
)

// BatchTransaction is the batch migration scope: a long-lived transaction
// with a rolling savepoint checkpoint. Commits happen in chunks; a failure
// inside a scope loses only the in-flight operation (savepoint mode) or the
// uncommitted chunk (fallback mode), never previously committed batches.
type BatchTransaction struct {
	logger *logrus.Logger
	dlog   *DebugLog
	opts   BatchOptions

	tx            *gorm.DB
	useSavepoints bool

	now        func() time.Time
	started    time.Time
	lastCommit time.Time

	operationsCount int
	lastCommitCount int
	pending         []TrackedOperation
	discarded       []TrackedOperation
	committed       int
	rolledBack      int
	batchCommits    int

	// persistence hooks, swapped out by tests
	begin      func() (*gorm.DB, error)
	commit     func(tx *gorm.DB) error
	rollback   func(tx *gorm.DB) error
	savepoint  func(tx *gorm.DB, name string) error
	rollbackTo func(tx *gorm.DB, name string) error
}

func BeginBatch(db *gorm.DB, logger *logrus.Logger, dlog *DebugLog, opts BatchOptions) (*BatchTransaction, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.CommitInterval <= 0 {
		opts.CommitInterval = defaultCommitInterval
	}

	b := &BatchTransaction{
		logger: logger,
		dlog:   dlog,
		opts:   opts,
		now:    time.Now,
		begin: func() (*gorm.DB, error) {
			tx := db.Begin()
			return tx, tx.Error
		},
		commit:     func(tx *gorm.DB) error { return tx.Commit().Error },
		rollback:   func(tx *gorm.DB) error { return tx.Rollback().Error },
		savepoint:  func(tx *gorm.DB, name string) error { return tx.SavePoint(name).Error },
		rollbackTo: func(tx *gorm.DB, name string) error { return tx.RollbackTo(name).Error },
	}

	tx, err := b.begin()
	if err != nil {
		return nil, err
	}
	b.tx = tx
	b.started = b.now()
	b.lastCommit = b.started

	// Probe for savepoint support; fall back to coarse full-transaction
	// rollback when the store has none or the operator disabled them.
	if config.ForceCoarseRollback() {
		b.useSavepoints = false
		return b, nil
	}
	if err := b.savepoint(tx, checkpointName); err != nil {
		config.LogWarn(logger, "transaction.go", "BeginBatch", "SavepointProbe", nil,
			"savepoints not supported, using full transaction rollback: "+err.Error())
		b.useSavepoints = false
	} else {
		b.useSavepoints = true
	}
	return b, nil
}

func (b *BatchTransaction) Current() *gorm.DB {
	return b.tx
}

// RunInScope runs fn atomically against the current checkpoint. Savepoint
// mode undoes only fn's effects; fallback mode rolls the whole uncommitted
// chunk back and restarts the transaction.
func (b *BatchTransaction) RunInScope(name string, fn func(tx *gorm.DB) error) error {
	if b.useSavepoints {
		if err := b.savepoint(b.tx, name); err != nil {
			return err
		}
		if err := fn(b.tx); err != nil {
			if rbErr := b.rollbackTo(b.tx, name); rbErr != nil {
				config.LogError(b.logger, "transaction.go", "RunInScope", "RollbackTo", name, rbErr)
			}
			b.rolledBack++
			return err
		}
		return nil
	}

	if err := fn(b.tx); err != nil {
		if rbErr := b.rollback(b.tx); rbErr != nil {
			config.LogError(b.logger, "transaction.go", "RunInScope", "Rollback", name, rbErr)
		}
		b.rolledBack += len(b.pending) + 1
		b.discarded = append(b.discarded, b.pending...)
		b.pending = nil
		b.operationsCount = b.lastCommitCount
		tx, beginErr := b.begin()
		if beginErr != nil {
			return beginErr
		}
		b.tx = tx
		return err
	}
	return nil
}

// Track records one completed operation and commits the accumulated chunk
// when either trigger (count or elapsed time) fires.
func (b *BatchTransaction) Track(opType string, ref string) error {
	b.operationsCount++
	b.pending = append(b.pending, TrackedOperation{Type: opType, Ref: ref, At: b.now()})
	if b.dueForCommit(b.now()) {
		return b.commitBatch()
	}
	return nil
}

func (b *BatchTransaction) dueForCommit(now time.Time) bool {
	if b.operationsCount-b.lastCommitCount >= b.opts.BatchSize {
		return true
	}
	return now.Sub(b.lastCommit) >= b.opts.CommitInterval
}

// commitBatch commits the current transaction, advancing the rollback
// checkpoint past everything tracked so far, and re-arms the savepoint.
func (b *BatchTransaction) commitBatch() error {
	if err := b.commit(b.tx); err != nil {
		config.LogError(b.logger, "transaction.go", "commitBatch", "Commit", b.operationsCount, err)
		return err
	}
	b.committed += len(b.pending)
	b.pending = nil
	b.lastCommitCount = b.operationsCount
	b.lastCommit = b.now()
	b.batchCommits++
	b.dlog.Logf("batch commit: %d operations committed so far", b.committed)

	tx, err := b.begin()
	if err != nil {
		return err
	}
	b.tx = tx
	if b.useSavepoints {
		if err := b.savepoint(tx, checkpointName); err != nil {
			return err
		}
	}
	return nil
}

// Finish commits whatever is still pending and closes the batch. A failed
// final commit loses the pending chunk; those operations are reported as
// discarded.
func (b *BatchTransaction) Finish() error {
	if err := b.commit(b.tx); err != nil {
		b.rolledBack += len(b.pending)
		b.discarded = append(b.discarded, b.pending...)
		b.pending = nil
		return err
	}
	b.committed += len(b.pending)
	b.pending = nil
	b.lastCommitCount = b.operationsCount
	b.batchCommits++
	return nil
}

// Abort discards the uncommitted chunk. Previously committed batches are
// untouched.
func (b *BatchTransaction) Abort() {
	if err := b.rollback(b.tx); err != nil {
		config.LogError(b.logger, "transaction.go", "Abort", "Rollback", nil, err)
	}
	b.rolledBack += len(b.pending)
	b.discarded = append(b.discarded, b.pending...)
	b.pending = nil
}

// TakeDiscarded returns the operations lost to rollbacks after they had been
// tracked (coarse-mode chunk rollbacks and Abort), and resets the list. The
// engine uses it to downgrade results that no longer have a committed row
// behind them.
func (b *BatchTransaction) TakeDiscarded() []TrackedOperation {
	discarded := b.discarded
	b.discarded = nil
	return discarded
}

func (b *BatchTransaction) Stats() BatchStats {
	return BatchStats{
		TotalOperations:     b.operationsCount,
		CommittedOperations: b.committed,
		PendingOperations:   len(b.pending),
		RolledBack:          b.rolledBack,
		BatchCommits:        b.batchCommits,
		Duration:            b.now().Sub(b.started),
	}
}
