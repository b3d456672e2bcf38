package migration

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NOTE: These tests are intentionally DB-free. The persistence hooks are
// replaced with counters so the chunking and rollback bookkeeping can be
// asserted without MySQL.

type fakeStore struct {
	begins      int
	commits     int
	rollbacks   int
	savepoints  []string
	rollbackTos []string
	commitErr   error
}

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time {
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestBatch(opts BatchOptions, useSavepoints bool) (*BatchTransaction, *fakeStore, *testClock) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.CommitInterval <= 0 {
		opts.CommitInterval = defaultCommitInterval
	}
	store := &fakeStore{}
	clock := &testClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	b := &BatchTransaction{
		logger:        logger,
		dlog:          NewDebugLog(),
		opts:          opts,
		useSavepoints: useSavepoints,
		now:           clock.now,
		begin: func() (*gorm.DB, error) {
			store.begins++
			return &gorm.DB{}, nil
		},
		commit: func(tx *gorm.DB) error {
			if store.commitErr != nil {
				return store.commitErr
			}
			store.commits++
			return nil
		},
		rollback: func(tx *gorm.DB) error {
			store.rollbacks++
			return nil
		},
		savepoint: func(tx *gorm.DB, name string) error {
			store.savepoints = append(store.savepoints, name)
			return nil
		},
		rollbackTo: func(tx *gorm.DB, name string) error {
			store.rollbackTos = append(store.rollbackTos, name)
			return nil
		},
	}
	tx, _ := b.begin()
	b.tx = tx
	b.started = clock.now()
	b.lastCommit = b.started
	return b, store, clock
}

func trackN(t *testing.T, b *BatchTransaction, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := b.RunInScope("op", func(tx *gorm.DB) error { return nil }); err != nil {
			t.Fatalf("scope %d: %v", i, err)
		}
		if err := b.Track("payment_record", "op"); err != nil {
			t.Fatalf("track %d: %v", i, err)
		}
	}
}

func TestBatch_CommitsOnCount(t *testing.T) {
	b, store, _ := newTestBatch(BatchOptions{BatchSize: 3}, true)

	trackN(t, b, 7)

	if store.commits != 2 {
		t.Fatalf("expected 2 chunk commits after 7 operations with batch size 3, got %d", store.commits)
	}
	stats := b.Stats()
	if stats.CommittedOperations != 6 {
		t.Errorf("committed = %d, want 6", stats.CommittedOperations)
	}
	if stats.PendingOperations != 1 {
		t.Errorf("pending = %d, want 1", stats.PendingOperations)
	}

	if err := b.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	stats = b.Stats()
	if stats.CommittedOperations != 7 || stats.PendingOperations != 0 {
		t.Errorf("after finish: committed=%d pending=%d, want 7/0", stats.CommittedOperations, stats.PendingOperations)
	}
}

func TestBatch_CommitsOnElapsedTime(t *testing.T) {
	b, store, clock := newTestBatch(BatchOptions{BatchSize: 100, CommitInterval: 50 * time.Second}, true)

	trackN(t, b, 2)
	if store.commits != 0 {
		t.Fatalf("no commit expected before interval, got %d", store.commits)
	}

	clock.advance(51 * time.Second)
	trackN(t, b, 1)

	if store.commits != 1 {
		t.Fatalf("expected time-based commit, got %d commits", store.commits)
	}
	if b.Stats().CommittedOperations != 3 {
		t.Errorf("committed = %d, want 3", b.Stats().CommittedOperations)
	}
}

func TestBatch_SavepointRollbackLosesOnlyFailedOp(t *testing.T) {
	b, store, _ := newTestBatch(BatchOptions{BatchSize: 100}, true)

	trackN(t, b, 2)

	boom := errors.New("allocation failed")
	err := b.RunInScope("mutation_99", func(tx *gorm.DB) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected scope error back, got %v", err)
	}
	if len(store.rollbackTos) != 1 || store.rollbackTos[0] != "mutation_99" {
		t.Fatalf("expected rollback to mutation_99 savepoint, got %v", store.rollbackTos)
	}
	if store.rollbacks != 0 {
		t.Fatalf("full rollback must not happen in savepoint mode, got %d", store.rollbacks)
	}

	trackN(t, b, 1)
	if err := b.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}

	stats := b.Stats()
	if stats.CommittedOperations != 3 {
		t.Errorf("committed = %d, want 3", stats.CommittedOperations)
	}
	if stats.RolledBack != 1 {
		t.Errorf("rolledBack = %d, want 1", stats.RolledBack)
	}
}

func TestBatch_CoarseRollbackLosesPendingChunk(t *testing.T) {
	b, store, _ := newTestBatch(BatchOptions{BatchSize: 100}, false)

	trackN(t, b, 2)

	boom := errors.New("resolution failed")
	err := b.RunInScope("mutation_42", func(tx *gorm.DB) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected scope error back, got %v", err)
	}
	if store.rollbacks != 1 {
		t.Fatalf("expected full rollback, got %d", store.rollbacks)
	}
	if store.begins != 2 {
		t.Fatalf("expected transaction restart after rollback, begins=%d", store.begins)
	}

	stats := b.Stats()
	// Both pending operations plus the failing one are gone.
	if stats.RolledBack != 3 {
		t.Errorf("rolledBack = %d, want 3", stats.RolledBack)
	}
	if stats.PendingOperations != 0 {
		t.Errorf("pending = %d, want 0", stats.PendingOperations)
	}
}

func TestBatch_CoarseRollbackKeepsCommittedChunks(t *testing.T) {
	b, store, _ := newTestBatch(BatchOptions{BatchSize: 2}, false)

	trackN(t, b, 4)
	if store.commits != 2 {
		t.Fatalf("expected 2 chunk commits, got %d", store.commits)
	}

	_ = b.RunInScope("mutation_5", func(tx *gorm.DB) error { return errors.New("nope") })

	stats := b.Stats()
	if stats.CommittedOperations != 4 {
		t.Errorf("committed chunks must survive, committed=%d", stats.CommittedOperations)
	}
	if stats.RolledBack != 1 {
		t.Errorf("rolledBack = %d, want only the in-flight op", stats.RolledBack)
	}
}

func TestBatch_AbortDiscardsPending(t *testing.T) {
	b, store, _ := newTestBatch(BatchOptions{BatchSize: 100}, true)

	trackN(t, b, 3)
	b.Abort()

	if store.rollbacks != 1 {
		t.Fatalf("expected rollback on abort, got %d", store.rollbacks)
	}
	stats := b.Stats()
	if stats.CommittedOperations != 0 || stats.PendingOperations != 0 {
		t.Errorf("after abort: committed=%d pending=%d, want 0/0", stats.CommittedOperations, stats.PendingOperations)
	}
	if stats.RolledBack != 3 {
		t.Errorf("rolledBack = %d, want 3", stats.RolledBack)
	}
}

func TestBatch_CoarseRollbackSurfacesDiscardedOps(t *testing.T) {
	b, _, _ := newTestBatch(BatchOptions{BatchSize: 100}, false)

	if err := b.RunInScope("mutation_1", func(tx *gorm.DB) error { return nil }); err != nil {
		t.Fatal(err)
	}
	_ = b.Track("payment_record", "1")
	if err := b.RunInScope("mutation_2", func(tx *gorm.DB) error { return nil }); err != nil {
		t.Fatal(err)
	}
	_ = b.Track("payment_record", "2")

	_ = b.RunInScope("mutation_3", func(tx *gorm.DB) error { return errors.New("boom") })

	discarded := b.TakeDiscarded()
	if len(discarded) != 2 {
		t.Fatalf("expected the 2 tracked ops surfaced as discarded, got %d", len(discarded))
	}
	if discarded[0].Ref != "1" || discarded[1].Ref != "2" {
		t.Errorf("unexpected refs: %v", discarded)
	}
	// Drained on take.
	if again := b.TakeDiscarded(); len(again) != 0 {
		t.Errorf("TakeDiscarded must drain, got %v", again)
	}
}

func TestBatch_SavepointRollbackDiscardsNothingTracked(t *testing.T) {
	b, _, _ := newTestBatch(BatchOptions{BatchSize: 100}, true)

	trackN(t, b, 2)
	_ = b.RunInScope("mutation_3", func(tx *gorm.DB) error { return errors.New("boom") })

	if discarded := b.TakeDiscarded(); len(discarded) != 0 {
		t.Fatalf("savepoint rollback must not discard tracked ops, got %v", discarded)
	}
}

func TestBatch_AbortSurfacesDiscardedOps(t *testing.T) {
	b, _, _ := newTestBatch(BatchOptions{BatchSize: 100}, true)

	trackN(t, b, 3)
	b.Abort()

	if discarded := b.TakeDiscarded(); len(discarded) != 3 {
		t.Fatalf("expected 3 discarded ops after abort, got %d", len(discarded))
	}
}

func TestBatch_SavepointReArmedAfterChunkCommit(t *testing.T) {
	b, store, _ := newTestBatch(BatchOptions{BatchSize: 2}, true)

	trackN(t, b, 2)

	// Chunk commit re-begins and re-arms the checkpoint savepoint.
	found := 0
	for _, name := range store.savepoints {
		if name == checkpointName {
			found++
		}
	}
	if found != 1 {
		t.Fatalf("expected checkpoint savepoint re-armed once after commit, got %d", found)
	}
}
