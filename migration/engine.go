package migration

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/nlvegan/boekhouden_migration/config"
	"github.com/nlvegan/boekhouden_migration/models"
	"github.com/nlvegan/boekhouden_migration/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EnrichmentNotifier announces newly queued enrichment work to the worker.
// Publishing is best-effort: the queue rows in the database are the source
// of truth and the worker also polls them.
type EnrichmentNotifier interface {
	Publish(ctx context.Context, item models.PartyEnrichmentQueueItem) error
}

// MutationResult is the outcome of processing one mutation.
type MutationResult struct {
	MutationID      int
	Status          string
	PaymentRecordId int
	Err             error
	Warnings        []string
}

// Engine turns external mutations into internal payment records. One engine
// instance serves one business and one run; resolver caches and the debug
// log are scoped to it.
type Engine struct {
	db       *gorm.DB
	logger   *logrus.Logger
	business *models.Business
	dlog     *DebugLog

	accounts  *AccountResolver
	parties   *PartyResolver
	allocator *InvoiceAllocator
	notifier  EnrichmentNotifier
	locker    *redislock.Client

	notices []models.PartyEnrichmentQueueItem
}

func NewEngine(db *gorm.DB, logger *logrus.Logger, business *models.Business, notifier EnrichmentNotifier, locker *redislock.Client) *Engine {
	dlog := NewDebugLog()
	return &Engine{
		db:        db,
		logger:    logger,
		business:  business,
		dlog:      dlog,
		accounts:  NewAccountResolver(logger, dlog, business),
		parties:   NewPartyResolver(logger, dlog, business),
		allocator: NewInvoiceAllocator(logger, dlog, business),
		notifier:  notifier,
		locker:    locker,
	}
}

// DebugLog exposes the per-run trace. It is in-memory and survives
// rollbacks, which is the point.
func (e *Engine) DebugLog() *DebugLog {
	return e.dlog
}

// ProcessMutation runs the full pipeline for one mutation inside the given
// scope. The order is fixed: validate, duplicate guard, then the atomic
// scope with party, bank account, allocation, party account, and the
// payment record write. Failures roll the scope back and report on the
// mutation only.
func (e *Engine) ProcessMutation(ctx context.Context, scope ScopeRunner, m *models.Mutation) MutationResult {
	if vErr := ValidateMutation(m); vErr != nil {
		if m.IsRecognizedType() && !m.IsPaymentType() {
			e.dlog.Logf("mutation %d: skipping %s, not a payment", m.ID, m.Type)
		} else {
			e.dlog.Logf("mutation %d: skipped, %s", m.ID, vErr.Reason)
		}
		return MutationResult{MutationID: m.ID, Status: models.MutationResultSkipped, Err: vErr}
	}

	mutationNr := strconv.Itoa(m.ID)

	// Duplicate guard runs before any scope opens so a duplicate costs one
	// read and no rollback.
	existing, err := models.FindPaymentRecordByMutationNr(scope.Current(), e.business.ID, mutationNr)
	if err != nil {
		return MutationResult{MutationID: m.ID, Status: models.MutationResultFailed, Err: err}
	}
	if existing != nil {
		e.dlog.Logf("mutation %d: already imported as payment record %d", m.ID, existing.ID)
		return MutationResult{MutationID: m.ID, Status: models.MutationResultDuplicate, PaymentRecordId: existing.ID}
	}

	var (
		record   *models.PaymentRecord
		warnings []string
	)
	err = scope.RunInScope("mutation_"+mutationNr, func(tx *gorm.DB) error {
		kind, _ := m.Kind()

		party, err := e.parties.Resolve(tx, m)
		if err != nil {
			return err
		}

		bankAccountId, err := e.accounts.ResolveBankAccount(tx, m.ID, m.LedgerId, kind, m.Description)
		if err != nil {
			return err
		}

		alloc, invoices, err := e.allocator.Allocate(tx, m, party)
		if err != nil {
			return err
		}
		warnings = alloc.Warnings

		partyAccountId, err := e.accounts.ResolvePartyAccount(tx, m.ID, kind, invoices, m.Rows)
		if err != nil {
			return err
		}

		record = &models.PaymentRecord{
			BusinessId:         e.business.ID,
			ExternalMutationNr: mutationNr,
			Kind:               kind,
			CustomerId:         party.CustomerId,
			SupplierId:         party.SupplierId,
			BankAccountId:      bankAccountId,
			PartyAccountId:     partyAccountId,
			Amount:             alloc.Amount,
			PaymentDate:        m.Date,
			ReferenceNo:        m.InvoiceNumber,
			Remarks:            buildRemarks(m, party, alloc, bankAccountId),
			InvoiceReferences:  alloc.References,
		}
		if err := record.Insert(tx); err != nil {
			return err
		}
		return record.Submit(tx)
	})
	if err != nil {
		e.parties.DiscardNotices()
		if isDuplicateKeyErr(err) {
			// Raced with a concurrent import; the unique index caught it.
			e.dlog.Logf("mutation %d: duplicate detected on insert", m.ID)
			return MutationResult{MutationID: m.ID, Status: models.MutationResultDuplicate}
		}
		config.LogError(e.logger, "engine.go", "ProcessMutation", "Scope", m.ID, err)
		e.dlog.Logf("mutation %d: rolled back, %v", m.ID, err)
		return MutationResult{MutationID: m.ID, Status: models.MutationResultFailed, Err: err, Warnings: warnings}
	}

	e.notices = append(e.notices, e.parties.PendingNotices()...)
	e.dlog.Logf("mutation %d: payment record %d created", m.ID, record.ID)
	return MutationResult{MutationID: m.ID, Status: models.MutationResultCreated, PaymentRecordId: record.ID, Warnings: warnings}
}

// ProcessSingle imports one mutation in its own transaction.
func (e *Engine) ProcessSingle(ctx context.Context, m *models.Mutation) MutationResult {
	return e.ProcessMutation(ctx, &SingleScope{DB: e.db}, m)
}

// ProcessBatch imports the mutations in caller order under the batch scope.
// Per-mutation failures roll back only their own scope; a lost database
// connection aborts the remainder of the run. The MigrationRun row and the
// per-mutation result rows are written outside the batch transaction so they
// survive any rollback.
func (e *Engine) ProcessBatch(ctx context.Context, mutations []models.Mutation, opts BatchOptions) (*models.MigrationRun, []MutationResult, error) {
	correlationId, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok {
		correlationId = uuid.NewString()
	}
	initiatedBy, _ := utils.GetInitiatedByFromContext(ctx)

	runLock, err := ObtainRunLock(ctx, e.locker, e.business.ID, 30*time.Minute)
	if err != nil {
		return nil, nil, err
	}
	if runLock != nil {
		defer runLock.Release(ctx)
	}

	now := time.Now()
	run := &models.MigrationRun{
		BusinessId:    e.business.ID,
		Status:        models.MigrationRunStatusRunning,
		InitiatedBy:   initiatedBy,
		CorrelationId: correlationId,
		StartedAt:     &now,
	}
	if err := e.db.Create(run).Error; err != nil {
		return nil, nil, err
	}
	e.dlog.Logf("run %d: starting, %d mutation(s)", run.ID, len(mutations))

	results := make([]MutationResult, 0, len(mutations))
	var stats BatchStats

	// GET_LOCK is session-scoped, so the advisory lock and the batch
	// transactions must share one pinned connection for the whole run.
	runErr := e.db.Connection(func(conn *gorm.DB) error {
		if err := AcquireMigrationLock(conn, e.business.ID); err != nil {
			return err
		}
		defer ReleaseMigrationLock(conn, e.business.ID)

		batch, err := BeginBatch(conn, e.logger, e.dlog, opts)
		if err != nil {
			return err
		}

		var loopErr error
		for i := range mutations {
			m := &mutations[i]
			res := e.ProcessMutation(ctx, batch, m)
			results = append(results, res)
			run.Attempted++

			switch res.Status {
			case models.MutationResultCreated:
				run.Created++
				if err := batch.Track("payment_record", strconv.Itoa(m.ID)); err != nil {
					loopErr = err
					break
				}
			case models.MutationResultDuplicate:
				run.Duplicates++
			case models.MutationResultSkipped:
				run.Skipped++
			case models.MutationResultFailed:
				run.Failed++
			}

			if res.Err != nil && isConnErr(res.Err) {
				loopErr = fmt.Errorf("%w: %v", ErrStoreUnreachable, res.Err)
			}
			if loopErr != nil {
				break
			}
		}

		if loopErr != nil {
			batch.Abort()
			e.downgradeDiscarded(run, results, batch.TakeDiscarded())
			return loopErr
		}
		if err := batch.Finish(); err != nil {
			e.downgradeDiscarded(run, results, batch.TakeDiscarded())
			return err
		}
		e.downgradeDiscarded(run, results, batch.TakeDiscarded())
		stats = batch.Stats()
		return nil
	})

	if runErr != nil {
		config.LogError(e.logger, "engine.go", "ProcessBatch", "Aborted", run.ID, runErr)
		_ = run.Finish(e.db, models.MigrationRunStatusFailed)
		e.persistResults(run, results)
		return run, results, runErr
	}

	e.dlog.Logf("run %d: finished, %d committed in %d batch(es), %d rolled back",
		run.ID, stats.CommittedOperations, stats.BatchCommits, stats.RolledBack)

	status := models.MigrationRunStatusSuccess
	if run.Failed > 0 || run.RolledBack > 0 {
		status = models.MigrationRunStatusPartial
	}
	if err := run.Finish(e.db, status); err != nil {
		config.LogError(e.logger, "engine.go", "ProcessBatch", "FinishRun", run.ID, err)
	}
	e.persistResults(run, results)
	e.publishNotices(ctx)

	e.logger.WithFields(logrus.Fields{
		"runId":         run.ID,
		"businessId":    e.business.ID,
		"correlationId": correlationId,
		"attempted":     run.Attempted,
		"created":       run.Created,
		"duplicates":    run.Duplicates,
		"skipped":       run.Skipped,
		"failed":        run.Failed,
		"rolledBack":    run.RolledBack,
		"batchCommits":  stats.BatchCommits,
	}).Info("migration run complete")
	return run, results, nil
}

// downgradeDiscarded rewrites results whose payment was created inside a
// chunk that was later discarded (coarse rollback or abort), so the
// persisted summary only claims what is actually committed. Re-running
// those mutations is safe: the duplicate guard finds no record for them.
func (e *Engine) downgradeDiscarded(run *models.MigrationRun, results []MutationResult, discarded []TrackedOperation) {
	for _, op := range discarded {
		for i := range results {
			res := &results[i]
			if res.Status != models.MutationResultCreated || strconv.Itoa(res.MutationID) != op.Ref {
				continue
			}
			res.Status = models.MutationResultRolledBack
			res.PaymentRecordId = 0
			run.Created--
			run.RolledBack++
			e.dlog.Logf("mutation %d: payment record discarded with its chunk", res.MutationID)
			break
		}
	}
}

// persistResults writes the per-mutation outcome rows on the base
// connection, outside any batch transaction.
func (e *Engine) persistResults(run *models.MigrationRun, results []MutationResult) {
	for _, res := range results {
		row := models.MigrationMutationResult{
			BusinessId:      e.business.ID,
			MigrationRunId:  run.ID,
			MutationNr:      strconv.Itoa(res.MutationID),
			Status:          res.Status,
			PaymentRecordId: res.PaymentRecordId,
			Warnings:        strings.Join(res.Warnings, "; "),
		}
		if res.Err != nil {
			row.Error = res.Err.Error()
		}
		if err := e.db.Create(&row).Error; err != nil {
			config.LogError(e.logger, "engine.go", "persistResults", "Create", res.MutationID, err)
		}
	}
}

// publishNotices announces the enrichment queue rows created by this run.
// Failures are logged only; the worker also polls the queue table.
func (e *Engine) publishNotices(ctx context.Context) {
	if e.notifier == nil || len(e.notices) == 0 {
		e.notices = nil
		return
	}
	for _, item := range e.notices {
		if err := e.notifier.Publish(ctx, item); err != nil {
			config.LogError(e.logger, "engine.go", "publishNotices", "Publish", item.RelationCode, err)
		}
	}
	e.notices = nil
}

// buildRemarks renders the human-readable audit trail stored on the payment
// record.
func buildRemarks(m *models.Mutation, party *ResolvedParty, alloc *Allocation, bankAccountId int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Imported from mutation %d (%s)\n", m.ID, m.Type)
	fmt.Fprintf(&b, "Date: %s\n", m.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "Party: %s", party.Name)
	if party.Provisional {
		b.WriteString(" (provisional)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Bank account: %d\n", bankAccountId)
	if len(alloc.References) > 0 {
		nums := make([]string, 0, len(alloc.References))
		for _, ref := range alloc.References {
			nums = append(nums, ref.InvoiceNumber)
		}
		fmt.Fprintf(&b, "Invoices: %s (%s)\n", strings.Join(nums, ", "), alloc.Strategy)
	}
	if alloc.Unallocated.IsPositive() {
		fmt.Fprintf(&b, "Unallocated: %s\n", alloc.Unallocated)
	}
	if m.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", m.Description)
	}
	if len(m.Rows) > 0 {
		fmt.Fprintf(&b, "Rows: %d, ledger %d\n", len(m.Rows), m.LedgerId)
	}
	return strings.TrimRight(b.String(), "\n")
}
