package migration

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/nlvegan/boekhouden_migration/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newMockEngine backs the engine with a sqlmock connection so the full
// pipeline can run without MySQL.
func newMockEngine(t *testing.T, business *models.Business) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewEngine(gdb, logger, business, nil, nil), mock
}

func TestBuildRemarks(t *testing.T) {
	amount := decimal.NewFromInt(350)
	m := &models.Mutation{
		ID:          8101,
		Type:        models.MutationTypeCustomerPayment,
		Date:        time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Amount:      &amount,
		Description: "Payment for services",
		LedgerId:    1200,
		Rows:        []models.MutationRow{{Amount: decimal.NewFromInt(350)}},
	}
	party := &ResolvedParty{Kind: models.PartyKindCustomer, CustomerId: 9, Name: "Bakkerij Jansen", Provisional: true}
	alloc := &Allocation{
		Amount:   decimal.NewFromInt(350),
		Strategy: "fifo",
		References: []models.InvoiceReference{
			{InvoiceNumber: "INV-001", AllocatedAmount: decimal.NewFromInt(350)},
		},
	}

	remarks := buildRemarks(m, party, alloc, 77)

	for _, want := range []string{
		"mutation 8101",
		"2024-03-15",
		"Bakkerij Jansen (provisional)",
		"Bank account: 77",
		"INV-001",
		"fifo",
		"Payment for services",
		"ledger 1200",
	} {
		if !strings.Contains(remarks, want) {
			t.Errorf("remarks missing %q:\n%s", want, remarks)
		}
	}
}

func TestDebugLog_EntriesSurviveAndAreTimestamped(t *testing.T) {
	dlog := NewDebugLog()
	dlog.now = func() time.Time {
		return time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	}

	dlog.Logf("mutation %d: rolled back, %v", 42, "boom")
	dlog.Logf("mutation %d: payment record %d created", 43, 7)

	entries := dlog.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !strings.HasPrefix(entries[0], "2024-03-15T10:30:00Z ") {
		t.Errorf("entry not timestamped: %q", entries[0])
	}
	// The rollback trace stays readable after the scope is gone.
	if !strings.Contains(entries[0], "rolled back") {
		t.Errorf("unexpected entry: %q", entries[0])
	}

	// Entries returns a copy; mutating it must not touch the log.
	entries[0] = "tampered"
	if dlog.Entries()[0] == "tampered" {
		t.Error("Entries must return a copy")
	}
}

// A payment whose invoice reference matches nothing is still recorded, fully
// unallocated, and the miss lands in the debug log.
func TestProcessSingle_NoInvoiceMatchRecordsUnallocatedPayment(t *testing.T) {
	business := &models.Business{
		ID:                         "biz-1",
		DefaultCashAccountId:       77,
		DefaultReceivableAccountId: 500,
	}
	engine, mock := newMockEngine(t, business)

	// Duplicate guard: nothing imported under this mutation nr yet.
	mock.ExpectQuery("SELECT (.+) FROM `payment_records`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	mock.ExpectBegin()
	// Party: relation code matches an existing customer.
	mock.ExpectQuery("SELECT (.+) FROM `customers`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "business_id", "name"}).
			AddRow(9, "biz-1", "Bakkerij Jansen"))
	// Bank account: no ledger id and no active bank account, so the cash
	// fallback wins without further lookups.
	mock.ExpectQuery("SELECT (.+) FROM `accounts`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	// The non-numeric reference skips the mutation-nr strategy and misses on
	// the remaining three.
	for i := 0; i < 3; i++ {
		mock.ExpectQuery("SELECT (.+) FROM `sales_invoices`").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
	}
	mock.ExpectExec("INSERT INTO `payment_records`").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("UPDATE `payment_records`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	amount := decimal.NewFromInt(150)
	m := &models.Mutation{
		ID:            4301,
		Type:          models.MutationTypeCustomerPayment,
		Date:          time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		Amount:        &amount,
		RelationId:    "REL-9",
		InvoiceNumber: "INV-404",
	}

	res := engine.ProcessSingle(context.Background(), m)

	if res.Status != models.MutationResultCreated {
		t.Fatalf("status = %s (err %v), want created", res.Status, res.Err)
	}
	if res.PaymentRecordId != 7 {
		t.Errorf("paymentRecordId = %d, want 7", res.PaymentRecordId)
	}
	trace := strings.Join(engine.DebugLog().Entries(), "\n")
	if !strings.Contains(trace, `no invoice found for reference "INV-404"`) {
		t.Errorf("debug log missing invoice miss:\n%s", trace)
	}
	// No invoice_references insert was expected: the record is unallocated.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// Reprocessing an already imported mutation nr returns the original record,
// even when the incoming content differs. No transaction is opened.
func TestProcessSingle_DuplicateReturnsOriginalRecord(t *testing.T) {
	business := &models.Business{ID: "biz-1"}
	engine, mock := newMockEngine(t, business)

	mock.ExpectQuery("SELECT (.+) FROM `payment_records`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "business_id", "external_mutation_nr", "amount", "status"}).
			AddRow(55, "biz-1", "4242", "100.00", "Submitted"))
	mock.ExpectQuery("SELECT (.+) FROM `invoice_references`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	// Same mutation nr, different amount: identity wins over content.
	amount := decimal.NewFromInt(200)
	m := &models.Mutation{
		ID:         4242,
		Type:       models.MutationTypeCustomerPayment,
		Date:       time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
		Amount:     &amount,
		RelationId: "REL-9",
	}

	res := engine.ProcessSingle(context.Background(), m)

	if res.Status != models.MutationResultDuplicate {
		t.Fatalf("status = %s (err %v), want duplicate", res.Status, res.Err)
	}
	if res.PaymentRecordId != 55 {
		t.Errorf("paymentRecordId = %d, want the original record 55", res.PaymentRecordId)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// The advisory lock brackets the whole batch on the pinned connection:
// GET_LOCK before the transaction opens, RELEASE_LOCK after the final commit.
func TestProcessBatch_AdvisoryLockBracketsBatchTransaction(t *testing.T) {
	business := &models.Business{ID: "biz-1"}
	engine, mock := newMockEngine(t, business)

	// Run header row, in gorm's default write transaction.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `migration_runs`").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()
	// The advisory lock is taken before the batch transaction opens and
	// released only after its final commit.
	mock.ExpectQuery("SELECT GET_LOCK").
		WillReturnRows(sqlmock.NewRows([]string{"GET_LOCK"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT migration_checkpoint").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT RELEASE_LOCK").
		WillReturnRows(sqlmock.NewRows([]string{"RELEASE_LOCK"}).AddRow(1))
	// Run finalization and the per-mutation result row, back on the pool.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `migration_runs`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `migration_mutation_results`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	// A recognized non-payment type is skipped before any query runs, so the
	// lock bracketing is the only SQL the loop produces.
	mutations := []models.Mutation{
		{ID: 9001, Type: models.MutationTypeJournalEntry, Date: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)},
	}

	run, results, err := engine.ProcessBatch(context.Background(), mutations, BatchOptions{})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if run.Attempted != 1 || run.Skipped != 1 {
		t.Errorf("counters: attempted=%d skipped=%d, want 1/1", run.Attempted, run.Skipped)
	}
	if len(results) != 1 || results[0].Status != models.MutationResultSkipped {
		t.Errorf("unexpected results: %+v", results)
	}
	if run.Status != models.MigrationRunStatusSuccess {
		t.Errorf("status = %s, want success", run.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDowngradeDiscarded_RewritesResultsAndCounters(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	e := NewEngine(nil, logger, &models.Business{ID: "biz-1"}, nil, nil)

	run := &models.MigrationRun{Created: 2, Failed: 1}
	results := []MutationResult{
		{MutationID: 1, Status: models.MutationResultCreated, PaymentRecordId: 10},
		{MutationID: 2, Status: models.MutationResultCreated, PaymentRecordId: 11},
		{MutationID: 3, Status: models.MutationResultFailed},
	}

	e.downgradeDiscarded(run, results, []TrackedOperation{
		{Type: "payment_record", Ref: "2"},
	})

	if results[1].Status != models.MutationResultRolledBack {
		t.Errorf("status = %s, want rolled_back", results[1].Status)
	}
	if results[1].PaymentRecordId != 0 {
		t.Errorf("discarded result still references record %d", results[1].PaymentRecordId)
	}
	if run.Created != 1 || run.RolledBack != 1 {
		t.Errorf("counters: created=%d rolledBack=%d, want 1/1", run.Created, run.RolledBack)
	}
	// The surviving creation and the failure are untouched.
	if results[0].Status != models.MutationResultCreated || results[0].PaymentRecordId != 10 {
		t.Errorf("unrelated result modified: %+v", results[0])
	}
	if results[2].Status != models.MutationResultFailed {
		t.Errorf("failed result modified: %+v", results[2])
	}
}
