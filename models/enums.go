package models

type AccountDetailType string

const (
	AccountDetailTypeCash               AccountDetailType = "Cash"
	AccountDetailTypeBank               AccountDetailType = "Bank"
	AccountDetailTypeAccountsReceivable AccountDetailType = "AccountsReceivable"
	AccountDetailTypeAccountsPayable    AccountDetailType = "AccountsPayable"
	AccountDetailTypeIncome             AccountDetailType = "Income"
	AccountDetailTypeExpense            AccountDetailType = "Expense"
	AccountDetailTypeEquity             AccountDetailType = "Equity"
	AccountDetailTypeOtherAsset         AccountDetailType = "OtherAsset"
	AccountDetailTypeOtherLiability     AccountDetailType = "OtherLiability"
)

// PaymentKind is the direction of a payment record: Receive collects money
// from a customer, Pay settles a supplier.
type PaymentKind string

const (
	PaymentKindReceive PaymentKind = "Receive"
	PaymentKindPay     PaymentKind = "Pay"
)

type PartyKind string

const (
	PartyKindCustomer PartyKind = "Customer"
	PartyKindSupplier PartyKind = "Supplier"
)

type PaymentRecordStatus string

const (
	PaymentRecordStatusDraft     PaymentRecordStatus = "Draft"
	PaymentRecordStatusSubmitted PaymentRecordStatus = "Submitted"
	PaymentRecordStatusCancelled PaymentRecordStatus = "Cancelled"
)

type InvoiceKind string

const (
	InvoiceKindSales    InvoiceKind = "Sales"
	InvoiceKindPurchase InvoiceKind = "Purchase"
)

const (
	EnrichmentStatusPending = "pending"
	EnrichmentStatusDone    = "done"
	EnrichmentStatusFailed  = "failed"
)

const (
	MigrationRunStatusRunning = "running"
	MigrationRunStatusSuccess = "success"
	MigrationRunStatusPartial = "partial"
	MigrationRunStatusFailed  = "failed"
)

// MutationResultStatus is the per-mutation outcome recorded for a run.
// RolledBack marks a payment that was created but lost again when a later
// failure rolled its uncommitted chunk back (coarse-rollback mode only).
const (
	MutationResultCreated    = "created"
	MutationResultDuplicate  = "duplicate"
	MutationResultSkipped    = "skipped"
	MutationResultFailed     = "failed"
	MutationResultRolledBack = "rolled_back"
)
