package migration

import (
	"testing"
	"time"

	"github.com/nlvegan/boekhouden_migration/models"
	"github.com/shopspring/decimal"
)

func paymentMutation(id int) *models.Mutation {
	amount := decimal.NewFromInt(100)
	return &models.Mutation{
		ID:     id,
		Type:   models.MutationTypeCustomerPayment,
		Date:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Amount: &amount,
	}
}

func TestValidateMutation_AcceptsPayment(t *testing.T) {
	if err := ValidateMutation(paymentMutation(1)); err != nil {
		t.Fatalf("valid payment rejected: %v", err)
	}
}

func TestValidateMutation_SkipsNonPaymentTypes(t *testing.T) {
	m := paymentMutation(2)
	m.Type = models.MutationTypeSalesInvoice

	err := ValidateMutation(m)
	if err == nil {
		t.Fatal("expected a validation error for a non-payment type")
	}
}

func TestValidateMutation_RejectsUnknownType(t *testing.T) {
	m := paymentMutation(3)
	m.Type = "FactuurVerstuurd"

	if err := ValidateMutation(m); err == nil {
		t.Fatal("expected a validation error for an unrecognized type")
	}
}

func TestValidateMutation_RequiresAmountOrRows(t *testing.T) {
	m := paymentMutation(4)
	m.Amount = nil

	if err := ValidateMutation(m); err == nil {
		t.Fatal("expected a validation error when neither amount nor rows present")
	}

	m.Rows = []models.MutationRow{{Amount: decimal.NewFromInt(50)}}
	if err := ValidateMutation(m); err != nil {
		t.Fatalf("rows alone should satisfy the amount requirement: %v", err)
	}
}

func TestValidateMutation_ExplicitZeroAmountIsValid(t *testing.T) {
	m := paymentMutation(5)
	zero := decimal.Zero
	m.Amount = &zero

	if err := ValidateMutation(m); err != nil {
		t.Fatalf("explicit zero amount must be processable: %v", err)
	}
}

func TestValidateMutation_RequiresDate(t *testing.T) {
	m := paymentMutation(6)
	m.Date = time.Time{}

	if err := ValidateMutation(m); err == nil {
		t.Fatal("expected a validation error for a missing date")
	}
}

func TestFilterInvoiceReferences_DropsMalformed(t *testing.T) {
	dlog := NewDebugLog()
	m := paymentMutation(7)
	m.InvoiceNumber = "INV-001, , 2024/0042, ***, -leading"

	refs := FilterInvoiceReferences(m, dlog)

	if len(refs) != 2 {
		t.Fatalf("expected 2 surviving references, got %v", refs)
	}
	if refs[0] != "INV-001" || refs[1] != "2024/0042" {
		t.Errorf("unexpected survivors: %v", refs)
	}
	if dlog.Len() != 2 {
		t.Errorf("expected 2 drop log entries, got %d", dlog.Len())
	}
}
