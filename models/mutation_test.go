package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMutation_DecodeExternalShape(t *testing.T) {
	raw := `{
		"id": 5001,
		"type": "CustomerPayment",
		"date": "2024-03-15T00:00:00Z",
		"amount": "350.00",
		"relationId": "REL-042",
		"invoiceNumber": "INV-001,INV-002",
		"ledgerId": 1200,
		"description": "Payment received",
		"rows": [{"ledgerId": 1300, "amount": "-350.00", "description": "row"}]
	}`

	var m Mutation
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.ID != 5001 || m.Type != MutationTypeCustomerPayment {
		t.Fatalf("header fields wrong: %+v", m)
	}
	if m.Amount == nil || !m.Amount.Equal(decimal.RequireFromString("350.00")) {
		t.Errorf("amount = %v", m.Amount)
	}
	if m.RelationId != "REL-042" || m.LedgerId != 1200 {
		t.Errorf("relation/ledger wrong: %+v", m)
	}
	if len(m.Rows) != 1 || m.Rows[0].LedgerId != 1300 {
		t.Errorf("rows wrong: %+v", m.Rows)
	}
}

func TestMutation_AbsentAmountStaysNil(t *testing.T) {
	var m Mutation
	if err := json.Unmarshal([]byte(`{"id": 1, "type": "CustomerPayment"}`), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Amount != nil {
		t.Fatalf("absent amount must stay nil, got %v", m.Amount)
	}
}

func TestMutation_KindMapping(t *testing.T) {
	m := Mutation{Type: MutationTypeCustomerPayment}
	if kind, ok := m.Kind(); !ok || kind != PaymentKindReceive {
		t.Errorf("CustomerPayment kind = %v %v", kind, ok)
	}
	m.Type = MutationTypeSupplierPayment
	if kind, ok := m.Kind(); !ok || kind != PaymentKindPay {
		t.Errorf("SupplierPayment kind = %v %v", kind, ok)
	}
	m.Type = MutationTypeJournalEntry
	if _, ok := m.Kind(); ok {
		t.Error("JournalEntry must not map to a payment kind")
	}
}

func TestMutation_InvoiceNumbers(t *testing.T) {
	m := Mutation{InvoiceNumber: " INV-001 ,, INV-002 ,"}
	refs := m.InvoiceNumbers()
	if len(refs) != 2 || refs[0] != "INV-001" || refs[1] != "INV-002" {
		t.Fatalf("got %v", refs)
	}

	m.InvoiceNumber = "   "
	if refs := m.InvoiceNumbers(); refs != nil {
		t.Fatalf("blank reference string must yield nil, got %v", refs)
	}
}

func TestIsValidInvoiceReference(t *testing.T) {
	valid := []string{"INV-001", "2024/0042", "a", "F2024.003_b"}
	for _, ref := range valid {
		if !IsValidInvoiceReference(ref) {
			t.Errorf("%q should be valid", ref)
		}
	}
	invalid := []string{"", "-leading", ".dot", "inv 001", "ref;drop", string(make([]byte, 70))}
	for _, ref := range invalid {
		if IsValidInvoiceReference(ref) {
			t.Errorf("%q should be invalid", ref)
		}
	}
}

func TestMutation_RowSumUsesAbsolutes(t *testing.T) {
	m := Mutation{Rows: []MutationRow{
		{Amount: decimal.RequireFromString("-100.50")},
		{Amount: decimal.RequireFromString("49.50")},
	}}
	if !m.RowSum().Equal(decimal.RequireFromString("150.00")) {
		t.Fatalf("row sum = %s", m.RowSum())
	}
}
