package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MutationType is the transaction kind reported by the external bookkeeping
// system. Only the two payment types are processed by the payment engine; the
// rest are recognized so the validator can skip them without failing a batch.
type MutationType string

const (
	MutationTypeCustomerPayment MutationType = "CustomerPayment"
	MutationTypeSupplierPayment MutationType = "SupplierPayment"
	MutationTypeSalesInvoice    MutationType = "SalesInvoice"
	MutationTypePurchaseInvoice MutationType = "PurchaseInvoice"
	MutationTypeJournalEntry    MutationType = "JournalEntry"
	MutationTypeOpeningBalance  MutationType = "OpeningBalance"
	MutationTypeMoneyReceived   MutationType = "MoneyReceived"
	MutationTypeMoneySpent      MutationType = "MoneySpent"
)

// Mutation is one transaction exported by the external bookkeeping system.
// It is immutable once received: the engine reads it, never writes it, and
// the duplicate guard ensures each mutation id is consumed exactly once.
// Field names follow the external API (camelCase).
type Mutation struct {
	ID            int              `json:"id" binding:"required"`
	Type          MutationType     `json:"type" binding:"required"`
	Date          time.Time        `json:"date"`
	Amount        *decimal.Decimal `json:"amount"`
	RelationId    string           `json:"relationId"`
	InvoiceNumber string           `json:"invoiceNumber"`
	LedgerId      int              `json:"ledgerId"`
	Description   string           `json:"description"`
	Rows          []MutationRow    `json:"rows"`
}

type MutationRow struct {
	LedgerId    int             `json:"ledgerId"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// IsPaymentType reports whether the engine should turn this mutation into a
// payment record.
func (m *Mutation) IsPaymentType() bool {
	return m.Type == MutationTypeCustomerPayment || m.Type == MutationTypeSupplierPayment
}

// IsRecognizedType reports whether the type is one the external system emits
// at all. Unrecognized types are a validation failure, recognized non-payment
// types are a silent skip.
func (m *Mutation) IsRecognizedType() bool {
	switch m.Type {
	case MutationTypeCustomerPayment, MutationTypeSupplierPayment,
		MutationTypeSalesInvoice, MutationTypePurchaseInvoice,
		MutationTypeJournalEntry, MutationTypeOpeningBalance,
		MutationTypeMoneyReceived, MutationTypeMoneySpent:
		return true
	}
	return false
}

// Kind maps the mutation type onto a payment direction.
func (m *Mutation) Kind() (PaymentKind, bool) {
	switch m.Type {
	case MutationTypeCustomerPayment:
		return PaymentKindReceive, true
	case MutationTypeSupplierPayment:
		return PaymentKindPay, true
	}
	return "", false
}

func (m *Mutation) PartyKind() PartyKind {
	if m.Type == MutationTypeSupplierPayment {
		return PartyKindSupplier
	}
	return PartyKindCustomer
}

// invoiceRefPattern is a conservative shape check for invoice references.
// References that fail it are dropped from allocation input, not fatal.
var invoiceRefPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]{0,63}$`)

func IsValidInvoiceReference(ref string) bool {
	return invoiceRefPattern.MatchString(ref)
}

// InvoiceNumbers splits the comma-separated invoice reference string,
// trimming whitespace and dropping empties. Shape checking is left to the
// validator so the drop can be logged.
func (m *Mutation) InvoiceNumbers() []string {
	if strings.TrimSpace(m.InvoiceNumber) == "" {
		return nil
	}
	parts := strings.Split(m.InvoiceNumber, ",")
	refs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			refs = append(refs, p)
		}
	}
	return refs
}

// RowSum returns the sum of absolute row amounts.
func (m *Mutation) RowSum() decimal.Decimal {
	sum := decimal.Zero
	for _, row := range m.Rows {
		sum = sum.Add(row.Amount.Abs())
	}
	return sum
}

// TopLevelAmount returns the absolute top-level amount, zero when absent.
func (m *Mutation) TopLevelAmount() decimal.Decimal {
	if m.Amount == nil {
		return decimal.Zero
	}
	return m.Amount.Abs()
}
