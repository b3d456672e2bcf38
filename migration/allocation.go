package migration

import (
	"sort"

	"github.com/nlvegan/boekhouden_migration/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// centTolerance is the largest amount discrepancy treated as a rounding
// artifact rather than a data problem.
var centTolerance = decimal.NewFromFloat(0.01)

// overpaymentRatio flags payments exceeding the matched invoice total by
// more than this fraction. Informational only.
var overpaymentRatio = decimal.NewFromFloat(0.10)

// Allocation is the allocator's full answer for one mutation: the payment
// amount, the per-invoice split, and everything noteworthy that happened on
// the way there. Warnings never fail the mutation.
type Allocation struct {
	Amount     decimal.Decimal
	References []models.InvoiceReference
	// Unallocated is the part of the amount no invoice absorbed; it stays on
	// the payment as an unreconciled remainder.
	Unallocated decimal.Decimal
	Strategy    string
	Warnings    []string
}

// InvoiceAllocator matches invoice references and splits the payment amount
// across the matches.
type InvoiceAllocator struct {
	logger   *logrus.Logger
	dlog     *DebugLog
	business *models.Business
}

func NewInvoiceAllocator(logger *logrus.Logger, dlog *DebugLog, business *models.Business) *InvoiceAllocator {
	return &InvoiceAllocator{logger: logger, dlog: dlog, business: business}
}

// Allocate derives the payment amount and splits it over the invoices the
// mutation references. No invoice match is not an error: the payment is
// recorded unallocated and reconciled by hand later.
func (a *InvoiceAllocator) Allocate(tx *gorm.DB, m *models.Mutation, party *ResolvedParty) (*Allocation, []models.MatchedInvoice, error) {
	alloc := &Allocation{}

	invoices, err := a.resolveInvoices(tx, m, party)
	if err != nil {
		return nil, nil, err
	}

	alloc.Amount = a.deriveAmount(m, alloc)

	if alloc.Amount.IsZero() {
		a.dlog.Logf("mutation %d: zero amount, recording without allocation", m.ID)
		alloc.Strategy = "none"
		return alloc, invoices, nil
	}
	if len(invoices) == 0 {
		alloc.Strategy = "none"
		alloc.Unallocated = alloc.Amount
		return alloc, invoices, nil
	}

	a.split(m, invoices, alloc)
	a.dlog.Logf("mutation %d: allocated %s over %d invoice(s) using %s", m.ID, alloc.Amount, len(alloc.References), alloc.Strategy)

	a.checkOverpayment(m, invoices, alloc)
	return alloc, invoices, nil
}

// split picks the allocation strategy: positional pairing only when the
// external system broke the payment into exactly one row per invoice,
// oldest-first otherwise.
func (a *InvoiceAllocator) split(m *models.Mutation, invoices []models.MatchedInvoice, alloc *Allocation) {
	if len(m.Rows) == len(invoices) && len(invoices) > 1 {
		alloc.Strategy = "one_to_one"
		a.allocateOneToOne(m, invoices, alloc)
		return
	}
	alloc.Strategy = "fifo"
	a.allocateFIFO(invoices, alloc)
}

// resolveInvoices matches every well-formed reference, deduplicates, and
// orders the result by posting date so FIFO settles oldest invoices first.
func (a *InvoiceAllocator) resolveInvoices(tx *gorm.DB, m *models.Mutation, party *ResolvedParty) ([]models.MatchedInvoice, error) {
	refs := FilterInvoiceReferences(m, a.dlog)
	if len(refs) == 0 {
		return nil, nil
	}

	var matched []models.MatchedInvoice
	for _, ref := range refs {
		var (
			found    []models.MatchedInvoice
			strategy string
			err      error
		)
		if party.Kind == models.PartyKindCustomer {
			found, strategy, err = models.MatchSalesInvoices(tx, a.business.ID, party.CustomerId, ref)
		} else {
			found, strategy, err = models.MatchPurchaseInvoices(tx, a.business.ID, party.SupplierId, ref)
		}
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			a.dlog.Logf("mutation %d: no invoice found for reference %q", m.ID, ref)
			continue
		}
		a.dlog.Logf("mutation %d: reference %q matched %d invoice(s) via %s", m.ID, ref, len(found), strategy)
		matched = append(matched, found...)
	}

	type invoiceKey struct {
		kind models.InvoiceKind
		id   int
	}
	seen := make(map[invoiceKey]bool, len(matched))
	deduped := matched[:0]
	for _, inv := range matched {
		key := invoiceKey{inv.Kind, inv.ID}
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, inv)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].PostingDate.Before(deduped[j].PostingDate)
	})
	return deduped, nil
}

// deriveAmount prefers the row sum over the top-level amount: rows carry the
// ledger-level truth. A discrepancy beyond a cent is flagged but the row sum
// still wins.
func (a *InvoiceAllocator) deriveAmount(m *models.Mutation, alloc *Allocation) decimal.Decimal {
	if len(m.Rows) == 0 {
		return m.TopLevelAmount()
	}

	rowSum := m.RowSum()
	if m.Amount != nil {
		diff := m.TopLevelAmount().Sub(rowSum).Abs()
		if diff.GreaterThan(centTolerance) {
			msg := "row sum " + rowSum.String() + " differs from reported amount " + m.TopLevelAmount().String()
			alloc.Warnings = append(alloc.Warnings, msg)
			a.dlog.Logf("mutation %d: %s", m.ID, msg)
		}
	}
	return rowSum
}

// allocateOneToOne pairs each row with the invoice in the same position.
// Only chosen when row and invoice counts agree and there is more than one
// of each, i.e. the external system split the payment itself.
func (a *InvoiceAllocator) allocateOneToOne(m *models.Mutation, invoices []models.MatchedInvoice, alloc *Allocation) {
	total := decimal.Zero
	for i, inv := range invoices {
		amount := m.Rows[i].Amount.Abs()
		alloc.References = append(alloc.References, models.InvoiceReference{
			InvoiceKind:     inv.Kind,
			InvoiceId:       inv.ID,
			InvoiceNumber:   inv.InvoiceNumber,
			TotalAmount:     inv.GrandTotal,
			AllocatedAmount: amount,
		})
		total = total.Add(amount)
	}
	alloc.Unallocated = alloc.Amount.Sub(total)
	if alloc.Unallocated.IsNegative() {
		alloc.Unallocated = decimal.Zero
	}
}

// allocateFIFO walks the invoices oldest-first, giving each at most its
// grand total until the payment runs out.
func (a *InvoiceAllocator) allocateFIFO(invoices []models.MatchedInvoice, alloc *Allocation) {
	remaining := alloc.Amount
	for _, inv := range invoices {
		if !remaining.IsPositive() {
			break
		}
		amount := decimal.Min(remaining, inv.GrandTotal)
		if !amount.IsPositive() {
			continue
		}
		alloc.References = append(alloc.References, models.InvoiceReference{
			InvoiceKind:     inv.Kind,
			InvoiceId:       inv.ID,
			InvoiceNumber:   inv.InvoiceNumber,
			TotalAmount:     inv.GrandTotal,
			AllocatedAmount: amount,
		})
		remaining = remaining.Sub(amount)
	}
	alloc.Unallocated = remaining
	if remaining.GreaterThan(centTolerance) {
		msg := "unallocated remainder " + remaining.String() + " left on payment"
		alloc.Warnings = append(alloc.Warnings, msg)
		a.dlog.Logf("unallocated remainder %s", remaining)
	}
}

func (a *InvoiceAllocator) checkOverpayment(m *models.Mutation, invoices []models.MatchedInvoice, alloc *Allocation) {
	invoiceTotal := decimal.Zero
	for _, inv := range invoices {
		invoiceTotal = invoiceTotal.Add(inv.GrandTotal)
	}
	if !invoiceTotal.IsPositive() {
		return
	}
	excess := alloc.Amount.Sub(invoiceTotal)
	if excess.GreaterThan(invoiceTotal.Mul(overpaymentRatio)) {
		a.logger.WithFields(logrus.Fields{
			"mutationId":   m.ID,
			"amount":       alloc.Amount.String(),
			"invoiceTotal": invoiceTotal.String(),
		}).Info("payment exceeds matched invoice total by more than 10%")
		a.dlog.Logf("mutation %d: overpayment, %s against invoice total %s", m.ID, alloc.Amount, invoiceTotal)
	}
}
