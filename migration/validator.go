package migration

import (
	"github.com/nlvegan/boekhouden_migration/models"
)

// ValidateMutation checks the structural requirements before any scope is
// opened. A nil return means "process it"; a *ValidationError means "skip
// it" — batches are never aborted by a bad mutation.
func ValidateMutation(m *models.Mutation) *ValidationError {
	if m.ID == 0 {
		return &ValidationError{MutationID: m.ID, Reason: "missing mutation id"}
	}
	if !m.IsRecognizedType() {
		return &ValidationError{MutationID: m.ID, Reason: "unrecognized mutation type " + string(m.Type)}
	}
	if !m.IsPaymentType() {
		return &ValidationError{MutationID: m.ID, Reason: "not a payment type: " + string(m.Type)}
	}
	if m.Date.IsZero() {
		return &ValidationError{MutationID: m.ID, Reason: "missing date"}
	}
	if m.Amount == nil && len(m.Rows) == 0 {
		return &ValidationError{MutationID: m.ID, Reason: "neither amount nor rows present"}
	}
	return nil
}

// FilterInvoiceReferences drops references that fail the conservative shape
// check, logging each drop. Malformed references never fail the mutation.
func FilterInvoiceReferences(m *models.Mutation, dlog *DebugLog) []string {
	refs := m.InvoiceNumbers()
	kept := refs[:0:0]
	for _, ref := range refs {
		if !models.IsValidInvoiceReference(ref) {
			dlog.Logf("mutation %d: dropping malformed invoice reference %q", m.ID, ref)
			continue
		}
		kept = append(kept, ref)
	}
	return kept
}
