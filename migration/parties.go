package migration

import (
	"fmt"
	"strings"

	"github.com/nlvegan/boekhouden_migration/config"
	"github.com/nlvegan/boekhouden_migration/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ResolvedParty is the outcome of party resolution for one mutation.
type ResolvedParty struct {
	Kind       models.PartyKind
	CustomerId int
	SupplierId int
	Name       string
	// Provisional is set when the party was created during this run and
	// still needs enrichment with full relation details.
	Provisional bool
}

// PartyResolver finds or creates the customer/supplier a payment belongs
// to. Provisional parties created inside a scope are queued for enrichment
// in the same scope so the queue row disappears with a rollback; the pubsub
// notification is deferred until after the batch commit via PendingNotices.
type PartyResolver struct {
	logger   *logrus.Logger
	dlog     *DebugLog
	business *models.Business

	// relation codes queued for enrichment, drained by the engine after a
	// successful commit
	pendingNotices []models.PartyEnrichmentQueueItem
}

func NewPartyResolver(logger *logrus.Logger, dlog *DebugLog, business *models.Business) *PartyResolver {
	return &PartyResolver{logger: logger, dlog: dlog, business: business}
}

// Resolve maps the mutation's relation code to a party, falling back to a
// substring name match and finally to provisional creation. A mutation
// without a relation code resolves to the company default customer when
// money comes in; outgoing money with no relation is unresolvable.
func (r *PartyResolver) Resolve(tx *gorm.DB, m *models.Mutation) (*ResolvedParty, error) {
	kind := m.PartyKind()

	if m.RelationId == "" {
		if kind == models.PartyKindCustomer {
			return r.defaultCustomer(tx, m.ID)
		}
		resErr := &ResolutionError{MutationID: m.ID, What: "supplier", Reason: "no relation id on outgoing payment"}
		config.LogError(r.logger, "parties.go", "Resolve", "NoRelation", m.ID, resErr)
		return nil, resErr
	}

	if kind == models.PartyKindCustomer {
		return r.resolveCustomer(tx, m)
	}
	return r.resolveSupplier(tx, m)
}

func (r *PartyResolver) resolveCustomer(tx *gorm.DB, m *models.Mutation) (*ResolvedParty, error) {
	customer, err := models.FindCustomerByRelationCode(tx, r.business.ID, m.RelationId)
	if err != nil {
		return nil, err
	}
	if customer != nil {
		r.dlog.Logf("mutation %d: customer %d matched on relation code %s", m.ID, customer.ID, m.RelationId)
		return &ResolvedParty{Kind: models.PartyKindCustomer, CustomerId: customer.ID, Name: customer.Name}, nil
	}

	if fragment := partyNameFragment(m.Description); fragment != "" {
		customer, err = models.FindCustomerByNameLike(tx, r.business.ID, fragment)
		if err != nil {
			return nil, err
		}
		if customer != nil {
			r.dlog.Logf("mutation %d: customer %d matched on name fragment %q", m.ID, customer.ID, fragment)
			return &ResolvedParty{Kind: models.PartyKindCustomer, CustomerId: customer.ID, Name: customer.Name}, nil
		}
	}

	name := provisionalCustomerName(m.RelationId)
	provisional := true
	customer = &models.Customer{
		BusinessId:           r.business.ID,
		Name:                 name,
		ExternalRelationCode: m.RelationId,
		ReceivableAccountId:  r.business.DefaultReceivableAccountId,
		Provisional:          &provisional,
	}
	if err := tx.Create(customer).Error; err != nil {
		return nil, err
	}
	r.dlog.Logf("mutation %d: created provisional customer %d (%s)", m.ID, customer.ID, name)
	r.enqueueEnrichment(tx, m.ID, models.PartyKindCustomer, customer.ID, m.RelationId)
	return &ResolvedParty{Kind: models.PartyKindCustomer, CustomerId: customer.ID, Name: name, Provisional: true}, nil
}

func (r *PartyResolver) resolveSupplier(tx *gorm.DB, m *models.Mutation) (*ResolvedParty, error) {
	supplier, err := models.FindSupplierByRelationCode(tx, r.business.ID, m.RelationId)
	if err != nil {
		return nil, err
	}
	if supplier != nil {
		r.dlog.Logf("mutation %d: supplier %d matched on relation code %s", m.ID, supplier.ID, m.RelationId)
		return &ResolvedParty{Kind: models.PartyKindSupplier, SupplierId: supplier.ID, Name: supplier.Name}, nil
	}

	fragment := partyNameFragment(m.Description)
	if fragment != "" {
		supplier, err = models.FindSupplierByNameLike(tx, r.business.ID, fragment)
		if err != nil {
			return nil, err
		}
		if supplier != nil {
			r.dlog.Logf("mutation %d: supplier %d matched on name fragment %q", m.ID, supplier.ID, fragment)
			return &ResolvedParty{Kind: models.PartyKindSupplier, SupplierId: supplier.ID, Name: supplier.Name}, nil
		}
	}

	name := provisionalSupplierName(m.RelationId, fragment)
	provisional := true
	supplier = &models.Supplier{
		BusinessId:           r.business.ID,
		Name:                 name,
		ExternalRelationCode: m.RelationId,
		PayableAccountId:     r.business.DefaultPayableAccountId,
		Provisional:          &provisional,
	}
	if err := tx.Create(supplier).Error; err != nil {
		return nil, err
	}
	r.dlog.Logf("mutation %d: created provisional supplier %d (%s)", m.ID, supplier.ID, name)
	r.enqueueEnrichment(tx, m.ID, models.PartyKindSupplier, supplier.ID, m.RelationId)
	return &ResolvedParty{Kind: models.PartyKindSupplier, SupplierId: supplier.ID, Name: name, Provisional: true}, nil
}

func (r *PartyResolver) defaultCustomer(tx *gorm.DB, mutationId int) (*ResolvedParty, error) {
	if r.business.DefaultCustomerId == 0 {
		resErr := &ResolutionError{MutationID: mutationId, What: "customer", Reason: "no relation id and no default customer configured"}
		config.LogError(r.logger, "parties.go", "defaultCustomer", "NoDefault", mutationId, resErr)
		return nil, resErr
	}
	customer, err := models.GetCustomer(tx, r.business.DefaultCustomerId)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			resErr := &ResolutionError{MutationID: mutationId, What: "customer", Reason: "default customer does not exist"}
			return nil, resErr
		}
		return nil, err
	}
	r.dlog.Logf("mutation %d: no relation id, using default customer %d", mutationId, customer.ID)
	return &ResolvedParty{Kind: models.PartyKindCustomer, CustomerId: customer.ID, Name: customer.Name}, nil
}

// enqueueEnrichment writes the queue row inside the current scope so it is
// rolled back together with the provisional party. Creation failure is
// logged and swallowed: enrichment is best-effort and must never fail the
// payment.
func (r *PartyResolver) enqueueEnrichment(tx *gorm.DB, mutationId int, kind models.PartyKind, partyId int, relationCode string) {
	item := models.PartyEnrichmentQueueItem{
		BusinessId:   r.business.ID,
		PartyKind:    kind,
		PartyId:      partyId,
		RelationCode: relationCode,
		Status:       models.EnrichmentStatusPending,
	}
	if err := tx.Create(&item).Error; err != nil {
		config.LogError(r.logger, "parties.go", "enqueueEnrichment", "Create", relationCode, err)
		return
	}
	r.pendingNotices = append(r.pendingNotices, item)
}

// PendingNotices returns the enrichment rows queued since the last drain and
// resets the buffer. The engine publishes these after a commit; on rollback
// it calls DiscardNotices instead.
func (r *PartyResolver) PendingNotices() []models.PartyEnrichmentQueueItem {
	notices := r.pendingNotices
	r.pendingNotices = nil
	return notices
}

func (r *PartyResolver) DiscardNotices() {
	r.pendingNotices = nil
}

func provisionalCustomerName(relationCode string) string {
	return fmt.Sprintf("Customer %s (import)", relationCode)
}

func provisionalSupplierName(relationCode string, fragment string) string {
	if fragment != "" {
		return fragment
	}
	return fmt.Sprintf("Supplier %s (import)", relationCode)
}

// partyNameFragment extracts a usable name fragment from a bank statement
// description. Structured payment descriptions carry the counterparty name
// after a "Name:" label; otherwise a description that looks like plain text
// (no digits-only tokens, reasonable length) is used as-is.
func partyNameFragment(description string) string {
	desc := strings.TrimSpace(description)
	if desc == "" {
		return ""
	}

	lower := strings.ToLower(desc)
	if idx := strings.Index(lower, "name:"); idx >= 0 {
		rest := desc[idx+len("name:"):]
		if end := strings.IndexAny(rest, ",;\n"); end >= 0 {
			rest = rest[:end]
		}
		return strings.TrimSpace(rest)
	}

	if len(desc) > 80 {
		return ""
	}
	for _, r := range desc {
		if r >= '0' && r <= '9' {
			return ""
		}
	}
	return desc
}
