package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentRecord is the artifact the migration engine produces: one internal
// payment per external mutation. The unique index on (business_id,
// external_mutation_nr) is the durable backstop behind the duplicate guard.
type PaymentRecord struct {
	ID                 int                 `gorm:"primary_key" json:"id"`
	BusinessId         string              `gorm:"uniqueIndex:idx_payment_record_mutation,priority:1;not null" json:"business_id"`
	ExternalMutationNr string              `gorm:"uniqueIndex:idx_payment_record_mutation,priority:2;size:50;not null" json:"external_mutation_nr"`
	Kind               PaymentKind         `gorm:"size:10;not null;index" json:"kind"`
	CustomerId         int                 `gorm:"index;default:null" json:"customer_id"`
	SupplierId         int                 `gorm:"index;default:null" json:"supplier_id"`
	BankAccountId      int                 `gorm:"not null" json:"bank_account_id"`
	PartyAccountId     int                 `gorm:"not null" json:"party_account_id"`
	Amount             decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"amount"`
	PaymentDate        time.Time           `gorm:"not null" json:"payment_date"`
	ReferenceNo        string              `gorm:"size:255" json:"reference_no"`
	Remarks            string              `gorm:"type:text" json:"remarks"`
	Status             PaymentRecordStatus `gorm:"size:20;not null;default:'Draft';index" json:"status"`
	InvoiceReferences  []InvoiceReference  `json:"invoice_references"`
	CreatedAt          time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type InvoiceReference struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PaymentRecordId int             `gorm:"index;not null" json:"payment_record_id"`
	InvoiceKind     InvoiceKind     `gorm:"size:10;not null" json:"invoice_kind"`
	InvoiceId       int             `gorm:"index;not null" json:"invoice_id"`
	InvoiceNumber   string          `gorm:"size:255" json:"invoice_number"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	AllocatedAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"allocated_amount"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// FindPaymentRecordByMutationNr is the duplicate guard lookup. Equality is on
// the external mutation id alone, never on content: reprocessing the same id
// with different amounts still returns the original record.
func FindPaymentRecordByMutationNr(db *gorm.DB, businessId string, mutationNr string) (*PaymentRecord, error) {
	var record PaymentRecord
	err := db.Preload("InvoiceReferences").
		Where("business_id = ? AND external_mutation_nr = ?", businessId, mutationNr).
		Take(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// AllocatedTotal sums the allocated amounts of all invoice references.
func (p *PaymentRecord) AllocatedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, ref := range p.InvoiceReferences {
		total = total.Add(ref.AllocatedAmount)
	}
	return total
}

func (p *PaymentRecord) validate() error {
	if p.BusinessId == "" {
		return errors.New("business id is required")
	}
	if p.ExternalMutationNr == "" {
		return errors.New("external mutation nr is required")
	}
	if p.Kind != PaymentKindReceive && p.Kind != PaymentKindPay {
		return errors.New("invalid payment kind")
	}
	if p.BankAccountId == 0 || p.PartyAccountId == 0 {
		return errors.New("bank and party accounts are required")
	}
	if p.Amount.IsNegative() {
		return errors.New("amount cannot be negative")
	}
	if p.AllocatedTotal().GreaterThan(p.Amount) {
		return errors.New("allocated total exceeds payment amount")
	}
	return nil
}

// Insert persists the record and its references in Draft state.
func (p *PaymentRecord) Insert(tx *gorm.DB) error {
	if err := p.validate(); err != nil {
		return err
	}
	p.Status = PaymentRecordStatusDraft
	return tx.Create(p).Error
}

// Submit finalizes the record. This is where the accept/reject decision on
// zero-amount payments lives: they stay Draft rather than being rejected
// upstream by the allocator.
func (p *PaymentRecord) Submit(tx *gorm.DB) error {
	if p.ID == 0 {
		return errors.New("payment record not persisted")
	}
	if p.Amount.IsZero() {
		return nil
	}
	p.Status = PaymentRecordStatusSubmitted
	return tx.Model(p).Update("status", PaymentRecordStatusSubmitted).Error
}

// Cancel moves a submitted record into its terminal Cancelled state.
func (p *PaymentRecord) Cancel(tx *gorm.DB) error {
	if p.Status != PaymentRecordStatusSubmitted {
		return errors.New("only submitted payment records can be cancelled")
	}
	p.Status = PaymentRecordStatusCancelled
	return tx.Model(p).Update("status", PaymentRecordStatusCancelled).Error
}
