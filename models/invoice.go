package models

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SalesInvoice and PurchaseInvoice are read-only collaborators here: the
// engine looks them up to allocate payments against them but never writes
// them. Outstanding balances are deliberately NOT used as a lookup filter —
// the external mutation, not a possibly stale internal balance, is the
// source of truth for allocation.
type SalesInvoice struct {
	ID                     int             `gorm:"primary_key" json:"id"`
	BusinessId             string          `gorm:"index;not null" json:"business_id"`
	CustomerId             int             `gorm:"index;not null" json:"customer_id"`
	InvoiceNumber          string          `gorm:"index;size:255;not null" json:"invoice_number"`
	ExternalInvoiceNumber  string          `gorm:"index;size:100" json:"external_invoice_number"`
	ExternalMutationNr     string          `gorm:"index;size:50" json:"external_mutation_nr"`
	InvoiceDate            time.Time       `gorm:"not null" json:"invoice_date"`
	GrandTotal             decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"grand_total"`
	RemainingBalance       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"remaining_balance"`
	ReceivableAccountId    int             `gorm:"default:null" json:"receivable_account_id"`
	CreatedAt              time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseInvoice struct {
	ID                    int             `gorm:"primary_key" json:"id"`
	BusinessId            string          `gorm:"index;not null" json:"business_id"`
	SupplierId            int             `gorm:"index;not null" json:"supplier_id"`
	InvoiceNumber         string          `gorm:"index;size:255;not null" json:"invoice_number"`
	ExternalInvoiceNumber string          `gorm:"index;size:100" json:"external_invoice_number"`
	ExternalMutationNr    string          `gorm:"index;size:50" json:"external_mutation_nr"`
	InvoiceDate           time.Time       `gorm:"not null" json:"invoice_date"`
	GrandTotal            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"grand_total"`
	RemainingBalance      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"remaining_balance"`
	PayableAccountId      int             `gorm:"default:null" json:"payable_account_id"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// MatchedInvoice is the allocator's view of a resolved invoice, independent
// of which side (sales or purchase) it came from.
type MatchedInvoice struct {
	Kind          InvoiceKind
	ID            int
	InvoiceNumber string
	GrandTotal    decimal.Decimal
	Outstanding   decimal.Decimal
	PostingDate   time.Time
	// PartyAccountId is the receivable/payable account the invoice was
	// posted against, when it specifies one.
	PartyAccountId int
}

func matchedFromSales(inv SalesInvoice) MatchedInvoice {
	return MatchedInvoice{
		Kind:           InvoiceKindSales,
		ID:             inv.ID,
		InvoiceNumber:  inv.InvoiceNumber,
		GrandTotal:     inv.GrandTotal,
		Outstanding:    inv.RemainingBalance,
		PostingDate:    inv.InvoiceDate,
		PartyAccountId: inv.ReceivableAccountId,
	}
}

func matchedFromPurchase(inv PurchaseInvoice) MatchedInvoice {
	return MatchedInvoice{
		Kind:           InvoiceKindPurchase,
		ID:             inv.ID,
		InvoiceNumber:  inv.InvoiceNumber,
		GrandTotal:     inv.GrandTotal,
		Outstanding:    inv.RemainingBalance,
		PostingDate:    inv.InvoiceDate,
		PartyAccountId: inv.PayableAccountId,
	}
}

// MatchSalesInvoices resolves one external invoice reference for a customer.
// Strategies are tried in order; the name of the strategy that hit is
// returned for the debug log:
//  1. external mutation number (numeric references only)
//  2. external invoice number
//  3. exact invoice number
//  4. substring on invoice number (last resort, single result)
func MatchSalesInvoices(db *gorm.DB, businessId string, customerId int, ref string) ([]MatchedInvoice, string, error) {
	base := func() *gorm.DB {
		return db.Where("business_id = ? AND customer_id = ?", businessId, customerId)
	}

	if _, err := strconv.Atoi(ref); err == nil {
		var invoices []SalesInvoice
		if err := base().Where("external_mutation_nr = ?", ref).Find(&invoices).Error; err != nil {
			return nil, "", err
		}
		if len(invoices) > 0 {
			return salesToMatched(invoices), "external_mutation_nr", nil
		}
	}

	var invoices []SalesInvoice
	if err := base().Where("external_invoice_number = ?", ref).Find(&invoices).Error; err != nil {
		return nil, "", err
	}
	if len(invoices) > 0 {
		return salesToMatched(invoices), "external_invoice_number", nil
	}

	if err := base().Where("invoice_number = ?", ref).Find(&invoices).Error; err != nil {
		return nil, "", err
	}
	if len(invoices) > 0 {
		return salesToMatched(invoices), "invoice_number", nil
	}

	if err := base().Where("invoice_number LIKE ?", "%"+ref+"%").Limit(1).Find(&invoices).Error; err != nil {
		return nil, "", err
	}
	if len(invoices) > 0 {
		return salesToMatched(invoices), "substring", nil
	}

	return nil, "", nil
}

// MatchPurchaseInvoices is the supplier-side counterpart of
// MatchSalesInvoices.
func MatchPurchaseInvoices(db *gorm.DB, businessId string, supplierId int, ref string) ([]MatchedInvoice, string, error) {
	base := func() *gorm.DB {
		return db.Where("business_id = ? AND supplier_id = ?", businessId, supplierId)
	}

	if _, err := strconv.Atoi(ref); err == nil {
		var invoices []PurchaseInvoice
		if err := base().Where("external_mutation_nr = ?", ref).Find(&invoices).Error; err != nil {
			return nil, "", err
		}
		if len(invoices) > 0 {
			return purchaseToMatched(invoices), "external_mutation_nr", nil
		}
	}

	var invoices []PurchaseInvoice
	if err := base().Where("external_invoice_number = ?", ref).Find(&invoices).Error; err != nil {
		return nil, "", err
	}
	if len(invoices) > 0 {
		return purchaseToMatched(invoices), "external_invoice_number", nil
	}

	if err := base().Where("invoice_number = ?", ref).Find(&invoices).Error; err != nil {
		return nil, "", err
	}
	if len(invoices) > 0 {
		return purchaseToMatched(invoices), "invoice_number", nil
	}

	if err := base().Where("invoice_number LIKE ?", "%"+ref+"%").Limit(1).Find(&invoices).Error; err != nil {
		return nil, "", err
	}
	if len(invoices) > 0 {
		return purchaseToMatched(invoices), "substring", nil
	}

	return nil, "", nil
}

func salesToMatched(invoices []SalesInvoice) []MatchedInvoice {
	out := make([]MatchedInvoice, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, matchedFromSales(inv))
	}
	return out
}

func purchaseToMatched(invoices []PurchaseInvoice) []MatchedInvoice {
	out := make([]MatchedInvoice, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, matchedFromPurchase(inv))
	}
	return out
}
