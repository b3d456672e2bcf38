package models

import (
	"time"

	"gorm.io/gorm"
)

// LedgerMapping links an external ledger id to an internal account. Mappings
// are created ahead of a migration (during chart-of-accounts setup) and are
// read-only while mutations are being processed.
type LedgerMapping struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"uniqueIndex:idx_ledger_mapping,priority:1;not null" json:"business_id"`
	LedgerId   int       `gorm:"uniqueIndex:idx_ledger_mapping,priority:2;not null" json:"ledger_id"`
	LedgerCode string    `gorm:"index;size:50" json:"ledger_code"`
	LedgerName string    `gorm:"size:255" json:"ledger_name"`
	AccountId  int       `gorm:"default:null" json:"account_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PaymentMethodConfig is resolution tier 2: a payment account keyed by the
// external ledger code (not id), for ledgers whose mapping points at a
// non-banking account.
type PaymentMethodConfig struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"uniqueIndex:idx_payment_method_config,priority:1;not null" json:"business_id"`
	LedgerCode string    `gorm:"uniqueIndex:idx_payment_method_config,priority:2;size:50;not null" json:"ledger_code"`
	AccountId  int       `gorm:"not null" json:"account_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetLedgerMapping(db *gorm.DB, businessId string, ledgerId int) (*LedgerMapping, error) {
	var mapping LedgerMapping
	err := db.Where("business_id = ? AND ledger_id = ?", businessId, ledgerId).Take(&mapping).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &mapping, nil
}

func GetPaymentMethodConfig(db *gorm.DB, businessId string, ledgerCode string) (*PaymentMethodConfig, error) {
	if ledgerCode == "" {
		return nil, nil
	}
	var cfg PaymentMethodConfig
	err := db.Where("business_id = ? AND ledger_code = ?", businessId, ledgerCode).Take(&cfg).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}
