package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Business carries the per-tenant migration defaults: the accounts the
// resolver chain falls back to and the catch-all customer used when an
// incoming payment has no relation id.
type Business struct {
	ID                          string    `gorm:"type:varchar(36);primary_key" json:"id"`
	Name                        string    `gorm:"size:255;not null" json:"name"`
	BaseCurrencyId              int       `gorm:"not null" json:"base_currency_id"`
	Timezone                    string    `gorm:"size:100" json:"timezone"`
	PrimaryBankAccountId        int       `gorm:"default:null" json:"primary_bank_account_id"`
	DefaultCashAccountId        int       `gorm:"default:null" json:"default_cash_account_id"`
	DefaultReceivableAccountId  int       `gorm:"default:null" json:"default_receivable_account_id"`
	DefaultPayableAccountId     int       `gorm:"default:null" json:"default_payable_account_id"`
	DefaultCustomerId           int       `gorm:"default:null" json:"default_customer_id"`
	CreatedAt                   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetBusinessById(db *gorm.DB, businessId string) (*Business, error) {
	if businessId == "" {
		return nil, errors.New("business id is required")
	}
	var business Business
	if err := db.Where("id = ?", businessId).Take(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}
