package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type Account struct {
	ID            int               `gorm:"primary_key" json:"id"`
	BusinessId    string            `gorm:"index;not null" json:"business_id"`
	DetailType    AccountDetailType `gorm:"index;size:50;not null" json:"detail_type" binding:"required"`
	Name          string            `gorm:"index;size:100;not null" json:"name" binding:"required"`
	AccountNumber string            `gorm:"index;size:100" json:"account_number"`
	CurrencyId    int               `gorm:"index" json:"currency_id"`
	IsGroup       *bool             `gorm:"not null;default:false" json:"is_group"`
	IsActive      *bool             `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// AccountPattern maps a known bank-name fragment ("triodos", "paypal", ...)
// to the banking account it denotes. Used as resolution tier 3: a
// case-insensitive substring match against the mutation description.
type AccountPattern struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Pattern    string    `gorm:"size:100;not null" json:"pattern"`
	AccountId  int       `gorm:"not null" json:"account_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *Account) IsBankOrCash() bool {
	return a.DetailType == AccountDetailTypeBank || a.DetailType == AccountDetailTypeCash
}

func GetAccount(db *gorm.DB, accountId int) (*Account, error) {
	var account Account
	if err := db.First(&account, accountId).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// MatchAccountPattern returns the first pattern account whose pattern occurs
// in the description (case-insensitive), skipping inactive accounts.
func MatchAccountPattern(db *gorm.DB, businessId string, description string) (*Account, error) {
	if strings.TrimSpace(description) == "" {
		return nil, nil
	}
	var patterns []AccountPattern
	if err := db.Where("business_id = ?", businessId).Order("id").Find(&patterns).Error; err != nil {
		return nil, err
	}
	descLower := strings.ToLower(description)
	for _, p := range patterns {
		if p.Pattern == "" || !strings.Contains(descLower, strings.ToLower(p.Pattern)) {
			continue
		}
		account, err := GetAccount(db, p.AccountId)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				continue
			}
			return nil, err
		}
		if account.IsActive != nil && !*account.IsActive {
			continue
		}
		return account, nil
	}
	return nil, nil
}

// FindActiveBankAccount returns any active non-group bank account.
func FindActiveBankAccount(db *gorm.DB, businessId string) (*Account, error) {
	var account Account
	err := db.Where("business_id = ? AND detail_type = ? AND is_group = ? AND is_active = ?",
		businessId, AccountDetailTypeBank, false, true).
		Order("id").First(&account).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// FindAccountByDetailType returns the first active account of a detail type.
// Used as the last-resort company-wide receivable/payable fallback.
func FindAccountByDetailType(db *gorm.DB, businessId string, detailType AccountDetailType) (*Account, error) {
	var account Account
	err := db.Where("business_id = ? AND detail_type = ? AND is_active = ?", businessId, detailType, true).
		Order("id").First(&account).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}
