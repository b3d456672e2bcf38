package models

import (
	"time"

	"gorm.io/gorm"
)

type Customer struct {
	ID                   int       `gorm:"primary_key" json:"id"`
	BusinessId           string    `gorm:"index;not null" json:"business_id"`
	Name                 string    `gorm:"index;size:255;not null" json:"name" binding:"required"`
	Email                string    `gorm:"size:255" json:"email"`
	Phone                string    `gorm:"size:50" json:"phone"`
	ExternalRelationCode string    `gorm:"index;size:50" json:"external_relation_code"`
	ReceivableAccountId  int       `gorm:"default:null" json:"receivable_account_id"`
	Provisional          *bool     `gorm:"not null;default:false" json:"provisional"`
	IsActive             *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetCustomer(db *gorm.DB, customerId int) (*Customer, error) {
	var customer Customer
	if err := db.First(&customer, customerId).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// FindCustomerByRelationCode is party resolution tier 1: the exact external
// relation code match.
func FindCustomerByRelationCode(db *gorm.DB, businessId string, relationCode string) (*Customer, error) {
	if relationCode == "" {
		return nil, nil
	}
	var customer Customer
	err := db.Where("business_id = ? AND external_relation_code = ?", businessId, relationCode).
		Order("id").First(&customer).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}

// FindCustomerByNameLike is party resolution tier 2: a substring match
// against existing customer names.
func FindCustomerByNameLike(db *gorm.DB, businessId string, fragment string) (*Customer, error) {
	if fragment == "" {
		return nil, nil
	}
	var customer Customer
	err := db.Where("business_id = ? AND name LIKE ?", businessId, "%"+fragment+"%").
		Order("id").First(&customer).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}
