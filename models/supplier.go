package models

import (
	"time"

	"gorm.io/gorm"
)

type Supplier struct {
	ID                   int       `gorm:"primary_key" json:"id"`
	BusinessId           string    `gorm:"index;not null" json:"business_id"`
	Name                 string    `gorm:"index;size:255;not null" json:"name" binding:"required"`
	Email                string    `gorm:"size:255" json:"email"`
	Phone                string    `gorm:"size:50" json:"phone"`
	ExternalRelationCode string    `gorm:"index;size:50" json:"external_relation_code"`
	PayableAccountId     int       `gorm:"default:null" json:"payable_account_id"`
	Provisional          *bool     `gorm:"not null;default:false" json:"provisional"`
	IsActive             *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetSupplier(db *gorm.DB, supplierId int) (*Supplier, error) {
	var supplier Supplier
	if err := db.First(&supplier, supplierId).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}

func FindSupplierByRelationCode(db *gorm.DB, businessId string, relationCode string) (*Supplier, error) {
	if relationCode == "" {
		return nil, nil
	}
	var supplier Supplier
	err := db.Where("business_id = ? AND external_relation_code = ?", businessId, relationCode).
		Order("id").First(&supplier).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &supplier, nil
}

func FindSupplierByNameLike(db *gorm.DB, businessId string, fragment string) (*Supplier, error) {
	if fragment == "" {
		return nil, nil
	}
	var supplier Supplier
	err := db.Where("business_id = ? AND name LIKE ?", businessId, "%"+fragment+"%").
		Order("id").First(&supplier).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &supplier, nil
}
