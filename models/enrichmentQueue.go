package models

import (
	"time"

	"gorm.io/gorm"
)

// PartyEnrichmentQueueItem marks a provisional party for later enrichment
// with full relation details from the external system. Enrichment is
// best-effort and runs outside any migration scope.
type PartyEnrichmentQueueItem struct {
	ID           int        `gorm:"primary_key" json:"id"`
	BusinessId   string     `gorm:"index;not null" json:"business_id"`
	PartyKind    PartyKind  `gorm:"size:10;not null" json:"party_kind"`
	PartyId      int        `gorm:"index;not null" json:"party_id"`
	RelationCode string     `gorm:"size:50;not null" json:"relation_code"`
	Status       string     `gorm:"size:20;not null;default:'pending';index" json:"status"`
	LastError    *string    `gorm:"type:text" json:"last_error"`
	ProcessedAt  *time.Time `json:"processed_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func PendingEnrichmentItems(db *gorm.DB, businessId string, limit int) ([]PartyEnrichmentQueueItem, error) {
	var items []PartyEnrichmentQueueItem
	q := db.Where("business_id = ? AND status = ?", businessId, EnrichmentStatusPending).Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (item *PartyEnrichmentQueueItem) MarkDone(db *gorm.DB) error {
	now := time.Now()
	return db.Model(item).Updates(map[string]interface{}{
		"status":       EnrichmentStatusDone,
		"last_error":   nil,
		"processed_at": &now,
	}).Error
}

func (item *PartyEnrichmentQueueItem) MarkFailed(db *gorm.DB, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	now := time.Now()
	return db.Model(item).Updates(map[string]interface{}{
		"status":       EnrichmentStatusFailed,
		"last_error":   &msg,
		"processed_at": &now,
	}).Error
}
