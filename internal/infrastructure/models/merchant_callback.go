package models

import (
	"time"

	"github.com/google/uuid"
)

type MerchantCallback struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	MerchantID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	OrderType   string     `gorm:"type:varchar(20);not null"`
	OrderID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	URL         string     `gorm:"type:varchar(500);not null"`
	Payload     string     `gorm:"type:text;not null"`
	Status      string     `gorm:"type:varchar(20);not null;index"`
	Attempts    int        `gorm:"not null;default:0"`
	NextRetryAt *time.Time `gorm:"index"`
	LastError   *string    `gorm:"type:varchar(500)"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Setting is a generic key/value row for operational cursors such as the
// blockchain sync cursor.
type Setting struct {
	Key       string `gorm:"type:varchar(100);primaryKey"`
	Value     string `gorm:"type:varchar(255);not null"`
	UpdatedAt time.Time
}
