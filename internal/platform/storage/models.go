package storage

import (
	"time"

	"gorm.io/datatypes"
)

// User is the credential row behind an auth identity.
type User struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"type:varchar(200)"`
	Username  string    `gorm:"type:varchar(200);uniqueIndex;not null"`
	Password  string    `gorm:"type:varchar(600);not null"`
	IsActive  bool      `gorm:"not null"`
	CreatedAt time.Time
}

// PaymentType rows are seeded by migration and referenced by receipts.
type PaymentType struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"type:varchar(200);uniqueIndex;not null"`
	CreatedAt time.Time
}

// Receipt stores a purchase. Total is denormalised for filtering.
type Receipt struct {
	ID            int64       `gorm:"primaryKey"`
	UserID        int64       `gorm:"index;not null"`
	PaymentTypeID int64       `gorm:"not null"`
	PaymentType   PaymentType `gorm:"constraint:OnDelete:RESTRICT"`
	Amount        float64     `gorm:"not null"`
	Total         float64     `gorm:"index;not null"`
	CreatedAt     time.Time   `gorm:"index"`
	Products      []Product   `gorm:"constraint:OnDelete:CASCADE"`
}

// Product is a receipt line.
type Product struct {
	ID        int64   `gorm:"primaryKey"`
	ReceiptID int64   `gorm:"index;not null"`
	Name      string  `gorm:"type:varchar(200);not null"`
	Price     float64 `gorm:"not null"`
	Quantity  float64 `gorm:"not null"`
	CreatedAt time.Time
}

// AuthSession holds the live token pair per user for the sqlite session driver.
type AuthSession struct {
	UserID       int64      `gorm:"primaryKey;autoIncrement:false"`
	AccessToken  string     `gorm:"type:text;not null"`
	RefreshToken string     `gorm:"type:text;not null"`
	ExpiresAt    *time.Time `gorm:"index"`
	UpdatedAt    time.Time
}

// DomainEvent is the persisted form of a published auth event.
type DomainEvent struct {
	ID        uint           `gorm:"primaryKey"`
	EventType string         `gorm:"index;not null"`
	UserID    string         `gorm:"index"`
	Data      datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"index"`
}

// Models lists every table managed by AutoMigrate.
func Models() []any {
	return []any{
		&User{},
		&PaymentType{},
		&Receipt{},
		&Product{},
		&AuthSession{},
		&DomainEvent{},
	}
}
