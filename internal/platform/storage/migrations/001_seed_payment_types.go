package migrations

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var seededPaymentTypes = []string{"cash", "credit_card"}

// Migration001SeedPaymentTypes inserts the payment types accepted by receipts.
type Migration001SeedPaymentTypes struct{}

func (m *Migration001SeedPaymentTypes) Version() string {
	return "001_seed_payment_types"
}

func (m *Migration001SeedPaymentTypes) Description() string {
	return "Seed cash and credit_card payment types"
}

func (m *Migration001SeedPaymentTypes) Up(db *gorm.DB) error {
	now := time.Now()
	rows := make([]map[string]any, 0, len(seededPaymentTypes))
	for _, name := range seededPaymentTypes {
		rows = append(rows, map[string]any{"name": name, "created_at": now})
	}
	return db.Table("payment_types").
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(rows).Error
}

func (m *Migration001SeedPaymentTypes) Down(db *gorm.DB) error {
	return db.Exec(`DELETE FROM payment_types WHERE name IN ?`, seededPaymentTypes).Error
}
