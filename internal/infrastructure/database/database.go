package database

import (
	"kolo-backend/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open opens a GORM DB from DSN. PreferSimpleProtocol disables prepared
// statement caching to avoid 42P05 ("prepared statement already exists") when
// running behind connection poolers (PgBouncer etc.).
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
}

// AutoMigrate runs migrations for all core models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Identity{},
		&domain.CollateralAccount{},
		&domain.Commitment{},
		&domain.AssetPrice{},
		&domain.Circle{},
		&domain.Member{},
		&domain.CircleEvent{},
		&domain.Contribution{},
		&domain.Bid{},
		&domain.RoundResult{},
		&domain.Repayment{},
		&domain.CreditProfile{},
		&domain.CreditActivity{},
	)
}
