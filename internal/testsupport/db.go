// Package testsupport opens throwaway in-memory databases shaped like the
// production schema.
package testsupport

import (
	"fmt"
	"time"

	callbackLogDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/callbacklog"
	loanDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/loan"
	memberDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/member"
	paymentDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/payment"
	savingsDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/savings"
	transactionDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/transaction"
	"github.com/jmoiron/sqlx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenSQLite returns a single-connection in-memory database with every table
// migrated. One connection keeps the in-memory schema shared across queries.
func OpenSQLite() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&memberDatamodel.Member{},
		&memberDatamodel.Vehicle{},
		&transactionDatamodel.PendingTransaction{},
		&loanDatamodel.Loan{},
		&savingsDatamodel.Entry{},
		&paymentDatamodel.Payment{},
		&callbackLogDatamodel.CallbackLog{},
	)
	if err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	err = db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS loans_one_outstanding_per_vehicle ON loans (vehicle_id) WHERE amount_issued > 0 AND amount_due > 0").Error
	if err != nil {
		return nil, fmt.Errorf("outstanding loan index: %w", err)
	}
	return db, nil
}

// SQLX wraps the same connection pool for the sqlx based readers.
func SQLX(db *gorm.DB) (*sqlx.DB, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	return sqlx.NewDb(sqlDB, "sqlite3"), nil
}

func SeedMember(db *gorm.DB, name string, shareCapitalPaid bool) (*memberDatamodel.Member, error) {
	m := &memberDatamodel.Member{Name: name, PhoneNumber: "254712345678", ShareCapitalPaid: shareCapitalPaid}
	if err := db.Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func SeedVehicle(db *gorm.DB, memberID int64, registration string) (*memberDatamodel.Vehicle, error) {
	v := &memberDatamodel.Vehicle{MemberID: memberID, RegistrationNumber: registration}
	if err := db.Create(v).Error; err != nil {
		return nil, err
	}
	return v, nil
}
