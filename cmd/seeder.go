package cmd

import (
	"errors"
	"fmt"
	"log"
	"time"

	loanDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/loan"
	memberDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/member"
	savingsDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/savings"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample members, vehicles, savings and loans for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		if clearData {
			if err := clearSeedData(db.Gorm); err != nil {
				log.Fatalf("failed to clear data: %v", err)
			}
			fmt.Println("Cleared existing data")
		}

		if err := db.Gorm.Transaction(seedMembers); err != nil {
			log.Fatalf("failed to seed: %v", err)
		}
	},
}

type seedMember struct {
	Name         string
	Phone        string
	Email        string
	SharesPaid   bool
	Registration string
	Savings      int64
	LoanDue      int64
}

var sampleMembers = []seedMember{
	{Name: "Wanjiru Kamau", Phone: "254712345678", Email: "wanjiru@example.com", SharesPaid: true, Registration: "KDA 123A", Savings: 5000},
	{Name: "Otieno Ochieng", Phone: "254722000111", Email: "otieno@example.com", SharesPaid: true, Registration: "KCB 456B", Savings: 1200, LoanDue: 3000},
	{Name: "Achieng Njeri", Phone: "254733222444", SharesPaid: false, Registration: "KBZ 789C"},
}

func seedMembers(tx *gorm.DB) error {
	for _, s := range sampleMembers {
		var vehicle memberDatamodel.Vehicle
		err := tx.Where("registration_number = ?", s.Registration).First(&vehicle).Error
		if err == nil {
			fmt.Println("vehicle already exists; skipping:", s.Registration)
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		member := &memberDatamodel.Member{
			Name:             s.Name,
			PhoneNumber:      s.Phone,
			Email:            s.Email,
			ShareCapitalPaid: s.SharesPaid,
		}
		if err := tx.Create(member).Error; err != nil {
			return fmt.Errorf("insert member %s: %w", s.Name, err)
		}

		vehicle = memberDatamodel.Vehicle{MemberID: member.ID, RegistrationNumber: s.Registration}
		if err := tx.Create(&vehicle).Error; err != nil {
			return fmt.Errorf("insert vehicle %s: %w", s.Registration, err)
		}

		if s.Savings > 0 {
			entry := &savingsDatamodel.Entry{MemberID: member.ID, VehicleID: vehicle.ID, Amount: decimal.NewFromInt(s.Savings)}
			if err := tx.Create(entry).Error; err != nil {
				return fmt.Errorf("insert savings for %s: %w", s.Registration, err)
			}
		}

		if s.LoanDue > 0 {
			issuedAt := time.Now().UTC()
			amount := decimal.NewFromInt(s.LoanDue)
			loan := &loanDatamodel.Loan{
				MemberID:      member.ID,
				VehicleID:     vehicle.ID,
				LoanType:      loanDatamodel.TypeNormal,
				AmountApplied: amount,
				AmountIssued:  amount,
				AmountDue:     amount,
				IssuedAt:      &issuedAt,
			}
			if err := tx.Create(loan).Error; err != nil {
				return fmt.Errorf("insert loan for %s: %w", s.Registration, err)
			}
		}

		fmt.Printf("Seeded member %s (id %d) with vehicle %s (id %d)\n", s.Name, member.ID, s.Registration, vehicle.ID)
	}
	return nil
}

func clearSeedData(db *gorm.DB) error {
	tables := []string{"callback_logs", "payments", "savings", "loans", "pending_transactions", "vehicles", "members"}
	for _, table := range tables {
		if err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)).Error; err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}
