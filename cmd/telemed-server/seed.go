package main

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/ruralcare/telemed/internal/config"
	"github.com/ruralcare/telemed/internal/domain/identity"
	"github.com/ruralcare/telemed/internal/domain/pharmacy"
	"github.com/ruralcare/telemed/internal/platform/apperr"
	"github.com/ruralcare/telemed/internal/platform/auth"
	"github.com/ruralcare/telemed/internal/platform/db"
	"github.com/ruralcare/telemed/internal/platform/events"
)

const demoPassword = "telemed-demo"

var demoUsers = []identity.RegisterInput{
	{Name: "Asha Devi", Email: "asha@demo.local", Role: auth.RolePatient, Phone: "9800000001", Age: 34, Village: "Nabha"},
	{Name: "Dr. Kiran Rao", Email: "kiran.rao@demo.local", Role: auth.RoleDoctor, Phone: "9800000002",
		Specialization: "General Physician", Qualification: "MBBS", Availability: "Mon-Fri 10:00-16:00"},
	{Name: "Nabha Medicals", Email: "store@demo.local", Role: auth.RolePharmacy, Phone: "9800000003"},
}

type demoMedicine struct {
	name, generic, category, form string
	price, mrp                    int64
	quantity                      int
	prescription                  bool
}

var demoCatalog = []demoMedicine{
	{"Paracetamol 500mg", "Paracetamol", "tablet", "tablet", 20, 25, 200, false},
	{"Amoxicillin 250mg", "Amoxicillin", "capsule", "capsule", 60, 75, 80, true},
	{"ORS Sachet", "Oral rehydration salts", "powder", "sachet", 15, 18, 300, false},
	{"Cetirizine 10mg", "Cetirizine", "tablet", "tablet", 30, 35, 120, false},
	{"Cough Syrup 100ml", "Dextromethorphan", "syrup", "liquid", 85, 99, 5, false},
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create demo users, a pharmacy and its catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			users := identity.NewUserRepoPG(pool)
			identitySvc := identity.NewService(users, auth.NewTokenIssuer(cfg.Secret(), cfg.TokenTTL), logger)
			pharmacySvc := pharmacy.NewService(
				pharmacy.NewPharmacyRepoPG(pool),
				pharmacy.NewMedicineRepoPG(pool),
				pharmacy.NewCartRepoPG(pool),
				pharmacy.NewOrderRepoPG(pool),
				db.NewTxRunner(pool),
				events.Nop,
				pharmacy.DefaultConfig(),
				logger,
			)

			created := make(map[string]*identity.User, len(demoUsers))
			for _, in := range demoUsers {
				in.Password = demoPassword
				u, err := identitySvc.Register(ctx, in)
				if apperr.HasCode(err, apperr.CodeEmailTaken) {
					fmt.Printf("%-9s %s already exists, skipping\n", in.Role, in.Email)
					if u, err = users.GetByEmail(ctx, in.Email); err != nil {
						return err
					}
					created[in.Role] = u
					continue
				}
				if err != nil {
					return fmt.Errorf("seed %s: %w", in.Email, err)
				}
				created[in.Role] = u
				fmt.Printf("%-9s %s (%s)\n", in.Role, u.Email, u.ID)
			}

			owner := created[auth.RolePharmacy]
			store, err := pharmacySvc.CreatePharmacy(ctx, owner.ID, pharmacy.PharmacyInput{
				Name:              lo.ToPtr("Nabha Medicals"),
				Location:          lo.ToPtr("Nabha"),
				Address:           lo.ToPtr("Main Bazaar, Nabha, Punjab"),
				Contact:           lo.ToPtr("9800000003"),
				DeliveryAvailable: lo.ToPtr(true),
			})
			if apperr.HasCode(err, apperr.CodeDuplicate) {
				fmt.Println("pharmacy already exists, catalog left untouched")
				return nil
			}
			if err != nil {
				return fmt.Errorf("seed pharmacy: %w", err)
			}
			fmt.Printf("pharmacy  %s (%s)\n", store.Name, store.ID)

			expiry := time.Now().AddDate(1, 0, 0)
			for _, d := range demoCatalog {
				med, err := pharmacySvc.AddMedicine(ctx, owner.ID, pharmacy.MedicineInput{
					Name:                 lo.ToPtr(d.name),
					GenericName:          lo.ToPtr(d.generic),
					Category:             lo.ToPtr(d.category),
					Form:                 lo.ToPtr(d.form),
					Price:                lo.ToPtr(decimal.NewFromInt(d.price)),
					MRP:                  lo.ToPtr(decimal.NewFromInt(d.mrp)),
					Quantity:             lo.ToPtr(d.quantity),
					ExpiryDate:           &expiry,
					PrescriptionRequired: lo.ToPtr(d.prescription),
				})
				if err != nil {
					return fmt.Errorf("seed %s: %w", d.name, err)
				}
				fmt.Printf("medicine  %-20s qty=%d\n", med.Name, med.Quantity)
			}

			fmt.Printf("\nDemo password for all users: %s\n", demoPassword)
			return nil
		},
	}
}
