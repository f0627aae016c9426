package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mesa-digital/api/internal/auth"
	"github.com/mesa-digital/api/internal/config"
	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/enum"
	"github.com/mesa-digital/api/internal/logging"
	"github.com/mesa-digital/api/internal/middleware"
	"github.com/mesa-digital/api/internal/service"
)

type seedUser struct {
	name, username, password, role string
}

type seedProduct struct {
	name, price, description string
	highlight                bool
}

var sampleProducts = []seedProduct{
	{"Chopp Pilsen 300ml", "9.90", "Chopp da casa", true},
	{"Caipirinha", "18.00", "Limão, cachaça e açúcar", false},
	{"Refrigerante lata", "6.50", "", false},
	{"Porção de fritas", "24.90", "Batata frita com cheddar e bacon", true},
	{"Pastel de queijo", "8.00", "", false},
}

func main() {
	// CLI flags
	adminPassword := flag.String("admin-password", "", "Admin password")
	waiterPassword := flag.String("waiter-password", "", "Waiter password")
	tables := flag.Int("tables", 10, "Number of tables to create when none exist")
	migrations := flag.String("migrations", "", "Apply migrations from this directory first (e.g. ./migrations)")
	flag.Parse()

	// Fall back to environment variables, then defaults
	if *adminPassword == "" {
		*adminPassword = envOr("SEED_ADMIN_PASSWORD", "admin")
	}
	if *waiterPassword == "" {
		*waiterPassword = envOr("SEED_WAITER_PASSWORD", "garcom")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.Setup(logging.Options{Production: cfg.IsProduction(), Level: cfg.LogLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := zap.S()

	if *adminPassword == "admin" {
		log.Warn("using default admin password 'admin', change it immediately in production")
	}

	if *migrations != "" {
		if err := migrateUp(*migrations, cfg.DatabaseURL); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("unable to connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("unable to ping database: %v", err)
	}

	// Users, catalog and tables in one transaction
	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	q := database.New(pool).WithTx(tx)
	users := []seedUser{
		{"Administrador", "admin", *adminPassword, enum.UserRoleAdmin},
		{"Garçom", "garcom", *waiterPassword, enum.UserRoleWaiter},
	}
	for _, u := range users {
		if err := seedAccount(ctx, q, u); err != nil {
			log.Fatalf("seed user %s: %v", u.username, err)
		}
	}

	category, err := q.EnsureCategory(ctx, enum.DefaultCategory)
	if err != nil {
		log.Fatalf("seed category: %v", err)
	}
	if err := seedProducts(ctx, q, category.ID); err != nil {
		log.Fatalf("seed products: %v", err)
	}
	if err := seedTables(ctx, q, *tables); err != nil {
		log.Fatalf("seed tables: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("commit: %v", err)
	}

	if err := seedEstablishment(ctx, pool); err != nil {
		log.Fatalf("seed establishment: %v", err)
	}

	log.Info("seed completed successfully")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func migrateUp(dir, databaseURL string) error {
	m, err := migrate.New("file://"+dir, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	version, _, _ := m.Version()
	zap.S().Infof("schema at version %d", version)
	return nil
}

// seedAccount creates the user if the username is free.
func seedAccount(ctx context.Context, q *database.Queries, u seedUser) error {
	existing, err := q.GetUserByUsername(ctx, u.username)
	if err == nil {
		zap.S().Infof("user '%s' already exists (ID: %d), skipping", u.username, existing.ID)
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("check user: %w", err)
	}

	hashed, err := auth.HashPassword(u.password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	created, err := q.CreateUser(ctx, database.CreateUserParams{
		Name:     u.name,
		Username: u.username,
		Password: hashed,
		Role:     u.role,
	})
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	zap.S().Infof("created %s user '%s' (ID: %d)", u.role, u.username, created.ID)
	return nil
}

// seedProducts adds the sample menu to an empty catalog.
func seedProducts(ctx context.Context, q *database.Queries, categoryID int64) error {
	existing, err := q.ListProducts(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		zap.S().Infof("catalog has %d products, skipping", len(existing))
		return nil
	}

	for _, p := range sampleProducts {
		_, err := q.CreateProduct(ctx, database.CreateProductParams{
			Name:        p.name,
			Price:       database.NumericFromDecimal(decimal.RequireFromString(p.price)),
			Description: database.Text(p.description),
			CategoryID:  database.Int8(&categoryID),
			IsHighlight: p.highlight,
		})
		if err != nil {
			return fmt.Errorf("insert %q: %w", p.name, err)
		}
	}
	zap.S().Infof("created %d products in '%s'", len(sampleProducts), enum.DefaultCategory)
	return nil
}

func seedTables(ctx context.Context, q *database.Queries, n int) error {
	existing, err := q.ListTables(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		zap.S().Infof("%d tables exist, skipping", len(existing))
		return nil
	}
	for i := 1; i <= n; i++ {
		if _, err := q.CreateTable(ctx, database.CreateTableParams{
			Number: int32(i),
			Status: enum.TableStatusAvailable,
		}); err != nil {
			return fmt.Errorf("insert table %d: %w", i, err)
		}
	}
	zap.S().Infof("created %d tables", n)
	return nil
}

// seedEstablishment writes the singleton with defaults unless it exists.
func seedEstablishment(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := database.New(pool).GetEstablishment(ctx); err == nil {
		zap.S().Info("establishment already configured, skipping")
		return nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	svc := service.NewEstablishmentService(pool, func(db database.DBTX) service.EstablishmentStore {
		return database.New(db)
	})
	row, err := svc.Update(ctx, service.UpdateEstablishmentRequest{
		Name:          "Mesa",
		ServiceCharge: middleware.DefaultServiceCharge,
		Theme:         service.DefaultTheme,
	})
	if err != nil {
		return err
	}
	zap.S().Infof("created establishment '%s' (ID: %d)", row.Name, row.ID)
	return nil
}
