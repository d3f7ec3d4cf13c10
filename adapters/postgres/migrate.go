package postgres

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/gateway/utils/log"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Migrate applies (or with Down, rolls back) every embedded migration.
func Migrate(dsn string, direction Direction) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	switch direction {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.L().Info("database schema is up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("running migrations %s: %w", direction, err)
	}
	version, dirty, _ := m.Version()
	log.L().Info("database migrated", zap.String("direction", string(direction)), zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

func newMigrator(dsn string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

// migrateURL rewrites a postgres:// DSN to the scheme the pgx v5 migrate
// driver registers.
func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
