// Package schema is a runner for ordered forward migrations of the shared
// schema. No migration is registered with it and nothing in this module
// calls it: the shared metadata relation is provisioned at every startup by
// MetadataDAO.EnsureRelation from the DI container, and
// Config.RunMigrations is not read. Per-table relations (item, GSI mirror,
// stream) are provisioned on demand by the Table Manager (spec §4.6).
package schema

import (
	"context"
	"fmt"
)

// Migration applies one forward step of the shared schema.
type Migration struct {
	Version     int
	Description string
	Up          MigrationFunc
}

// MigrationFunc performs a migration step against the configured database.
type MigrationFunc func(ctx context.Context) error

// SchemaEvolution runs a registered, ordered set of forward migrations.
// Rollback is deliberately not modeled: the shared metadata relation's
// schema only ever grows new nullable columns, never needs reverting.
type SchemaEvolution struct {
	currentVersion int
	migrations     []Migration
}

// NewSchemaEvolution creates a schema evolution runner starting at version 0.
func NewSchemaEvolution() *SchemaEvolution {
	return &SchemaEvolution{migrations: []Migration{}}
}

// RegisterMigration registers a migration step. Steps are applied in the
// order registered, independent of Version, which is recorded for logging.
func (s *SchemaEvolution) RegisterMigration(m Migration) error {
	for _, existing := range s.migrations {
		if existing.Version == m.Version {
			return fmt.Errorf("migration version %d already registered", m.Version)
		}
	}
	s.migrations = append(s.migrations, m)
	return nil
}

// Migrate applies every registered migration in order.
func (s *SchemaEvolution) Migrate(ctx context.Context) error {
	for _, m := range s.migrations {
		if err := m.Up(ctx); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		s.currentVersion = m.Version
	}
	return nil
}

// CurrentVersion returns the Version of the most recently applied migration
// (registration order, so not necessarily the highest Version).
func (s *SchemaEvolution) CurrentVersion() int {
	return s.currentVersion
}
