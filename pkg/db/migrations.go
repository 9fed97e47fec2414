package db

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration represents a single database migration file.
type Migration struct {
	Version string
	Name    string
	Path    string
}

// MigrationResult holds the result of a migration run.
type MigrationResult struct {
	Applied []string
	Skipped []string
	Errors  []error
}

// MigrationStatusEntry represents a single migration in a status report.
type MigrationStatusEntry struct {
	Version   string     `json:"version" yaml:"version"`
	Name      string     `json:"name" yaml:"name"`
	AppliedAt *time.Time `json:"applied_at,omitempty" yaml:"applied_at,omitempty"` // nil for pending
}

// MigrationStatus represents the complete status of migrations.
type MigrationStatus struct {
	Applied []MigrationStatusEntry `json:"applied" yaml:"applied"` // applied and has file
	Pending []MigrationStatusEntry `json:"pending" yaml:"pending"` // has file but not applied
	Drift   []MigrationStatusEntry `json:"drift" yaml:"drift"`     // applied but no file
}

// RunMigrations executes every .sql migration of fsys that has not been
// applied yet. Files run in lexical order (use numeric prefixes like 001_).
// Applied versions are tracked in schema_migrations.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) (*MigrationResult, error) {
	return runMigrations(ctx, pool, fsys, "")
}

// RunMigrationsToTarget executes migrations up to and including the target
// version. Already-applied migrations are skipped.
func RunMigrationsToTarget(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, targetVersion string) (*MigrationResult, error) {
	if targetVersion == "" {
		return nil, fmt.Errorf("target version is required")
	}
	return runMigrations(ctx, pool, fsys, normalizeVersion(targetVersion))
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, target string) (*MigrationResult, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	migrations, err := findMigrations(fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to find migrations: %w", err)
	}

	last := len(migrations) - 1
	if target != "" {
		last = indexOfVersion(migrations, target)
		if last < 0 {
			return nil, fmt.Errorf("target version %s not found in migrations", target)
		}
	}

	result := &MigrationResult{}
	if len(migrations) == 0 {
		return result, nil
	}

	if err := ensureMigrationsTable(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := getAppliedMigrations(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, m := range migrations[:last+1] {
		if applied[m.Version] {
			result.Skipped = append(result.Skipped, m.Version)
			continue
		}

		if err := applyMigration(ctx, pool, fsys, m); err != nil {
			err = fmt.Errorf("migration %s failed: %w", m.Version, err)
			result.Errors = append(result.Errors, err)
			return result, err
		}

		result.Applied = append(result.Applied, m.Version)
	}

	return result, nil
}

func indexOfVersion(migrations []Migration, version string) int {
	for i, m := range migrations {
		if m.Version == version {
			return i
		}
	}
	return -1
}

// ensureMigrationsTable creates the schema migrations tracking table if it doesn't exist.
func ensureMigrationsTable(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// findMigrations lists the .sql files at the root of fsys, sorted by version.
func findMigrations(fsys fs.FS) ([]Migration, error) {
	if fsys == nil {
		return nil, fmt.Errorf("no migration source")
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".sql") {
			continue
		}

		migrations = append(migrations, Migration{
			Version: normalizeVersion(name),
			Name:    name,
			Path:    path.Clean(name),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// normalizeVersion removes the .sql suffix from a version string for comparison.
// This handles migrations that were applied with the full filename in schema_migrations.
func normalizeVersion(v string) string {
	if len(v) > 4 && strings.ToLower(v[len(v)-4:]) == ".sql" {
		return v[:len(v)-4]
	}
	return v
}

// getAppliedMigrations returns a map of already-applied migration versions.
func getAppliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	withTimes, err := getAppliedMigrationsWithTimestamps(ctx, pool)
	if err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(withTimes))
	for version := range withTimes {
		applied[version] = true
	}
	return applied, nil
}

// getAppliedMigrationsWithTimestamps returns a map of applied migration versions with their applied_at timestamps.
func getAppliedMigrationsWithTimestamps(ctx context.Context, pool *pgxpool.Pool) (map[string]time.Time, error) {
	applied := make(map[string]time.Time)

	rows, err := pool.Query(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, err
		}
		applied[normalizeVersion(version)] = appliedAt
	}

	return applied, rows.Err()
}

// applyMigration executes a single migration file and records it in one
// transaction.
func applyMigration(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, m Migration) error {
	content, err := fs.ReadFile(fsys, m.Path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	sql := string(content)
	if strings.TrimSpace(sql) == "" {
		return fmt.Errorf("migration file is empty")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint: errcheck

	if _, err := tx.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}

	// Name keeps the .sql suffix; versions are normalized when read back.
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Name); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}

// GetPendingMigrations returns the list of migrations that have not been applied yet.
func GetPendingMigrations(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) ([]Migration, error) {
	status, migrations, err := migrationStatus(ctx, pool, fsys)
	if err != nil {
		return nil, err
	}

	pending := make(map[string]bool, len(status.Pending))
	for _, entry := range status.Pending {
		pending[entry.Version] = true
	}
	var out []Migration
	for _, m := range migrations {
		if pending[m.Version] {
			out = append(out, m)
		}
	}
	return out, nil
}

// GetMigrationStatus returns a comprehensive status report of all migrations.
// It categorizes migrations into:
// - Applied: migrations that have been applied and have a corresponding file
// - Pending: migrations that have a file but have not been applied
// - Drift: migrations that have been applied but no longer have a corresponding file
func GetMigrationStatus(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) (*MigrationStatus, error) {
	status, _, err := migrationStatus(ctx, pool, fsys)
	return status, err
}

func migrationStatus(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) (*MigrationStatus, []Migration, error) {
	if pool == nil {
		return nil, nil, fmt.Errorf("pool is nil")
	}

	if err := ensureMigrationsTable(ctx, pool); err != nil {
		return nil, nil, fmt.Errorf("failed to ensure migrations table: %w", err)
	}

	migrations, err := findMigrations(fsys)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find migrations: %w", err)
	}

	appliedMap, err := getAppliedMigrationsWithTimestamps(ctx, pool)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	return classifyMigrations(migrations, appliedMap), migrations, nil
}

// classifyMigrations splits migrations into applied, pending and drift.
func classifyMigrations(migrations []Migration, appliedMap map[string]time.Time) *MigrationStatus {
	fileVersions := make(map[string]bool, len(migrations))
	for _, m := range migrations {
		fileVersions[m.Version] = true
	}

	status := &MigrationStatus{
		Applied: []MigrationStatusEntry{},
		Pending: []MigrationStatusEntry{},
		Drift:   []MigrationStatusEntry{},
	}

	for _, m := range migrations {
		if appliedAt, isApplied := appliedMap[m.Version]; isApplied {
			status.Applied = append(status.Applied, MigrationStatusEntry{
				Version:   m.Version,
				Name:      m.Name,
				AppliedAt: &appliedAt,
			})
		} else {
			status.Pending = append(status.Pending, MigrationStatusEntry{
				Version: m.Version,
				Name:    m.Name,
			})
		}
	}

	for version, appliedAt := range appliedMap {
		if !fileVersions[version] {
			status.Drift = append(status.Drift, MigrationStatusEntry{
				Version:   version,
				Name:      version + ".sql",
				AppliedAt: &appliedAt,
			})
		}
	}
	sort.Slice(status.Drift, func(i, j int) bool {
		return status.Drift[i].Version < status.Drift[j].Version
	})

	return status
}
