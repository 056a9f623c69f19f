package localstore

import "fmt"

// SchemaVersion is the current local database schema version
const SchemaVersion = 1

// Migration defines a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all database migrations in order
var Migrations = []Migration{
	{
		Version:     1,
		Description: "key/value table",
		SQL: `CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at TEXT NOT NULL
);`,
	},
}

// RunMigrations runs any pending database migrations
func (s *Store) RunMigrations() (int, error) {
	var migrationsRun int
	err := s.withWriteLock(func() error {
		if _, err := s.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_info (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
			return fmt.Errorf("create schema_info: %w", err)
		}

		currentVersion := s.schemaVersion()
		for _, m := range Migrations {
			if m.Version <= currentVersion {
				continue
			}
			if _, err := s.conn.Exec(m.SQL); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
			}
			if err := s.setSchemaVersion(m.Version); err != nil {
				return fmt.Errorf("set version %d: %w", m.Version, err)
			}
			migrationsRun++
		}
		return nil
	})
	return migrationsRun, err
}

func (s *Store) schemaVersion() int {
	var version string
	if err := s.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version); err != nil {
		return 0
	}
	var v int
	fmt.Sscanf(version, "%d", &v)
	return v
}

func (s *Store) setSchemaVersion(version int) error {
	_, err := s.conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", version))
	return err
}
