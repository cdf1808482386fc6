package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// dialect holds the per-driver SQL differences.
type dialect struct {
	name      string
	textType  string // large JSON documents
	idType    string
	timeType  string
	boolType  string
	inlineIdx bool // MySQL has no CREATE INDEX IF NOT EXISTS
}

var dialects = map[string]dialect{
	DriverSQLite:   {name: DriverSQLite, textType: "TEXT", idType: "TEXT", timeType: "DATETIME", boolType: "INTEGER"},
	DriverPostgres: {name: DriverPostgres, textType: "TEXT", idType: "VARCHAR(64)", timeType: "TIMESTAMPTZ", boolType: "BOOLEAN"},
	DriverMySQL:    {name: DriverMySQL, textType: "LONGTEXT", idType: "VARCHAR(64)", timeType: "DATETIME(6)", boolType: "TINYINT(1)", inlineIdx: true},
}

// DB wraps a SQL connection and the dialect it speaks.
type DB struct {
	conn *sql.DB
	d    dialect
}

// Open connects to driver (sqlite, postgres or mysql) and runs migrations.
// For sqlite, dsn is a file path or ":memory:". MySQL DSNs need parseTime=true.
func Open(driver, dsn string) (*DB, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	if driver == DriverSQLite && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one writer; also keeps a :memory: database alive on a single connection
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn, d: d}
	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Driver() string {
	return db.d.name
}

// rebind rewrites ? placeholders for drivers that number them.
func (db *DB) rebind(q string) string {
	if db.d.name != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// upsert builds an insert that overwrites every non-key column on conflict.
func (db *DB) upsert(table string, cols []string) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), marks)
	sets := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		if db.d.name == DriverMySQL {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
		} else {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	if db.d.name == DriverMySQL {
		return q + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return q + fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET ", cols[0]) + strings.Join(sets, ", ")
}

func (db *DB) migrate(ctx context.Context) error {
	d := db.d
	index := func(name, table, col string) string {
		if d.inlineIdx {
			return ""
		}
		return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", name, table, col)
	}
	inline := func(name, col string) string {
		if !d.inlineIdx {
			return ""
		}
		return fmt.Sprintf(",\n\t\t\tINDEX %s (%s)", name, col)
	}

	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS pages (
			id %[1]s PRIMARY KEY,
			name VARCHAR(255) NOT NULL DEFAULT '',
			settings_json %[2]s NOT NULL,
			created_at %[3]s NOT NULL,
			updated_at %[3]s NOT NULL
		)`, d.idType, d.textType, d.timeType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS blocks (
			id %[1]s PRIMARY KEY,
			page_id VARCHAR(64) NOT NULL,
			type VARCHAR(32) NOT NULL,
			sort_order INTEGER NOT NULL DEFAULT 0,
			z_order INTEGER NOT NULL DEFAULT 0,
			content_json %[2]s NOT NULL,
			styles_json %[2]s NOT NULL,
			responsive_json %[2]s NOT NULL,
			visible %[4]s NOT NULL,
			locked %[4]s NOT NULL,
			created_at %[3]s NOT NULL,
			updated_at %[3]s NOT NULL%[5]s
		)`, d.idType, d.textType, d.timeType, d.boolType, inline("idx_blocks_page", "page_id")),
		index("idx_blocks_page", "blocks", "page_id"),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS versions (
			id %[1]s PRIMARY KEY,
			page_id VARCHAR(64) NOT NULL,
			label VARCHAR(255) NOT NULL,
			description %[2]s NOT NULL,
			tag VARCHAR(64) NOT NULL DEFAULT '',
			state_json %[2]s NOT NULL,
			created_at %[3]s NOT NULL%[4]s
		)`, d.idType, d.textType, d.timeType, inline("idx_versions_page", "page_id")),
		index("idx_versions_page", "versions", "page_id"),
	}

	for _, m := range migrations {
		if m == "" {
			continue
		}
		if _, err := db.conn.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %.40s: %w", m, err)
		}
	}
	return nil
}
