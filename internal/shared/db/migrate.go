package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Migrator aplica os arquivos {versão}_{nome}.up.sql em ordem, uma transação por arquivo
type Migrator struct {
	db  *sql.DB
	fs  fs.FS
	log *zap.Logger
}

func NewMigrator(db *sql.DB, migrations fs.FS, log *zap.Logger) *Migrator {
	return &Migrator{db: db, fs: migrations, log: log}
}

// Up aplica as migrations pendentes e retorna quantas foram aplicadas
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if _, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			filename   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return 0, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return 0, fmt.Errorf("load applied versions: %w", err)
	}

	files, err := PendingFiles(m.fs, applied)
	if err != nil {
		return 0, err
	}

	for _, f := range files {
		content, err := fs.ReadFile(m.fs, f)
		if err != nil {
			return 0, fmt.Errorf("read migration %s: %w", f, err)
		}
		if err := m.apply(ctx, f, string(content)); err != nil {
			return 0, err
		}
		m.log.Info("migration applied", zap.String("file", f))
	}
	return len(files), nil
}

func (m *Migrator) apply(ctx context.Context, file, content string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for %s: %w", file, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, content); err != nil {
		return fmt.Errorf("exec migration %s: %w", file, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, filename) VALUES ($1, $2)`,
		Version(file), file); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	return tx.Commit()
}

func (m *Migrator) applied(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

// PendingFiles lista os .up.sql ainda não aplicados, ordenados por nome
func PendingFiles(fsys fs.FS, applied map[string]bool) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		if applied[Version(e.Name())] {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

// Version extrai o prefixo numérico: "0001_init.up.sql" -> "0001"
func Version(filename string) string {
	v, _, _ := strings.Cut(filename, "_")
	return v
}
