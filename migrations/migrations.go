package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// Target names the database a script belongs to. Scripts are prefixed with it.
type Target string

const (
	Backoffice Target = "backoffice"
	AppChat    Target = "appchat"
)

// Scripts returns the script names for target in apply order
func Scripts(target Target) ([]string, error) {
	names, err := fs.Glob(files, string(target)+"_*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Apply runs every script for target. Scripts are written to be re-runnable.
func Apply(ctx context.Context, pg *sql.DB, target Target) ([]string, error) {
	names, err := Scripts(target)
	if err != nil {
		return nil, err
	}

	applied := make([]string, 0, len(names))
	for _, name := range names {
		content, err := files.ReadFile(name)
		if err != nil {
			return applied, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		if _, err := pg.ExecContext(ctx, string(content)); err != nil {
			return applied, fmt.Errorf("migration %s failed: %w", name, err)
		}
		applied = append(applied, name)
	}
	return applied, nil
}
