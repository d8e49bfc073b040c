package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"taskmarket/internal/config"
	"taskmarket/internal/db"

	"github.com/jmoiron/sqlx"
)

const downMarker = "-- +migrate Down"

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	dir := "migrations"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	applied, err := migrate(context.Background(), database, dir, logger)
	if err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations complete", "applied", applied)
}

// migrate applies each pending file in name order, one transaction per file.
func migrate(ctx context.Context, database *sqlx.DB, dir string, logger *slog.Logger) (int, error) {
	if _, err := database.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return 0, err
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return 0, err
	}
	sort.Strings(files)

	applied := 0
	for _, file := range files {
		filename := filepath.Base(file)
		var done bool
		if err := database.GetContext(ctx, &done, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename); err != nil {
			return applied, err
		}
		if done {
			logger.Debug("migration already applied", "file", filename)
			continue
		}
		content, err := os.ReadFile(file)
		if err != nil {
			return applied, err
		}
		statements := splitSQL(upSection(string(content)))
		err = db.WithTx(ctx, database, func(tx *sqlx.Tx) error {
			for _, stmt := range statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, filename)
			return err
		})
		if err != nil {
			return applied, err
		}
		applied++
		logger.Info("applied migration", "file", filename, "statements", len(statements))
	}
	return applied, nil
}

func upSection(content string) string {
	up, _, _ := strings.Cut(content, downMarker)
	return up
}

// splitSQL breaks a script on top-level semicolons. Semicolons inside
// quotes, dollar-quoted bodies and comments do not split.
func splitSQL(script string) []string {
	var statements []string
	var current strings.Builder
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	dollarTag := ""
	inQuote := false
	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case dollarTag != "":
			if strings.HasPrefix(script[i:], dollarTag) {
				current.WriteString(dollarTag)
				i += len(dollarTag) - 1
				dollarTag = ""
				continue
			}
		case inQuote:
			if c == '\'' {
				inQuote = false
			}
		case c == '\'':
			inQuote = true
		case c == '-' && strings.HasPrefix(script[i:], "--"):
			end := strings.IndexByte(script[i:], '\n')
			if end < 0 {
				i = len(script)
			} else {
				i += end
				current.WriteByte('\n')
			}
			continue
		case c == '$':
			if tag := dollarQuoteTag(script[i:]); tag != "" {
				dollarTag = tag
				current.WriteString(tag)
				i += len(tag) - 1
				continue
			}
		case c == ';':
			flush()
			continue
		}
		current.WriteByte(c)
	}
	flush()
	return statements
}

// dollarQuoteTag returns "$$" or "$name$" when s starts with one.
func dollarQuoteTag(s string) string {
	for j := 1; j < len(s); j++ {
		switch c := s[j]; {
		case c == '$':
			return s[:j+1]
		case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || (j > 1 && c >= '0' && c <= '9'):
		default:
			return ""
		}
	}
	return ""
}
