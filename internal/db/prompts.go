package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrNoLivePrompts is returned when no prompt version is marked live
var ErrNoLivePrompts = errors.New("no live prompt version configured")

// LivePromptTemplates returns the templates of the version named in prompt_config
func (db *DB) LivePromptTemplates(ctx context.Context) (map[string]string, error) {
	var version string
	err := db.pool.QueryRow(ctx, `SELECT live_version FROM prompt_config WHERE id = 1`).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoLivePrompts
		}
		return nil, fmt.Errorf("failed to read prompt config: %w", err)
	}
	return db.PromptTemplates(ctx, version)
}

// PromptTemplates returns every template stored under version
func (db *DB) PromptTemplates(ctx context.Context, version string) (map[string]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT name, template FROM prompt_templates WHERE version = $1 ORDER BY name`,
		version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt templates: %w", err)
	}
	defer rows.Close()

	templates := make(map[string]string)
	for rows.Next() {
		var name, text string
		if err := rows.Scan(&name, &text); err != nil {
			return nil, fmt.Errorf("failed to scan prompt template: %w", err)
		}
		templates[name] = text
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, fmt.Errorf("prompt version %q has no templates", version)
	}
	return templates, nil
}

// SavePromptVersion stores a template set under version and marks it live
func (db *DB) SavePromptVersion(ctx context.Context, version string, templates map[string]string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for name, text := range templates {
		if _, err := tx.Exec(ctx,
			`INSERT INTO prompt_templates (version, name, template) VALUES ($1, $2, $3)
			 ON CONFLICT (version, name) DO UPDATE SET template = EXCLUDED.template`,
			version, name, text,
		); err != nil {
			return fmt.Errorf("failed to save template %s: %w", name, err)
		}
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO prompt_config (id, live_version) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET live_version = EXCLUDED.live_version, updated_at = NOW()`,
		version,
	); err != nil {
		return fmt.Errorf("failed to set live prompt version: %w", err)
	}
	return tx.Commit(ctx)
}
