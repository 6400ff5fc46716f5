package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const configKeyLanguageExclusions = "LANGUAGE_EXCLUSIONS_LIST"

// AppConfigRepository is the PostgreSQL implementation of AppConfigService.
type AppConfigRepository struct {
	db *pgxpool.Pool
}

// NewAppConfigRepository creates a new PostgreSQL AppConfigRepository.
func NewAppConfigRepository(db *pgxpool.Pool) AppConfigService {
	return &AppConfigRepository{db: db}
}

// LanguageExclusions returns the newline-separated locale token list. A
// missing row means no exclusions.
func (r *AppConfigRepository) LanguageExclusions(ctx context.Context) ([]string, error) {
	var value string
	err := r.db.QueryRow(ctx,
		`SELECT config_value FROM app_config WHERE config_key = $1`,
		configKeyLanguageExclusions,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting language exclusions: %w", err)
	}

	var tokens []string
	for _, line := range strings.Split(value, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			tokens = append(tokens, trimmed)
		}
	}
	return tokens, nil
}
