package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/pkg/anthropic"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/pkg/jina"
)

// openPool creates the shared pgxpool.Pool for all subcommands.
func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	dsn := cfg.Store.DatabaseURL
	if dsn == "" {
		return nil, eris.New("no database_url configured (set store.database_url or SOFTPOWER_STORE_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ping database")
	}

	return pool, nil
}

// newEmbedder creates the Jina embeddings client from config.
func newEmbedder() (jina.Client, error) {
	if cfg.Jina.Key == "" {
		return nil, eris.New("jina API key is required (SOFTPOWER_JINA_KEY)")
	}
	return jina.NewClient(cfg.Jina.Key, cfg.Jina.Model,
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithDimensions(cfg.Jina.Dimensions),
	), nil
}

// newAnthropic creates the Anthropic client from config.
func newAnthropic() (anthropic.Client, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (SOFTPOWER_ANTHROPIC_KEY)")
	}
	return anthropic.NewClient(cfg.Anthropic.Key), nil
}

// parseDate parses a --date flag value as a UTC calendar day.
func parseDate(value string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "invalid date %q (want YYYY-MM-DD)", value)
	}
	return d, nil
}
