// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stores

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecp-platform/ecp/services/resolution/ecperr"
)

// PostgresRegistry implements AssetRegistry against a Postgres assets
// table: assets(id text primary key, asset_type text, content jsonb,
// metadata jsonb).
//
// Thread Safety: Safe for concurrent use; pgxpool pools connections.
type PostgresRegistry struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresRegistry creates an AssetRegistry adapter for the given
// connection URL. Connectivity is not verified here; Health does that so
// the service can start degraded.
func NewPostgresRegistry(ctx context.Context, url string, logger *slog.Logger) (*PostgresRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, ecperr.NewStoreConnection(BackendRegistry, "create pool failed", err)
	}
	return &PostgresRegistry{
		pool:   pool,
		logger: logger.With(slog.String("component", "asset_registry")),
	}, nil
}

// Close releases the connection pool.
func (r *PostgresRegistry) Close() {
	r.pool.Close()
}

// GetAsset fetches one asset by id, or nil if absent.
func (r *PostgresRegistry) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	const query = `SELECT id, content, metadata FROM assets WHERE id = $1`

	var asset Asset
	err := r.pool.QueryRow(ctx, query, assetID).Scan(&asset.ID, &asset.Content, &asset.Metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ecperr.NewStoreQuery(BackendRegistry, "get_asset", err.Error())
	}
	return &asset, nil
}

// GetAssetsByType lists up to limit assets of the given type.
func (r *PostgresRegistry) GetAssetsByType(ctx context.Context, assetType string, limit int) ([]Asset, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, content, metadata FROM assets
		WHERE asset_type = $1
		ORDER BY id
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, assetType, limit)
	if err != nil {
		return nil, ecperr.NewStoreQuery(BackendRegistry, "get_assets_by_type", err.Error())
	}
	defer rows.Close()

	return scanAssets(rows)
}

// SearchGlossary searches glossary terms by name or definition, optionally
// scoped to a business domain.
func (r *PostgresRegistry) SearchGlossary(ctx context.Context, query, domain string, limit int) ([]Asset, error) {
	if limit <= 0 {
		limit = 10
	}
	const sql = `
		SELECT id, content, metadata FROM assets
		WHERE asset_type = 'glossary_term'
		  AND (content->>'name' ILIKE '%' || $1 || '%'
		       OR content->>'definition' ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR metadata->>'domain' = $2)
		ORDER BY id
		LIMIT $3`

	rows, err := r.pool.Query(ctx, sql, query, domain, limit)
	if err != nil {
		return nil, ecperr.NewStoreQuery(BackendRegistry, "search_glossary", err.Error())
	}
	defer rows.Close()

	return scanAssets(rows)
}

// Health pings the pool.
func (r *PostgresRegistry) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return ecperr.NewStoreConnection(BackendRegistry, "ping failed", err)
	}
	return nil
}

func scanAssets(rows pgx.Rows) ([]Asset, error) {
	var assets []Asset
	for rows.Next() {
		var asset Asset
		if err := rows.Scan(&asset.ID, &asset.Content, &asset.Metadata); err != nil {
			return nil, ecperr.NewStoreQuery(BackendRegistry, "scan", err.Error())
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, ecperr.NewStoreConnection(BackendRegistry, "row iteration failed", err)
	}
	return assets, nil
}
