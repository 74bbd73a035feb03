// Copyright 2025 Certen Protocol
//
// SystemConfigRepository for key-value runtime configuration rows.

package store

import (
	"context"
	"fmt"
)

// SystemConfigRepository reads/writes the system_config key/value table
// (§6). internal/policy's ConfigWatcher is the only caller that should
// poll Snapshot; everything else reads the watcher's cached snapshot.
type SystemConfigRepository struct {
	client *Client
}

// NewSystemConfigRepository wires a SystemConfigRepository.
func NewSystemConfigRepository(client *Client) *SystemConfigRepository {
	return &SystemConfigRepository{client: client}
}

// Snapshot reads every key currently in system_config as a flat map.
func (r *SystemConfigRepository) Snapshot(ctx context.Context) (map[string]string, error) {
	rows, err := r.client.db.QueryContext(ctx, `SELECT key, value FROM system_config`)
	if err != nil {
		return nil, fmt.Errorf("store: snapshot system config: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Set upserts one key.
func (r *SystemConfigRepository) Set(ctx context.Context, key, value, category string) error {
	_, err := r.client.db.ExecContext(ctx, `
		INSERT INTO system_config (key, value, category, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, key, value, category)
	if err != nil {
		return fmt.Errorf("store: set system config %s: %w", key, err)
	}
	return nil
}
