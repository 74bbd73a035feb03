// Copyright 2025 Certen Protocol
//
// Unit tests for the ConfigWatcher.

package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeConfigSource struct {
	raw map[string]string
	err error
}

func (f *fakeConfigSource) Snapshot(ctx context.Context) (map[string]string, error) {
	return f.raw, f.err
}

func TestNewConfigWatcher_SafeBeforeFirstRefresh(t *testing.T) {
	w := NewConfigWatcher(&fakeConfigSource{}, 0)
	snap := w.Current()
	require.NotNil(t, snap)
	require.False(t, snap.KillSwitch)
	require.False(t, snap.AutopilotEnabled)
}

func TestRefresh_ParsesFlatKeyValueSnapshot(t *testing.T) {
	w := NewConfigWatcher(&fakeConfigSource{raw: map[string]string{
		"kill_switch":        "true",
		"autopilot_enabled":  "true",
		"autopilot_dry_run":  "false",
		"max_single_tx_usd":  "25000",
		"max_daily_tx_usd":   "100000",
		"min_health_score":   "0.7",
		"stop_loss_pct":      "10",
		"gas_max_gwei_ethereum": "45",
	},}, 0)

	require.NoError(t, w.Refresh(context.Background()))
	snap := w.Current()
	require.True(t, snap.KillSwitch)
	require.True(t, snap.AutopilotEnabled)
	require.False(t, snap.DryRun)
	require.Equal(t, 25000.0, snap.MaxSingleTxUsd)
	require.Equal(t, 100000.0, snap.MaxDailyTxUsd)
	require.Equal(t, 0.7, snap.MinHealthScore)
	require.Equal(t, 45.0, snap.GasMaxGwei["ethereum"])
}

func TestRefresh_MissingKeysFallBackToDefaults(t *testing.T) {
	w := NewConfigWatcher(&fakeConfigSource{raw: map[string]string{}}, 0)
	require.NoError(t, w.Refresh(context.Background()))
	snap := w.Current()
	require.False(t, snap.KillSwitch)
	require.True(t, snap.DryRun, "autopilot_dry_run defaults to true when unset")
}

func TestRefresh_PropagatesSourceError(t *testing.T) {
	w := NewConfigWatcher(&fakeConfigSource{err: errors.New("db down")}, 0)
	err := w.Refresh(context.Background())
	require.Error(t, err)
}
