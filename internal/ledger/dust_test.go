// Copyright 2025 Certen Protocol
//
// Unit tests for dust-threshold handling.

package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsDust(t *testing.T) {
	cases := []struct {
		name            string
		units, usd      float64
		expectIsDust    bool
	}{
		{"well above both floors", 1.5, 100.0, false},
		{"units under floor but usd above", DustThresholdUnits / 2, 100.0, false},
		{"usd under floor but units above", 1.5, DustThresholdUsd / 2, false},
		{"both under floor", DustThresholdUnits / 2, DustThresholdUsd / 2, true},
		{"exactly at floor is not dust", DustThresholdUnits, DustThresholdUsd, false},
		{"zero residual is dust", 0, 0, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.expectIsDust, IsDust(c.units, c.usd))
		})
	}
}
