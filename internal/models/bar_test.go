package models

import (
	"errors"
	"testing"
	"time"

	"github.com/sdcoffey/big"
	"github.com/stretchr/testify/assert"
)

func TestBarValidate(t *testing.T) {
	base := time.Date(2026, 7, 29, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		bar     Bar
		wantErr error
	}{
		{
			name: "valid bar",
			bar: Bar{
				Symbol: "AAPL", Timestamp: base,
				Open: big.NewDecimal(100), High: big.NewDecimal(101),
				Low: big.NewDecimal(99), Close: big.NewDecimal(100.5), Volume: 1000,
			},
		},
		{
			name:    "missing symbol",
			bar:     Bar{Timestamp: base, Volume: 1},
			wantErr: ErrInvalidSymbol,
		},
		{
			name:    "zero timestamp",
			bar:     Bar{Symbol: "AAPL"},
			wantErr: ErrInvalidTimestamp,
		},
		{
			name: "high below open",
			bar: Bar{
				Symbol: "AAPL", Timestamp: base,
				Open: big.NewDecimal(105), High: big.NewDecimal(101),
				Low: big.NewDecimal(99), Close: big.NewDecimal(100), Volume: 1,
			},
			wantErr: ErrInvalidOHLC,
		},
		{
			name: "negative volume",
			bar: Bar{
				Symbol: "AAPL", Timestamp: base,
				Open: big.NewDecimal(100), High: big.NewDecimal(101),
				Low: big.NewDecimal(99), Close: big.NewDecimal(100), Volume: -1,
			},
			wantErr: ErrInvalidVolume,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bar.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		wantSec int64
		wantErr bool
	}{
		{"1m", 60, false},
		{"5m", 300, false},
		{"1h", 3600, false},
		{"1d", 86400, false},
		{"", 0, true},
		{"m", 0, true},
		{"0m", 0, true},
		{"5x", 0, true},
	}

	for _, tt := range tests {
		info, err := ParseInterval(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "ParseInterval(%q): expected error", tt.in)
			continue
		}
		if !assert.NoError(t, err, "ParseInterval(%q)", tt.in) {
			continue
		}
		assert.Equal(t, tt.wantSec, info.Seconds, "ParseInterval(%q).Seconds", tt.in)
	}
}
