package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"1.5h", 90 * time.Minute},
		{"2d", 48 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"1w2d12h", 9*24*time.Hour + 12*time.Hour},
		{"720h", 720 * time.Hour},
		{"-5m", -5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDuration(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.AsDuration())
		})
	}
}

func TestParseDurationErrors(t *testing.T) {
	for _, in := range []string{"", "abc", "10", "5x"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseDuration(in)
			assert.Error(t, err)
		})
	}
}

func TestDurationJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		Timeout Duration `json:"timeout"`
	}

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"timeout":"90s"}`), &w))
	assert.Equal(t, 90*time.Second, w.Timeout.AsDuration())

	out, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timeout":"1m30s"}`, string(out))

	// Bare numbers are nanoseconds, as with time.Duration.
	require.NoError(t, json.Unmarshal([]byte(`{"timeout":1000000000}`), &w))
	assert.Equal(t, time.Second, w.Timeout.AsDuration())
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"4MB", 4 << 20},
		{"1.5 GB", 3 << 29},
		{"512kb", 512 << 10},
		{"4194304", 4 << 20},
		{"1KiB", 1 << 10},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			b, err := ParseByteSize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, int64(b))
		})
	}
}

func TestParseByteSizeErrors(t *testing.T) {
	for _, in := range []string{"", "MB", "10XB"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseByteSize(in)
			assert.Error(t, err)
		})
	}
}

func TestByteSizeString(t *testing.T) {
	assert.Equal(t, "4MB", ByteSize(4<<20).String())
	assert.Equal(t, "1GB", ByteSize(1<<30).String())
	assert.Equal(t, "1536KB", ByteSize(3<<19).String())
	assert.Equal(t, "100", ByteSize(100).String())
}
