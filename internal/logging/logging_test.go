package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/nzx-scorer/internal/config"
)

func TestNew(t *testing.T) {
	t.Run("writes json with service field", func(t *testing.T) {
		var buf bytes.Buffer
		log := newWithWriter(config.LogConfig{Level: "debug"}, &buf)

		log.Debug().Str("ticker", "AIR").Msg("company scored")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "nzx-scorer", entry["service"])
		assert.Equal(t, "AIR", entry["ticker"])
		assert.Equal(t, "debug", entry["level"])
	})

	t.Run("filters below configured level", func(t *testing.T) {
		var buf bytes.Buffer
		log := newWithWriter(config.LogConfig{Level: "warn"}, &buf)

		log.Info().Msg("hidden")
		assert.Zero(t, buf.Len())
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		log := newWithWriter(config.LogConfig{Level: "loud"}, &bytes.Buffer{})
		assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
	})
}
