package audit

import (
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/pii-gateway/internal/config"
)

func TestOpenSelectsBackend(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "audit.json")
		ledger, err := Open(config.AuditConfig{Backend: "file", FilePath: path}, nil)
		require.NoError(t, err)
		assert.Equal(t, "file", ledger.Backend())
		assert.Equal(t, path, ledger.(*FileLedger).Path())
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		ledger, err := Open(config.AuditConfig{Backend: "redis", Redis: config.RedisConfig{RedisURL: "redis://" + mr.Addr()}}, nil)
		require.NoError(t, err)
		defer ledger.Close()
		assert.Equal(t, "redis", ledger.Backend())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Open(config.AuditConfig{Backend: "s3"}, nil)
		assert.Error(t, err)
	})
}
