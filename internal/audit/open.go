package audit

import (
	"fmt"

	"github.com/raaihank/pii-gateway/internal/config"
	"github.com/raaihank/pii-gateway/internal/logger"
)

// Open connects the ledger backend selected by cfg.Backend.
func Open(cfg config.AuditConfig, log *logger.Logger) (Ledger, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileLedger(cfg.FilePath), nil
	case "postgres":
		ledger, err := NewPostgresLedger(cfg.Postgres, log)
		if err != nil {
			return nil, err
		}
		return ledger, nil
	case "redis":
		ledger, err := NewRedisLedger(cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		return ledger, nil
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}
}
