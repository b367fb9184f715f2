package infra

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger собирает zap логгер по LoggerConfig.
// Production-пресет (JSON, sampling), формат console — для локальной отладки.
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()

	if cfg.Level != "" {
		lvl, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid logger level %q: %w", cfg.Level, err)
		}
		zcfg.Level = lvl
	}
	if cfg.Format == "console" {
		zcfg.Encoding = "console"
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
