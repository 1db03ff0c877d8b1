package audit

import (
	"github.com/vyrodovalexey/avauthgw/internal/config"
)

// FromConfig builds a Logger from the gateway configuration. A nil or
// disabled configuration yields a no-op logger.
func FromConfig(cfg *config.AuditConfig, opts ...Option) (Logger, error) {
	if cfg == nil || !cfg.Enabled {
		return NewNoopLogger(), nil
	}

	if cfg.BufferSize > 0 {
		opts = append([]Option{WithBufferSize(cfg.BufferSize)}, opts...)
	}

	return NewLogger(cfg.Output, opts...)
}
