package forward

import "github.com/vyrodovalexey/avauthgw/internal/config"

// ConfigFromBackends maps the gateway backend configuration onto
// forwarder targets.
func ConfigFromBackends(cfg config.BackendsConfig) *Config {
	return &Config{
		Protected: TargetConfig{
			BaseURL: cfg.Protected.BaseURL,
			Timeout: cfg.Protected.Timeout.OrDefault(DefaultProtectedTimeout),
			Headers: decorationFromConfig(cfg.Protected.Headers),
		},
		Default: TargetConfig{
			BaseURL: cfg.Default.BaseURL,
			Timeout: cfg.Default.Timeout.OrDefault(DefaultDefaultTimeout),
			Headers: decorationFromConfig(cfg.Default.Headers),
		},
	}
}

// decorationFromConfig maps configured header additions to a decoration.
func decorationFromConfig(headers map[string]string) *HeaderDecoration {
	if len(headers) == 0 {
		return nil
	}

	add := make(map[string]string, len(headers))
	for name, value := range headers {
		add[name] = value
	}
	return &HeaderDecoration{Add: add}
}
