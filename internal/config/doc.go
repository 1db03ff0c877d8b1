// Package config provides configuration loading, validation, and hot
// reloading for the access-control gateway.
//
// Configuration comes from a YAML file with ${VAR} and ${VAR:-default}
// environment substitution, layered over built-in defaults, with a final
// overlay of the well-known GATEWAY_* environment variables so the gateway
// can run without any file at all.
//
// # Loading
//
//	cfg, err := config.LoadConfig("configs/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// # Hot reload
//
// The Watcher re-reads and re-validates the file on change; an invalid
// file is logged and ignored, keeping the previous configuration active:
//
//	w, err := config.NewWatcher(path, func(cfg *config.Config) {
//	    gw.Reload(cfg)
//	})
//
// A missing protected-backend base URL passes validation on purpose: the
// status contract maps it to an internal error when the first request is
// routed to that target.
package config
