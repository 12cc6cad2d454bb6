// Package config loads ordernotify configuration. Values are layered in a
// fixed order: Default(), an optional JSON or YAML file, ORDERNOTIFY_*
// environment variables and finally, when enabled, the push signing
// credential from Vault.
//
// Example:
//
//	cfg, err := config.Load("/etc/ordernotify.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := config.FromEnv(&cfg); err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config
