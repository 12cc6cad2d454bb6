package config

import (
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every environment variable read by FromEnv.
const EnvPrefix = "ORDERNOTIFY"

// FromEnv overlays ORDERNOTIFY_* environment variables onto cfg. Unset
// variables leave the current value untouched, so defaults and file values
// survive. Nested sections are addressed as ORDERNOTIFY_<SECTION>_<KEY>, e.g.
// ORDERNOTIFY_PUSH_VAPID_PUBLIC_KEY.
func FromEnv(cfg *Config) error {
	return envconfig.Process(EnvPrefix, cfg)
}
