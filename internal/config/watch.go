package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/zjrosen/kakhl/internal/log"
)

// Watch installs a config file watcher that re-unmarshals the file into the
// store on every change. Alias maps and the default theme take effect on the
// next highlight dispatch; structural settings (base_dir) require a restart.
func Watch(v *viper.Viper, store *Store) {
	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			log.ErrorErr(log.CatConfig, "config reload failed", err, "file", e.Name)
			return
		}
		store.Replace(cfg)
		log.Info(log.CatConfig, "config reloaded", "file", e.Name, "op", e.Op.String())
	})
	v.WatchConfig()
}
