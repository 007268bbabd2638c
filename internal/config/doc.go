// Package config holds the irrigation schedule model and its persistence.
//
// The relay keeps a single Config: the list of schedules plus two stagger
// flags. It is loaded once at startup and replaced wholesale whenever a user
// sends setSchedule.
//
// # File Location
//
// The schedule file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/sprinkler/schedules.yaml or $HOME/.config/sprinkler/schedules.yaml
//   - macOS: $HOME/.config/sprinkler/schedules.yaml
//   - Windows: %LOCALAPPDATA%\sprinkler\schedules.yaml
//
// A missing file is not an error; an empty configuration is returned.
//
// # Wire Forms
//
// Zones are "zone1".."zone6" in schedules (JSON and YAML) and a numeric index
// 0..5 in toggle messages. Days are lowercase English names.
//
// # Usage Example
//
//	store, err := config.NewStore("")
//	if err != nil {
//	    return err
//	}
//	cfg, err := store.Load()
//	if err != nil {
//	    return err
//	}
//
//	handle := config.NewHandle(cfg, store)
//	next, err := handle.Apply(func(c *config.Config) {
//	    c.Schedules = schedules
//	})
//
// # Thread Safety
//
// Store and Handle are safe for concurrent use.
package config
