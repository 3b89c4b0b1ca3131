package core

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Whatsapp WhatsappConfig `json:"whatsapp"`
	Logging  LoggingConfig  `json:"logging"`
	Uploads  UploadsConfig  `json:"uploads"`
	Pprof    PprofConfig    `json:"pprof"`
}

type ServerConfig struct {
	Address     string `json:"address"`
	AllowOrigin string `json:"allow_origin,omitempty"`
}

type WhatsappConfig struct {
	// StoreDir holds the persisted session credentials. delete-session
	// wipes it recursively.
	StoreDir   string `json:"store_dir"`
	DeviceName string `json:"device_name,omitempty"`
	// ReinitDelay is a Go duration string (e.g. "2s"): the settling wait
	// between teardown and re-initialization.
	ReinitDelay string `json:"reinit_delay,omitempty"`
}

func (c WhatsappConfig) reinitDelay() (time.Duration, error) {
	return settingDuration("whatsapp.reinit_delay", c.ReinitDelay, 2*time.Second)
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Alert   LoggingAlert `json:"alert"`
}
type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}
type LoggingAlert struct {
	Enabled    bool   `json:"enabled"`
	URL        string `json:"url"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type UploadsConfig struct {
	Dir string `json:"dir"`
	// SweepSchedule is a cron spec or @every descriptor; empty disables
	// the stale-upload sweep.
	SweepSchedule string `json:"sweep_schedule,omitempty"`
	// MaxAge is a Go duration string; staged files older than this are
	// removed by the sweep.
	MaxAge string `json:"max_age,omitempty"`
}

func (c UploadsConfig) maxAge() (time.Duration, error) {
	return settingDuration("uploads.max_age", c.MaxAge, 0)
}

// settingDuration parses an optional duration setting; empty means def.
func settingDuration(key, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return d, nil
}
