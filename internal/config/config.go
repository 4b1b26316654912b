// Package config loads the bot's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"furnacebot.ai/internal/action"
	"furnacebot.ai/internal/gamestate"
	"furnacebot.ai/internal/options"
)

const (
	DefaultHostURL      = "ws://127.0.0.1:8765/v1/host"
	DefaultStatusListen = "127.0.0.1:8097"
)

type Config struct {
	// Options are passed to the option form as-is; unknown keys make the session unready.
	Options  map[string]any `yaml:"options"`
	UseMould bool           `yaml:"use_mould"`

	GameStateURL string `yaml:"game_state_url"`
	HostWSURL    string `yaml:"host_ws_url"`
	ImagesDir    string `yaml:"images_dir"`
	Recipes      string `yaml:"recipes"`
	DataDir      string `yaml:"data_dir"`
	StatusListen string `yaml:"status_listen"`
	DisableDB    bool   `yaml:"disable_db"`

	Timing Timing `yaml:"timing"`
}

type Timing struct {
	PollIntervalMs     int     `yaml:"poll_interval_ms"`
	FindTimeoutS       int     `yaml:"find_timeout_s"`
	VerifyTimeoutS     int     `yaml:"verify_timeout_s"`
	BankSettleS        int     `yaml:"bank_settle_s"`
	WithdrawWaitMs     int     `yaml:"withdraw_wait_ms"`
	CameraStepDeg      int     `yaml:"camera_step_deg"`
	WithdrawConfidence float64 `yaml:"withdraw_confidence"`
}

func (t Timing) PollInterval() time.Duration { return time.Duration(t.PollIntervalMs) * time.Millisecond }
func (t Timing) BankSettle() time.Duration   { return time.Duration(t.BankSettleS) * time.Second }
func (t Timing) WithdrawWait() time.Duration { return time.Duration(t.WithdrawWaitMs) * time.Millisecond }

// Actions converts the timing block into action primitive settings.
func (t Timing) Actions() action.Timing {
	a := action.DefaultTiming()
	a.FindTimeout = time.Duration(t.FindTimeoutS) * time.Second
	a.VerifyTimeout = time.Duration(t.VerifyTimeoutS) * time.Second
	a.CameraStep = t.CameraStepDeg
	a.WithdrawConfidence = t.WithdrawConfidence
	return a
}

func Defaults() Config {
	return Config{
		Options:      map[string]any{options.KeyRunningTime: options.DefaultRunningTime},
		UseMould:     true,
		GameStateURL: gamestate.DefaultURL,
		HostWSURL:    DefaultHostURL,
		ImagesDir:    "./images",
		DataDir:      "./data",
		StatusListen: DefaultStatusListen,
		Timing: Timing{
			PollIntervalMs:     1000,
			FindTimeoutS:       15,
			VerifyTimeoutS:     15,
			BankSettleS:        10,
			WithdrawWaitMs:     1000,
			CameraStepDeg:      90,
			WithdrawConfidence: 0.5,
		},
	}
}

// Load overlays the file at path onto Defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("furnacebot.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("furnacebot.yaml: %w", err)
	}
	return cfg, nil
}

// Normalize fills zero or blank fields from Defaults.
func (c *Config) Normalize() {
	d := Defaults()
	if c.Options == nil {
		c.Options = d.Options
	}
	c.GameStateURL = orDefault(c.GameStateURL, d.GameStateURL)
	c.HostWSURL = orDefault(c.HostWSURL, d.HostWSURL)
	c.ImagesDir = orDefault(c.ImagesDir, d.ImagesDir)
	c.DataDir = orDefault(c.DataDir, d.DataDir)
	c.StatusListen = orDefault(c.StatusListen, d.StatusListen)
	c.Recipes = strings.TrimSpace(c.Recipes)

	t, dt := &c.Timing, d.Timing
	if t.PollIntervalMs == 0 {
		t.PollIntervalMs = dt.PollIntervalMs
	}
	if t.FindTimeoutS == 0 {
		t.FindTimeoutS = dt.FindTimeoutS
	}
	if t.VerifyTimeoutS == 0 {
		t.VerifyTimeoutS = dt.VerifyTimeoutS
	}
	if t.BankSettleS == 0 {
		t.BankSettleS = dt.BankSettleS
	}
	if t.WithdrawWaitMs == 0 {
		t.WithdrawWaitMs = dt.WithdrawWaitMs
	}
	if t.CameraStepDeg == 0 {
		t.CameraStepDeg = dt.CameraStepDeg
	}
	if t.WithdrawConfidence == 0 {
		t.WithdrawConfidence = dt.WithdrawConfidence
	}
}

func (c Config) Validate() error {
	var errs []error
	t := c.Timing
	for _, f := range []struct {
		name string
		v    int
	}{
		{"poll_interval_ms", t.PollIntervalMs},
		{"find_timeout_s", t.FindTimeoutS},
		{"verify_timeout_s", t.VerifyTimeoutS},
		{"bank_settle_s", t.BankSettleS},
		{"withdraw_wait_ms", t.WithdrawWaitMs},
	} {
		if f.v <= 0 {
			errs = append(errs, fmt.Errorf("timing.%s must be positive, got %d", f.name, f.v))
		}
	}
	if t.CameraStepDeg <= -360 || t.CameraStepDeg >= 360 {
		errs = append(errs, fmt.Errorf("timing.camera_step_deg out of range: %d", t.CameraStepDeg))
	}
	if t.WithdrawConfidence <= 0 || t.WithdrawConfidence > 1 {
		errs = append(errs, fmt.Errorf("timing.withdraw_confidence must be in (0,1], got %v", t.WithdrawConfidence))
	}
	if !strings.HasPrefix(c.HostWSURL, "ws://") && !strings.HasPrefix(c.HostWSURL, "wss://") {
		errs = append(errs, fmt.Errorf("host_ws_url must be a ws:// or wss:// url: %q", c.HostWSURL))
	}
	if !strings.HasPrefix(c.GameStateURL, "http://") && !strings.HasPrefix(c.GameStateURL, "https://") {
		errs = append(errs, fmt.Errorf("game_state_url must be an http url: %q", c.GameStateURL))
	}
	return errors.Join(errs...)
}

func orDefault(v, d string) string {
	if v = strings.TrimSpace(v); v == "" {
		return d
	}
	return v
}
