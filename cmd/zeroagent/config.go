package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/zeroagent/zeroagent/pkg/scheduler"
)

// pidFileName is the daemon pid file inside the agent home
const pidFileName = "agent.pid"

// Config is the resolved configuration of one invocation
type Config struct {
	Home           string
	PollInterval   time.Duration
	HistoryEnabled bool
	APIHost        string
	APIPort        int
}

func setDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("trigger.poll_interval", scheduler.DefaultPollInterval)
	viper.SetDefault("history.enabled", true)
	viper.SetDefault("api.host", "localhost")
	viper.SetDefault("api.port", 7420)
	viper.SetDefault("tracing.sampler", "ratio")
	viper.SetDefault("tracing.ratio", 1.0)
}

// loadConfig reads the configuration from flags, environment and config file
func loadConfig() (Config, error) {
	home, err := resolveHome(viper.GetString("home"))
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Home:           home,
		PollInterval:   viper.GetDuration("trigger.poll_interval"),
		HistoryEnabled: viper.GetBool("history.enabled"),
		APIHost:        viper.GetString("api.host"),
		APIPort:        viper.GetInt("api.port"),
	}
	if cfg.PollInterval <= 0 {
		return Config{}, errors.Errorf("trigger.poll_interval must be positive, got %s", cfg.PollInterval)
	}
	return cfg, nil
}

// resolveHome returns the agent home, defaulting to $HOME/.zeroagent
func resolveHome(configured string) (string, error) {
	if configured != "" {
		return filepath.Abs(os.ExpandEnv(configured))
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to locate the user home directory")
	}
	return filepath.Join(userHome, ".zeroagent"), nil
}

// SkillsDir is where installed skills live
func (c Config) SkillsDir() string {
	return filepath.Join(c.Home, "skills")
}

// PIDFile is the daemon pid file
func (c Config) PIDFile() string {
	return filepath.Join(c.Home, pidFileName)
}
