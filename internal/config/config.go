package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/thatsimonsguy/riddlematrix/internal/metrics"
)

type Config struct {
	ConfigFile   string        `yaml:"-"`
	LogLevel     zerolog.Level `yaml:"-"`
	LogLevelName string        `yaml:"log_level"`

	DBPath         string `yaml:"db_path"`
	LogFile        string `yaml:"log_file"`
	HTTPAddr       string `yaml:"http_addr"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`

	// BusSelectPin is the GPIO that hands the shared line to the clock.
	// Unset means clock and console are on separate lines.
	BusSelectPin *int   `yaml:"bus_select_pin"`
	SerialPort   string `yaml:"serial_port"`
	SerialBaud   int    `yaml:"serial_baud"`

	NTPSyncSpec   string `yaml:"ntp_sync_spec"`
	TimeSourceURL string `yaml:"time_source_url"`

	APIRateLimit float64 `yaml:"api_rate_limit"`
	APIRateBurst int     `yaml:"api_rate_burst"`

	HistoryKeep int `yaml:"history_keep"`

	BootScriptPath  string `yaml:"boot_script_path"`
	BootServicePath string `yaml:"boot_service_path"`
	MainServicePath string `yaml:"main_service_path"`
	ServiceUser     string `yaml:"service_user"`
	InstallDir      string `yaml:"install_dir"`

	NtfyTopic  string `yaml:"ntfy_topic"`
	NtfyServer string `yaml:"ntfy_server"`

	Datadog metrics.Config `yaml:"datadog"`
}

func Defaults() Config {
	return Config{
		LogLevel:       zerolog.InfoLevel,
		DBPath:         "data/riddlematrix.db",
		HTTPAddr:       "0.0.0.0:80",
		PollIntervalMS: 10,
		SerialBaud:     19200,
		NTPSyncSpec:    "@every 6h",
		APIRateLimit:   5,
		APIRateBurst:   10,
		HistoryKeep:    500,
		NtfyServer:     "https://ntfy.sh",

		BootScriptPath:  "/usr/local/bin/riddlematrix-boot.sh",
		BootServicePath: "/etc/systemd/system/riddlematrix-boot.service",
		MainServicePath: "/etc/systemd/system/riddlematrix.service",
		ServiceUser:     "pi",
		InstallDir:      "/opt/riddlematrix",
		Datadog: metrics.Config{
			AgentAddr: "127.0.0.1:8125",
			Namespace: "riddlematrix.",
		},
	}
}

func Load() Config {
	cfg, err := parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		panic(err.Error())
	}
	cfg.validate()
	return cfg
}

func parse(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Defaults()
	var logLevel string

	fs.StringVar(&cfg.ConfigFile, "config-file", "config.yaml", "Path to daemon config file")
	fs.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.LogLevel = parseLogLevel(logLevel)

	if err := decodeFile(cfg.ConfigFile, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// decodeFile overlays the YAML file at path onto cfg. A log_level in the
// file wins over the flag.
func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to load config file: %w", err)
	}
	defer file.Close()

	// An empty file keeps every default.
	if err := yaml.NewDecoder(file).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.LogLevelName != "" {
		cfg.LogLevel = parseLogLevel(cfg.LogLevelName)
	}
	return nil
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var problems []string

	if cfg.DBPath == "" {
		problems = append(problems, "db_path is required")
	}
	if cfg.HTTPAddr == "" {
		problems = append(problems, "http_addr is required")
	}
	if cfg.PollIntervalMS <= 0 || cfg.PollIntervalMS > 1000 {
		problems = append(problems, fmt.Sprintf("poll_interval_ms %d outside 1-1000", cfg.PollIntervalMS))
	}
	if cfg.BusSelectPin != nil && (*cfg.BusSelectPin < 0 || *cfg.BusSelectPin > 27) {
		problems = append(problems, fmt.Sprintf("bus_select_pin %d is not a GPIO", *cfg.BusSelectPin))
	}
	if cfg.SerialPort != "" && cfg.SerialBaud <= 0 {
		problems = append(problems, "serial_baud must be positive")
	}
	if cfg.NTPSyncSpec != "" {
		if _, err := cron.ParseStandard(cfg.NTPSyncSpec); err != nil {
			problems = append(problems, fmt.Sprintf("ntp_sync_spec: %v", err))
		}
	}
	if cfg.APIRateLimit < 0 || cfg.APIRateBurst < 0 {
		problems = append(problems, "api rate settings must not be negative")
	}
	if cfg.HistoryKeep < 0 {
		problems = append(problems, "history_keep must not be negative")
	}
	if cfg.NtfyTopic != "" && cfg.NtfyServer == "" {
		problems = append(problems, "ntfy_server is required with ntfy_topic")
	}
	if cfg.Datadog.Enabled && cfg.Datadog.AgentAddr == "" {
		problems = append(problems, "datadog.agent_addr is required when datadog is enabled")
	}

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, ", "))
	}
}
