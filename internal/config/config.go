// Package config loads balanzd's INI configuration file and CLI flags.
// It reads the host, model, balanz and history sections; other sections
// in the file are ignored.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	HTTPAddr string
	DBDriver string
	DBDSN    string

	// host
	WatchdogInterval     time.Duration
	WatchdogStale        time.Duration
	HTTPAuthEnabled      bool
	HTTPAuthDelay        time.Duration
	ReplyTimeout         time.Duration
	DefaultGroupID       string
	AutoRegisterChargers bool

	// model
	GroupsCSV   string
	ChargersCSV string
	TagsCSV     string
	UsersCSV    string

	// balanz
	MinAllocation                float64
	MaxOfferIncrease             float64
	MinOfferIncreaseInterval     time.Duration
	UsageMonitoringInterval      time.Duration
	MarginLower                  float64
	MarginIncrease               float64
	UsageThreshold               float64
	SuspendedAllocationTimeout   time.Duration
	SuspendedDelayedTime         time.Duration
	SuspendedDelayedTimeNotFirst time.Duration
	SuspendTopOfHour             bool
	EnergyThreshold              int
	WaitAfterReduce              time.Duration
	FirstWait                    time.Duration
	RunInterval                  time.Duration
	IntervalsFull                int

	// history
	TransactionInterval time.Duration
	TransactionTimeout  time.Duration
	SessionsCSV         string
	SessionExportDir    string
}

// Load parses --config (default config/balanz.ini) plus environment
// variable overrides into a Config.
func Load(args []string) (*Config, error) {
	flags := pflag.NewFlagSet("balanzd", pflag.ContinueOnError)
	configPath := flags.String("config", "config/balanz.ini", "path to the INI configuration file")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(*configPath)
	v.SetConfigType("ini")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config %s: %w", *configPath, err)
		}
	}

	cfg := &Config{
		HTTPAddr: v.GetString("host.http_addr"),
		DBDriver: v.GetString("host.db_driver"),
		DBDSN:    v.GetString("host.db_dsn"),

		WatchdogInterval:     v.GetDuration("host.watchdog_interval"),
		WatchdogStale:        v.GetDuration("host.watchdog_stale"),
		HTTPAuthEnabled:      v.GetBool("host.http_auth_enabled"),
		HTTPAuthDelay:        v.GetDuration("host.http_auth_delay"),
		ReplyTimeout:         v.GetDuration("host.reply_timeout"),
		DefaultGroupID:       v.GetString("host.default_group_id"),
		AutoRegisterChargers: v.GetBool("host.charger_autoregister"),

		GroupsCSV:   v.GetString("model.groups_csv"),
		ChargersCSV: v.GetString("model.chargers_csv"),
		TagsCSV:     v.GetString("model.tags_csv"),
		UsersCSV:    v.GetString("model.users_csv"),

		MinAllocation:                v.GetFloat64("balanz.min_allocation"),
		MaxOfferIncrease:             v.GetFloat64("balanz.max_offer_increase"),
		MinOfferIncreaseInterval:     v.GetDuration("balanz.min_offer_increase_interval"),
		UsageMonitoringInterval:      v.GetDuration("balanz.usage_monitoring_interval"),
		MarginLower:                  v.GetFloat64("balanz.margin_lower"),
		MarginIncrease:               v.GetFloat64("balanz.margin_increase"),
		UsageThreshold:               v.GetFloat64("balanz.usage_threshold"),
		SuspendedAllocationTimeout:   v.GetDuration("balanz.suspended_allocation_timeout"),
		SuspendedDelayedTime:         v.GetDuration("balanz.suspended_delayed_time"),
		SuspendedDelayedTimeNotFirst: v.GetDuration("balanz.suspended_delayed_time_not_first"),
		SuspendTopOfHour:             v.GetBool("balanz.suspend_top_of_hour"),
		EnergyThreshold:              v.GetInt("balanz.energy_threshold"),
		WaitAfterReduce:              v.GetDuration("balanz.wait_after_reduce"),
		FirstWait:                    v.GetDuration("balanz.first_wait"),
		RunInterval:                  v.GetDuration("balanz.run_interval"),
		IntervalsFull:                v.GetInt("balanz.intervals_full"),

		TransactionInterval: v.GetDuration("history.transaction_interval"),
		TransactionTimeout:  v.GetDuration("history.transaction_timeout"),
		SessionsCSV:         v.GetString("history.sessions_csv"),
		SessionExportDir:    v.GetString("history.export_dir"),
	}

	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		return nil, fmt.Errorf("invalid host.db_driver: %s, must be 'sqlite' or 'postgres'", cfg.DBDriver)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host.http_addr", ":8080")
	v.SetDefault("host.db_driver", "sqlite")
	v.SetDefault("host.db_dsn", "file:balanzd.db?_foreign_keys=on")
	v.SetDefault("host.watchdog_interval", "30s")
	v.SetDefault("host.watchdog_stale", "120s")
	v.SetDefault("host.http_auth_enabled", false)
	v.SetDefault("host.http_auth_delay", "10s")
	v.SetDefault("host.reply_timeout", "30s")
	v.SetDefault("host.default_group_id", "default")
	v.SetDefault("host.charger_autoregister", true)

	v.SetDefault("model.groups_csv", "config/groups.csv")
	v.SetDefault("model.chargers_csv", "config/chargers.csv")
	v.SetDefault("model.tags_csv", "config/tags.csv")
	v.SetDefault("model.users_csv", "config/users.csv")

	v.SetDefault("balanz.min_allocation", 6.0)
	v.SetDefault("balanz.max_offer_increase", 6.0)
	v.SetDefault("balanz.min_offer_increase_interval", "180s")
	v.SetDefault("balanz.usage_monitoring_interval", "300s")
	v.SetDefault("balanz.margin_lower", 0.6)
	v.SetDefault("balanz.margin_increase", 0.6)
	v.SetDefault("balanz.usage_threshold", 2.0)
	v.SetDefault("balanz.suspended_allocation_timeout", "300s")
	v.SetDefault("balanz.suspended_delayed_time", "3600s")
	v.SetDefault("balanz.suspended_delayed_time_not_first", "3600s")
	v.SetDefault("balanz.suspend_top_of_hour", true)
	v.SetDefault("balanz.energy_threshold", 500)
	v.SetDefault("balanz.wait_after_reduce", "5s")
	v.SetDefault("balanz.first_wait", "10s")
	v.SetDefault("balanz.run_interval", "30s")
	v.SetDefault("balanz.intervals_full", 10)

	v.SetDefault("history.transaction_interval", "60s")
	v.SetDefault("history.transaction_timeout", "600s")
	v.SetDefault("history.sessions_csv", "data/sessions.csv")
	v.SetDefault("history.export_dir", "")
}
