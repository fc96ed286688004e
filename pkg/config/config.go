package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds the server settings resolved from flags, environment and an
// optional config file.
type Config struct {
	HTTPPort          int
	DatabaseURL       string
	DefinitionsDir    string
	SessionTTL        time.Duration
	AutoExecute       bool
	AutoExecuteDelay  time.Duration
	PauseBlocksManual bool
	AllowedOrigins    []string
	PermissionURL     string
	LogLevel          string
	LogFormat         string
}

// SetupFlags declares the server flags on cmd and binds them to v.
func SetupFlags(cmd *cobra.Command, v *viper.Viper) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("database-url", "", "postgres connection string; definitions are read from the database when set")
	cmd.Flags().String("definitions-dir", "", "directory of *.hcl workflow definitions")
	cmd.Flags().Duration("session-ttl", 30*time.Minute, "idle time after which a session is discarded (0 keeps sessions forever)")
	cmd.Flags().Bool("auto-execute", false, "complete process nodes automatically")
	cmd.Flags().Duration("auto-execute-delay", 2*time.Second, "delay before a process node completes on its own")
	cmd.Flags().Bool("pause-blocks-manual", false, "reject manual navigation while a workflow is paused")
	cmd.Flags().StringSlice("allowed-origins", []string{"http://localhost:3003"}, "CORS allowed origins")
	cmd.Flags().String("permission-url", "", "base url of the permission service used by permission: criteria")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "json", "log format (json, text)")
	return v.BindPFlags(cmd.Flags())
}

// Load reads configFile if given and resolves the settings in v. Environment
// variables use the WORKFLOW_ prefix, e.g. WORKFLOW_HTTP_PORT; DATABASE_URL is
// also honored.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	v.SetEnvPrefix("workflow")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			// a missing config file falls back to flags and environment
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{
		HTTPPort:          v.GetInt("http-port"),
		DatabaseURL:       v.GetString("database-url"),
		DefinitionsDir:    v.GetString("definitions-dir"),
		SessionTTL:        v.GetDuration("session-ttl"),
		AutoExecute:       v.GetBool("auto-execute"),
		AutoExecuteDelay:  v.GetDuration("auto-execute-delay"),
		PauseBlocksManual: v.GetBool("pause-blocks-manual"),
		AllowedOrigins:    v.GetStringSlice("allowed-origins"),
		PermissionURL:     v.GetString("permission-url"),
		LogLevel:          v.GetString("log-level"),
		LogFormat:         v.GetString("log-format"),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http-port %d", c.HTTPPort)
	}
	if c.AutoExecuteDelay < 0 {
		return fmt.Errorf("invalid auto-execute-delay %s", c.AutoExecuteDelay)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("invalid session-ttl %s", c.SessionTTL)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
