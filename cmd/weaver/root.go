package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"leaflet-weaver/pkg/config"
	"leaflet-weaver/pkg/job"
	"leaflet-weaver/pkg/log"
	"leaflet-weaver/pkg/weaver"
)

// Settings holds the runtime settings for one invocation. Values come from
// .weaver.yaml, WEAVE_* env vars and CLI flags.
type Settings struct {
	Machine     string `mapstructure:"machine"`
	Job         string `mapstructure:"job"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
	Journal     string `mapstructure:"journal"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	RemoteAddr  string `mapstructure:"remote_addr"`
	Trigger     string `mapstructure:"trigger"`
	Device      string `mapstructure:"device"`
	Output      string `mapstructure:"output"`
}

var rootCmd = &cobra.Command{
	Use:           "weaver",
	Short:         "Plan and execute leaflet fiber weaves",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "weaver:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initSettings)

	pf := rootCmd.PersistentFlags()
	pf.String("settings", "", "settings file (default .weaver.yaml)")
	pf.String("machine", "", "machine config file ([curve] [anchors] [weave] [dance] [cleaning] [output])")
	pf.String("job", "", "TOML job schedule (default: the [weave] layers)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	for _, name := range []string{"machine", "job", "log-level", "log-format"} {
		_ = viper.BindPFlag(strings.ReplaceAll(name, "-", "_"), pf.Lookup(name))
	}
}

func initSettings() {
	if f, _ := rootCmd.PersistentFlags().GetString("settings"); f != "" {
		viper.SetConfigFile(f)
	} else {
		viper.SetConfigName(".weaver")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
	}
	viper.SetEnvPrefix("WEAVE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// A missing settings file is fine; defaults apply.
	_ = viper.ReadInConfig()
}

// bindFlags exposes a subcommand's flags as viper keys.
func bindFlags(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		_ = viper.BindPFlag(strings.ReplaceAll(name, "-", "_"), cmd.Flags().Lookup(name))
	}
}

func loadSettings() Settings {
	var s Settings
	_ = viper.Unmarshal(&s)
	return s
}

// setupLogger builds the process logger and installs it as the default.
func setupLogger(s Settings) *log.Logger {
	logger := log.New("weaver")
	log.ConfigureFromEnv(logger)
	if s.LogLevel != "" {
		logger.SetLevel(log.ParseLevel(s.LogLevel))
	}
	if s.LogFormat != "" {
		logger.SetFormat(log.ParseFormat(s.LogFormat))
	}
	log.SetDefaultLogger(logger)
	return logger
}

// loadPlan reads the machine config and job and plans the queue.
func loadPlan(s Settings, logger *log.Logger) (*weaver.Plan, error) {
	cfg := config.DefaultWeaveConfig()
	if s.Machine != "" {
		var err error
		if cfg, err = config.ParseWeaveConfig(s.Machine); err != nil {
			return nil, err
		}
	}
	var j *job.Job
	if s.Job != "" {
		var err error
		if j, err = job.Load(s.Job); err != nil {
			return nil, err
		}
	}
	return weaver.NewPlan(cfg, j, logger.WithPrefix("plan"))
}
