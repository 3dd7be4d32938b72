// Adcmon reads a multi-channel ADC over a serial port, synchronizes to its
// fixed-length frames and shows the calibrated readings on the console.
//
// Usage:
//
//	adcmon run [flags]
//	adcmon ports
//	adcmon config init [path]
//	adcmon raw [--volts]
//	adcmon send <hex>... [--listen 1s]
//	adcmon code <volts>...
//
// Flags can also be given as ADCMON_* environment variables, for example
// ADCMON_PORT=/dev/ttyUSB0 or ADCMON_LOG_LEVEL=debug.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/HuiFDU/adcsync/pkg/config"
)

const envPrefix = "ADCMON"

var v = newViper()

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	v.SetDefault("config", "config.yaml")
	return v
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "adcmon",
	Short: "Serial multi-channel ADC monitor",
	Long: `Adcmon reads the byte stream of a multi-channel ADC, locks onto its
fixed-length frames, validates channel tags and framing bytes, and maps the
decoded samples to physical units using the calibration from the config file.`,
	SilenceUsage:      true,
	PersistentPreRunE: bindFlags,
}

func init() {
	rootCmd.PersistentFlags().String("config", "config.yaml", "Configuration file path")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error; empty = silent)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(rawCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(codeCmd)
}

// loadConfig loads the config file and applies flag and environment overrides.
func loadConfig() (*config.Config, error) {
	path := v.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration %s: %w", path, err)
	}
	applyOverrides(cfg, v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyOverrides copies the keys that were set by a flag or environment
// variable into cfg.
func applyOverrides(cfg *config.Config, v *viper.Viper) {
	if v.IsSet("port") {
		cfg.Serial.Port = v.GetString("port")
	}
	if v.IsSet("baud") {
		cfg.Serial.BaudRate = v.GetInt("baud")
	}
	if v.IsSet("variant") {
		cfg.SetVariant(v.GetString("variant"))
	}
	if v.IsSet("sync-loss") {
		cfg.Protocol.SyncLossDiscard = v.GetString("sync-loss")
	}
	if v.IsSet("log-level") {
		cfg.Logging.Level = v.GetString("log-level")
	}
	if v.IsSet("average-samples") {
		cfg.Measurement.AverageSamples = v.GetInt("average-samples")
	}
	if v.IsSet("metrics-addr") {
		cfg.Metrics.Addr = v.GetString("metrics-addr")
	}
}
