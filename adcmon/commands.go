package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/HuiFDU/adcsync/pkg/adc"
	"github.com/HuiFDU/adcsync/pkg/config"
)

// bindFlags binds the flags of the executing command to viper keys of the
// same name. Commands share keys such as port and mock, so binding happens
// per execution rather than once at init.
func bindFlags(cmd *cobra.Command, args []string) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if bindErr := v.BindPFlag(f.Name, f); bindErr != nil && err == nil {
			err = fmt.Errorf("bind flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Read, decode and display the ADC stream",
	Example: `  # Read from a serial port using config.yaml
  adcmon run --port /dev/ttyUSB0

  # Use the built-in simulator with debug logging and a metrics endpoint
  adcmon run --mock --log-level debug --metrics-addr :9100

  # Single-channel packets, resynchronizing byte by byte after a loss
  adcmon run --variant single_channel --sync-loss byte`,
	RunE: runMonitor,
}

func init() {
	f := runCmd.Flags()
	f.StringP("port", "p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
	f.Int("baud", 0, "Baud rate override")
	f.String("variant", "", "Frame variant (eight_channel, mixed, single_channel, probe)")
	f.String("sync-loss", "", "Bytes to discard when sync is lost (frame, byte)")
	f.Int("average-samples", 0, "Number of records to average (0 = disabled, overrides config)")
	f.String("metrics-addr", "", "Listen address for Prometheus metrics (empty = disabled)")
	f.Bool("mock", false, "Use the simulated device instead of a serial port")
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List available serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := adc.Ports()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PORT\tDESCRIPTION")
		for _, p := range ports {
			fmt.Fprintf(w, "%s\t%s\n", p.Name, p.Description)
		}
		return w.Flush()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a configuration file with default values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := v.GetString("config")
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if err := writeDefaultConfig(path, force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode configuration: %w", err)
		}
		return enc.Close()
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

// writeDefaultConfig saves config.Default() to path, refusing to replace an
// existing file unless force is set.
func writeDefaultConfig(path string, force bool) error {
	if !force {
		_, err := os.Stat(path)
		if err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to check %s: %w", path, err)
		}
	}
	return config.Default().Save(path)
}
