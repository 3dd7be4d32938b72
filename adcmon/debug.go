package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/HuiFDU/adcsync/pkg/adc"
	"github.com/HuiFDU/adcsync/pkg/config"
	"github.com/HuiFDU/adcsync/pkg/frame"
	"github.com/HuiFDU/adcsync/pkg/logging"
)

var rawCmd = &cobra.Command{
	Use:   "raw",
	Short: "Print received bytes as hex without decoding",
	Example: `  # Hex dump of an unknown board
  adcmon raw --port /dev/ttyUSB0

  # Also show every byte as an 8-bit reading against a 3.0 V reference
  adcmon raw --port COM3 --volts`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, device, err := openDebugDevice()
		if err != nil {
			return err
		}
		defer logging.Sync()
		defer device.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var vref float64
		if v.GetBool("volts") {
			vref = byteVRef(cfg)
		}
		dumpChunks(ctx, cmd.OutOrStdout(), device.Chunks(), vref)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <hex>...",
	Short: "Write hex bytes to the device",
	Example: `  # Poll the pressure/temperature probe and show its answer for one second
  adcmon send AF 01 FA --listen 1s`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := frame.ParseHex(strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("invalid hex data: %w", err)
		}
		if len(data) == 0 {
			return errors.New("nothing to send")
		}

		_, device, err := openDebugDevice()
		if err != nil {
			return err
		}
		defer logging.Sync()
		defer device.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return sendHex(ctx, cmd.OutOrStdout(), device, data, v.GetDuration("listen"))
	},
}

var codeCmd = &cobra.Command{
	Use:   "code <volts>...",
	Short: "Convert voltages to 12-bit ADC codes",
	Example: `  adcmon code 0 1.5 2.998
  adcmon code --vref 3.0 1.25`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		volts := make([]float64, 0, len(args))
		for _, a := range args {
			f, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return fmt.Errorf("invalid voltage %q: %w", a, err)
			}
			volts = append(volts, f)
		}
		vref := v.GetFloat64("vref")
		if vref <= 0 {
			return fmt.Errorf("vref must be positive: %g", vref)
		}
		return writeCodes(cmd.OutOrStdout(), volts, vref)
	},
}

func init() {
	rawCmd.Flags().StringP("port", "p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
	rawCmd.Flags().Int("baud", 0, "Baud rate override")
	rawCmd.Flags().Bool("mock", false, "Use the simulated device instead of a serial port")
	rawCmd.Flags().Bool("volts", false, "Show each byte as an 8-bit reading against the reference voltage")

	sendCmd.Flags().StringP("port", "p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
	sendCmd.Flags().Int("baud", 0, "Baud rate override")
	sendCmd.Flags().Bool("mock", false, "Use the simulated device instead of a serial port")
	sendCmd.Flags().Duration("listen", 0, "Print received bytes for this long after sending")

	codeCmd.Flags().Float64("vref", frame.SingleChannelVRef, "ADC reference voltage")
}

// openDebugDevice connects the configured device for the raw and send commands.
func openDebugDevice() (*config.Config, adc.Device, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	spec, err := cfg.Protocol.Spec()
	if err != nil {
		return nil, nil, err
	}
	device, err := openDevice(cfg, spec, v.GetBool("mock"))
	if err != nil {
		return nil, nil, err
	}
	if err := device.Connect(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", deviceName(cfg, device), err)
	}
	return cfg, device, nil
}

func byteVRef(cfg *config.Config) float64 {
	if cfg.Protocol.VRef > 0 {
		return cfg.Protocol.VRef
	}
	return frame.DefaultVRef
}

// dumpChunks prints every chunk as a timestamped hex line until chunks is
// closed or ctx is done. A positive vref adds a line with each byte read as
// an 8-bit sample.
func dumpChunks(ctx context.Context, w io.Writer, chunks <-chan adc.Chunk, vref float64) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			fmt.Fprintf(w, "[%s] RX: %s\n", chunk.Timestamp.Format("15:04:05.000"), frame.FormatHex(chunk.Data))
			if vref > 0 {
				volts := make([]string, len(chunk.Data))
				for i, b := range chunk.Data {
					volts[i] = fmt.Sprintf("%.3fV", float64(b)/frame.FullScale8*vref)
				}
				fmt.Fprintf(w, "               %s\n", strings.Join(volts, " "))
			}
		}
	}
}

// sendHex writes data to device, then prints what arrives for listen.
func sendHex(ctx context.Context, w io.Writer, device adc.Device, data []byte, listen time.Duration) error {
	if err := device.Send(data); err != nil {
		return err
	}
	fmt.Fprintf(w, "[%s] TX: %s\n", time.Now().Format("15:04:05.000"), frame.FormatHex(data))

	if listen <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, listen)
	defer cancel()
	dumpChunks(ctx, w, device.Chunks(), 0)
	return nil
}

// writeCodes prints the 12-bit code of each voltage. Out of range voltages
// are clamped to [0, vref] and marked.
func writeCodes(w io.Writer, volts []float64, vref float64) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VOLTS\tCODE\tHEX\tBINARY\t")
	for _, volt := range volts {
		code := frame.VoltageToCode(volt, vref)
		note := ""
		if volt < 0 || volt > vref {
			note = "clamped"
		}
		fmt.Fprintf(tw, "%.3f\t%d\t0x%03X\t%012b\t%s\n", volt, code, code, code, note)
	}
	return tw.Flush()
}
