package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HuiFDU/adcsync/pkg/adc"
	"github.com/HuiFDU/adcsync/pkg/config"
	"github.com/HuiFDU/adcsync/pkg/frame"
	"github.com/HuiFDU/adcsync/pkg/logging"
	"github.com/HuiFDU/adcsync/pkg/metrics"
	"github.com/HuiFDU/adcsync/pkg/monitor"
	"github.com/HuiFDU/adcsync/pkg/sample"
	"github.com/HuiFDU/adcsync/pkg/stream"
)

// pipelineBuffer is the channel capacity between pipeline stages.
const pipelineBuffer = 500

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := logging.Initialize(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	spec, err := cfg.Protocol.Spec()
	if err != nil {
		return err
	}

	cals := sample.FromConfig(cfg.Calibration)
	for _, c := range cals {
		if err := c.Check(); err != nil {
			logging.Warn("Calibration saturates to its lower bound", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	decoderMetrics := metrics.NewDecoder(reg)
	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, metrics.Handler(reg))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	device, err := openDevice(cfg, spec, v.GetBool("mock"))
	if err != nil {
		return err
	}
	if err := device.Connect(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", deviceName(cfg, device), err)
	}
	defer device.Close()
	logging.Info("Connected",
		zap.String("device", deviceName(cfg, device)),
		zap.String("variant", spec.Name),
		zap.Int("frame_length", spec.Length),
	)

	mon := monitor.New(cfg)
	console := newConsole(cmd.OutOrStdout(), cfg.Measurement.DisplayRate, mon)
	mon.OnUpdate(console.update)

	done, err := startChain(ctx, cfg, spec, device, mon, decoderMetrics)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		logging.Info("Shutting down")
	case <-done:
		logging.Warn("Device stream ended")
	}

	// Closing the device closes the chunk channel; every stage then drains
	// and closes its output in turn.
	device.Close()
	<-done
	console.finish()
	return nil
}

// startChain wires device -> decoder -> converter -> [averaging] -> monitor.
// The returned channel is closed once the monitor has consumed the last record.
func startChain(ctx context.Context, cfg *config.Config, spec *frame.Spec, device adc.Device, mon *monitor.Monitor, observer stream.Observer) (<-chan struct{}, error) {
	policy, err := stream.ParseSyncLossPolicy(cfg.Protocol.SyncLossDiscard)
	if err != nil {
		return nil, err
	}
	decode, err := stream.NewDecoder(spec, pipelineBuffer, observer,
		stream.WithSyncLossPolicy(policy),
		stream.WithHuntRejects(cfg.Protocol.ReportHuntRejects),
	)
	if err != nil {
		return nil, err
	}

	limiter := logging.NewLimiter(cfg.Logging.Errors.PerSecond, cfg.Logging.Errors.Burst)
	diag := func(ev stream.Event) {
		mon.ObserveDiagnostic(ev)
		logDiagnostic(limiter, ev)
	}

	events := decode(ctx, device.Chunks())
	records := sample.NewConverter(sample.NewMapper(sample.FromConfig(cfg.Calibration)), pipelineBuffer, diag)(events)
	if cfg.Measurement.AverageSamples > 0 {
		records = sample.NewAveragingConverter(cfg.Measurement.AverageSamples, pipelineBuffer)(records)
	}

	mon.ResetShutdown()
	done := make(chan struct{})
	go func() {
		defer close(done)
		mon.ProcessRecords(records)
	}()
	return done, nil
}

func logDiagnostic(limiter *logging.Limiter, ev stream.Event) {
	switch ev.Kind {
	case stream.EventSynchronized:
		logging.Info("Synchronized", zap.Uint64("offset", ev.Offset), zap.String("session", ev.Session))
	case stream.EventSyncLost:
		limiter.Warn("Sync lost", zap.Uint64("offset", ev.Offset))
	case stream.EventError:
		limiter.Warn("Frame rejected",
			zap.Error(ev.Err),
			zap.String("reason", frame.Reason(ev.Err)),
			zap.Uint64("offset", ev.Offset),
			zap.String("raw", frame.FormatHex(ev.Raw)),
		)
		logging.LogRawBytes("Rejected frame bytes", ev.Raw)
	}
}

func openDevice(cfg *config.Config, spec *frame.Spec, mock bool) (adc.Device, error) {
	if mock {
		return adc.NewMock(&cfg.Mock, spec), nil
	}
	d, err := adc.NewFromConfig(cfg.Serial)
	if err != nil {
		return nil, fmt.Errorf("invalid serial configuration: %w", err)
	}
	return d, nil
}

func deviceName(cfg *config.Config, device adc.Device) string {
	if s, ok := device.(fmt.Stringer); ok {
		return s.String()
	}
	return cfg.Serial.Port
}

func serveMetrics(addr string, h http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logging.Info("Serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
