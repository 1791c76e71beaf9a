// cmd/root.go
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rfwx/oregonrx/internal/audio"
	"github.com/rfwx/oregonrx/internal/config"
	"github.com/rfwx/oregonrx/internal/dsp"
	"github.com/rfwx/oregonrx/internal/oregon"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "oregonrx",
	Short: "Oregon Scientific weather sensor decoder from audio input",
	Long: `A real-time decoder for Oregon Scientific 433 MHz weather sensors.
It slices the receiver's baseband audio into mark/space pulses, recovers the
Manchester-coded bit stream and prints decoded sensor readings.`,
	RunE: runDecoder,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (override config file)
	rootCmd.PersistentFlags().IntP("device", "d", -1, "audio device index (-1 for default)")
	rootCmd.PersistentFlags().Float64P("threshold", "t", 0.4, "pulse detection threshold (0.0-1.0)")
	rootCmd.PersistentFlags().Bool("invert", false, "invert the detected signal level")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")

	// Bind flags to viper
	viper.BindPFlag("device_index", rootCmd.PersistentFlags().Lookup("device"))
	viper.BindPFlag("threshold", rootCmd.PersistentFlags().Lookup("threshold"))
	viper.BindPFlag("invert", rootCmd.PersistentFlags().Lookup("invert"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}

func runDecoder(cmd *cobra.Command, args []string) error {
	settings, err := config.Get()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	envelope, err := dsp.NewEnvelope(dsp.EnvelopeConfig{
		SampleRate: settings.SampleRate,
		AttackMs:   settings.AttackMs,
		ReleaseMs:  settings.ReleaseMs,
	})
	if err != nil {
		return fmt.Errorf("envelope: %w", err)
	}

	detector, err := dsp.NewDetector(dsp.DetectorConfig{
		SampleRate:   settings.SampleRate,
		Threshold:    settings.Threshold,
		HysteresisUs: settings.HysteresisUs,
		AGCEnabled:   settings.AGCEnabled,
		AGCDecay:     settings.AGCDecay,
		AGCAttack:    settings.AGCAttack,
		AGCWarmupMs:  settings.AGCWarmupMs,
		Invert:       settings.Invert,
	}, envelope)
	if err != nil {
		return fmt.Errorf("detector: %w", err)
	}

	decoder := oregon.NewDecoder()
	decoder.SetCallback(func(msg oregon.Message) {
		printMessage(cmd, msg)
	})

	detector.SetCallback(func(event dsp.PulseEvent) {
		synced := decoder.Stats().FramesSynced
		decoder.Step(event.Duration, event.Mark)
		if settings.Debug && decoder.Stats().FramesSynced > synced {
			fmt.Fprintf(cmd.ErrOrStderr(), "sync (preamble detected)\n")
		}
	})

	capture := audio.New(audio.Config{
		DeviceIndex: settings.DeviceIndex,
		SampleRate:  uint32(settings.SampleRate),
		Channels:    uint32(settings.Channels),
		BufferSize:  uint32(settings.BufferSize),
	})
	if err := capture.Init(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	defer capture.Close()

	// Samples go straight from the audio thread into the detector. The
	// detector is single-consumer by construction so this is safe.
	capture.SetCallback(func(samples []float32) {
		detector.Process(samples)
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := capture.Start(ctx); err != nil {
		return fmt.Errorf("audio: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "listening on device %d at %.0f Hz (Ctrl-C to stop)\n",
		settings.DeviceIndex, settings.SampleRate)

	<-ctx.Done()

	if err := capture.Stop(); err != nil && err != audio.ErrNotRunning {
		return fmt.Errorf("audio: %w", err)
	}

	if settings.Debug {
		stats := decoder.Stats()
		fmt.Fprintf(cmd.ErrOrStderr(),
			"frames synced: %d, messages: %d, checksum failures: %d, unknown sensors: %d, encoding violations: %d\n",
			stats.FramesSynced, stats.Messages, stats.ChecksumFailures,
			stats.UnknownSensors, stats.EncodingViolations)
	}

	return nil
}

func printMessage(cmd *cobra.Command, msg oregon.Message) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s sensor=0x%04X channel=%d id=0x%02X battery=%s",
		msg.Protocol, msg.SensorType, msg.Fields[oregon.FieldChannel],
		msg.RollingID, batteryState(msg.LowBattery))

	if v, ok := msg.Fields[oregon.FieldTemp]; ok {
		fmt.Fprintf(out, " temp=%.1fC", float64(v)/10)
	}
	if v, ok := msg.Fields[oregon.FieldMoisture]; ok {
		fmt.Fprintf(out, " humidity=%d%%", v)
	}
	if v, ok := msg.Fields[oregon.FieldDirection]; ok {
		fmt.Fprintf(out, " direction=%.1fdeg", float64(v)*22.5)
	}
	if v, ok := msg.Fields[oregon.FieldWind]; ok {
		fmt.Fprintf(out, " wind=%.1fm/s", float64(v)/10)
	}
	if v, ok := msg.Fields[oregon.FieldAverageWind]; ok {
		fmt.Fprintf(out, " avgwind=%.1fm/s", float64(v)/10)
	}
	fmt.Fprintln(out)
}

func batteryState(low bool) string {
	if low {
		return "low"
	}
	return "ok"
}
