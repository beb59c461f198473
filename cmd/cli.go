package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"beatpulse/internal/config"
	"beatpulse/pkg/build"
)

// ParseArgs builds the final configuration from the config file (if any)
// plus command line overrides. File values apply first, explicitly set
// flags win.
func ParseArgs() (*config.Config, error) {
	buildInfo := build.GetBuildFlags()

	var (
		cfg     = config.New()
		cfgPath string

		deviceID   int
		sampleRate float64
		frameSize  int
		channels   int
		lowLatency bool
		gain       float64
		record     bool
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Real-time beat, level, and tempo detection from a live audio input",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			cfg = loaded

			// Explicit flags override the file.
			f := cmd.Root().PersistentFlags()
			if f.Changed("device") {
				cfg.Audio.InputDevice = deviceID
			}
			if f.Changed("sample-rate") {
				cfg.Audio.SampleRate = sampleRate
			}
			if f.Changed("frames-per-buffer") {
				cfg.Audio.FramesPerBuffer = frameSize
			}
			if f.Changed("channels") {
				cfg.Audio.Channels = channels
			}
			if f.Changed("low-latency") {
				cfg.Audio.LowLatency = lowLatency
			}
			if f.Changed("gain") {
				cfg.Detector.SoftwareGain = gain
			}
			if f.Changed("record") {
				cfg.Recording.Enabled = record
			}
			if verbose {
				cfg.LogLevel = "debug"
			}
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Run = true
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Run: func(cmd *cobra.Command, args []string) {
			cfg.Command = "list"
			cfg.Run = false
		},
	}
	rootCmd.AddCommand(listCmd)

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "",
		"Path to a YAML configuration file")

	// Audio device configuration
	rootCmd.PersistentFlags().IntVarP(&deviceID, "device", "d", config.DefaultInputDevice,
		"Input device ID. Use 'list' to see available devices.")
	rootCmd.PersistentFlags().Float64VarP(&sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate in Hertz (Hz)")
	rootCmd.PersistentFlags().IntVarP(&frameSize, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"Frames per analysis buffer (power of 2, affects latency)")
	rootCmd.PersistentFlags().IntVarP(&channels, "channels", "c", config.DefaultChannels,
		"Number of channels to capture (analysis is always mono)")
	rootCmd.PersistentFlags().BoolVarP(&lowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use low latency mode for real-time processing")

	// Detector configuration
	rootCmd.PersistentFlags().Float64VarP(&gain, "gain", "g", config.DefaultSoftwareGain,
		"Software gain applied before level analysis")

	// Recording configuration
	rootCmd.PersistentFlags().BoolVarP(&record, "record", "r", false,
		"Record the raw input stream to a WAV file")

	// Debug configuration
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return cfg, nil
}
