package cmd

import (
	"context"
	"os"

	"sketchpad/internal/config"
	"sketchpad/pkg/build"

	"github.com/spf13/cobra"
)

// flags are the command line settings layered over the configuration file.
type flags struct {
	configPath      string
	deviceID        int
	sampleRate      float64
	framesPerBuffer int
	remoteURL       string
	verbose         bool
}

// Execute builds the command tree and runs it with the process arguments.
func Execute(ctx context.Context) error {
	root := NewRootCommand()
	root.SetArgs(os.Args[1:])
	return root.ExecuteContext(ctx)
}

func NewRootCommand() *cobra.Command {
	buildInfo := build.GetBuildFlags()
	f := &flags{}

	var headless, pick bool
	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         build.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd, !headless)
			if err != nil {
				return err
			}
			return runSession(cmd.Context(), cfg, sessionMode{headless: headless, pickDevice: pick})
		},
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.Version = buildInfo.String()

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.Flags().BoolVar(&headless, "headless", false,
		"Stream live predictions to the transports without the terminal UI")
	rootCmd.Flags().BoolVar(&pick, "pick-device", false,
		"Choose the input device and sample rate interactively before starting")

	// Configuration
	rootCmd.PersistentFlags().StringVar(&f.configPath, "config", "",
		"Path to a YAML configuration file (default: config.yaml or sketchpad.yaml if present)")

	// Audio Device Configuration
	rootCmd.PersistentFlags().IntVarP(&f.deviceID, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	rootCmd.PersistentFlags().Float64VarP(&f.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	rootCmd.PersistentFlags().IntVarP(&f.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer, also the analyser FFT size")

	// Shared data service
	rootCmd.PersistentFlags().StringVar(&f.remoteURL, "remote", "",
		"Base URL of the shared training-data service, e.g. http://localhost:3000")

	// Debug Configuration
	rootCmd.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.AddCommand(
		newServeCommand(f),
		newListCommand(f),
		newExportCommand(f),
		newClearCommand(f),
		newAnalyseCommand(f),
	)
	return rootCmd
}

// load reads the configuration, applies flags the user set explicitly and
// configures logging. quiet keeps log output off the terminal.
func (f *flags) load(cmd *cobra.Command, quiet bool) (*config.Config, error) {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("device") {
		cfg.Audio.InputDevice = f.deviceID
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = f.framesPerBuffer
	}
	if changed("remote") {
		cfg.Store.RemoteURL = f.remoteURL
	}
	if f.verbose {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := configureLogging(cfg, quiet); err != nil {
		return nil, err
	}
	return cfg, nil
}
