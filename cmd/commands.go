package cmd

import (
	"fmt"
	"io"
	"os"

	"sketchpad/internal/audio"
	"sketchpad/internal/features"
	"sketchpad/internal/log"
	"sketchpad/internal/sample"
	"sketchpad/internal/server"
	"sketchpad/internal/shape"
	"sketchpad/internal/tui"

	"github.com/spf13/cobra"
)

func newServeCommand(f *flags) *cobra.Command {
	var addr, dataFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the shared training-data service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd, false)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if dataFile != "" {
				cfg.Server.DataFile = dataFile
			}

			v := sample.NewValidator(cfg.Shape.Count)
			repo, err := server.OpenFileRepository(cfg.Server.DataFile, v)
			if err != nil {
				return err
			}
			srv := server.New(cfg.Server, repo, v)

			errc := make(chan error, 1)
			go func() { errc <- srv.Run() }()

			select {
			case err := <-errc:
				return err
			case <-cmd.Context().Done():
				log.Infof("DataServer: Shutting down")
				return srv.Shutdown()
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, or PORT)")
	cmd.Flags().StringVar(&dataFile, "data", "", "JSON file holding the shared samples")
	return cmd
}

func newListCommand(f *flags) *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := f.load(cmd, interactive); err != nil {
				return err
			}
			if err := audio.Initialize(); err != nil {
				return err
			}
			defer audio.Terminate()

			if !interactive {
				return audio.ListDevices(cmd.OutOrStdout())
			}
			choice, err := tui.PickDevice()
			if err != nil || choice == nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "--device %d --sample-rate %.0f\n", choice.DeviceID, choice.SampleRate)
			return nil
		},
	}
	cmd.Flags().BoolVar(&interactive, "tui", false, "Browse devices interactively and print the flags for the chosen one")
	return cmd
}

func newExportCommand(f *flags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the training samples as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd, false)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			src := a.store.LoadAtStartup(cmd.Context())
			log.Infof("Export: %d samples from %s", a.store.Len(), src)

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return err
				}
				defer file.Close()
				w = file
			}
			return a.store.ExportCSV(w)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func newClearCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all training samples, locally and on the shared service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd, false)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All data cleared")
			return nil
		},
	}
}

func newAnalyseCommand(f *flags) *cobra.Command {
	var predict bool
	cmd := &cobra.Command{
		Use:   "analyse <file.wav>",
		Short: "Summarise a WAV clip the way a recording would be",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd, false)
			if err != nil {
				return err
			}
			pcm, rate, err := audio.LoadWAV(args[0])
			if err != nil {
				return err
			}

			opts, err := features.AnalyserOptionsFrom(cfg.Audio)
			if err != nil {
				return err
			}
			analyser, err := features.NewAnalyser(opts)
			if err != nil {
				return err
			}
			summary := features.SummarizeClip(pcm, rate/cfg.Session.FPS, analyser,
				features.NewExtractor(cfg.Features),
				features.NewAggregator(cfg.Recording.PeakBlend, cfg.Recording.MeanWeight))

			out := cmd.OutOrStdout()
			fv := summary.Features
			fmt.Fprintf(out, "%s: %.2fs at %d Hz, %d frames\n", args[0], float64(len(pcm))/float64(rate), rate, summary.Frames)
			fmt.Fprintf(out, "  loudness   %.4f\n  pitch      %.4f\n  brightness %.4f\n  roughness  %.4f\n",
				fv.Loudness, fv.Pitch, fv.Brightness, fv.Roughness)

			idx, err := shape.NewClassifier(cfg.Shape).Classify(fv)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  shape      %s (rules)\n", shape.Name(idx))

			if !predict {
				return nil
			}
			return printPrediction(cmd.Context(), out, cfg, fv)
		},
	}
	cmd.Flags().BoolVar(&predict, "predict", false, "Also train on the stored samples and print the learned labels")
	return cmd
}
