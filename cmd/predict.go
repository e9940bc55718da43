package cmd

import (
	"context"
	"fmt"
	"io"

	"sketchpad/internal/config"
	"sketchpad/internal/sample"
	"sketchpad/internal/shape"
)

// printPrediction trains a model on the stored history and prints its
// labels for fv.
func printPrediction(ctx context.Context, out io.Writer, cfg *config.Config, fv sample.FeatureVector) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	a.store.LoadAtStartup(ctx)
	if n := a.engine.Replay(a.store.Samples()); n == 0 {
		fmt.Fprintln(out, "  no training samples, nothing learned yet")
		return nil
	}
	if err := <-a.engine.Fit(ctx, cfg.Learning.Epochs); err != nil {
		return fmt.Errorf("train: %w", err)
	}

	p, err := a.engine.Predict(ctx, fv)
	if err != nil {
		return err
	}
	if !p.Available {
		fmt.Fprintf(out, "  model not ready (%d samples, %d required)\n", a.engine.Len(), cfg.Learning.MinSamples)
		return nil
	}
	l := p.Labels
	fmt.Fprintf(out, "  learned    y1=%.3f y2=%.3f y3=%.3f y4=%.3f shape=%s", l.Y1, l.Y2, l.Y3, l.Y4, shape.Name(l.Shape))
	if p.Fallback {
		fmt.Fprint(out, " (fallback)")
	}
	fmt.Fprintln(out)
	return nil
}
