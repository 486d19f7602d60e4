package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"inputsentry/internal/config"
	"inputsentry/internal/detect"
	"inputsentry/internal/event"
	"inputsentry/internal/schema"
	"inputsentry/internal/verdict"
)

// ErrTooFewSamples is returned when a calibration sample is too short.
var ErrTooFewSamples = errors.New("not enough key presses to calibrate")

func cmdCalibrate(args []string) {
	fs := flag.NewFlagSet("calibrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Configuration file to update")
	inputPath := fs.String("input", "-", "Known-human capture sample, \"-\" for stdin")
	dryRun := fs.Bool("dry-run", false, "Print the baseline without saving it")
	fs.Parse(args)

	path := resolveConfigPath(*configPath)
	if _, err := calibrate(os.Stdout, path, *inputPath, *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// sampleCollector keeps every valid record of a calibration sample.
type sampleCollector struct {
	records []event.Record
}

func (c *sampleCollector) Ingest(rec event.Record) (*verdict.Verdict, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	c.records = append(c.records, rec)
	return nil, nil
}

// calibrate derives a typing baseline from the sample at inputPath and,
// unless dryRun is set, stores its rate as detectors.speed.baseline_wpm in
// the configuration at cfgPath.
func calibrate(w io.Writer, cfgPath, inputPath string, dryRun bool) (detect.Baseline, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return detect.Baseline{}, fmt.Errorf("load %s: %w", cfgPath, err)
	}

	var validator *schema.Validator
	if cfg.Input.ValidateSchema {
		if validator, err = schema.NewBrowserValidator(); err != nil {
			return detect.Baseline{}, err
		}
	}

	in, closeIn, err := openInput(config.InputConfig{Path: inputPath})
	if err != nil {
		return detect.Baseline{}, fmt.Errorf("open sample: %w", err)
	}
	defer closeIn()

	var sample sampleCollector
	st, err := consume(in, &sample, event.BrowserNormalizer{}, validator, slog.New(slog.DiscardHandler))
	if err != nil {
		return detect.Baseline{}, err
	}

	b, ok := detect.CalibrateBaseline(sample.records)
	if !ok {
		return detect.Baseline{}, fmt.Errorf("%w: need %d key downs spread over time, sample has %d usable events",
			ErrTooFewSamples, detect.MinCalibrationSamples, st.Accepted)
	}

	fmt.Fprintf(w, "Sample:      %d events (%d skipped)\n", st.Accepted, st.Invalid+st.Rejected)
	fmt.Fprintf(w, "Rate:        %.1f WPM\n", b.WPM)
	fmt.Fprintf(w, "Rhythm:      mean %.3fs, stddev %.3fs\n", b.Rhythm.Mean, b.Rhythm.StdDev)
	if b.Rhythm.StdDev < cfg.Detectors.Rhythm.MinStdDev || b.Rhythm.StdDev > cfg.Detectors.Rhythm.MaxStdDev {
		fmt.Fprintln(w, "Warning:     sample rhythm is outside the human band; is it really hand-typed?")
	}

	if dryRun {
		return b, nil
	}

	cfg.Detectors.Speed.BaselineWPM = b.WPM
	if err := config.SaveConfig(cfg, cfgPath); err != nil {
		return b, fmt.Errorf("save %s: %w", cfgPath, err)
	}
	fmt.Fprintf(w, "Saved baseline_wpm = %.1f to %s\n", b.WPM, cfgPath)
	return b, nil
}
