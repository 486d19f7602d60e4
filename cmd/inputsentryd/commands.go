package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"inputsentry/internal/config"
	"inputsentry/internal/store"
)

func cmdStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "", "Configuration file")
	dbPath := fs.String("db", "", "Verdict database (overrides reporting.store.path)")
	limit := fs.Int("n", 10, "Number of recent verdicts to show")
	asJSON := fs.Bool("json", false, "Output JSON")
	fs.Parse(args)

	cfg, err := config.Load(resolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	path := cfg.Reporting.Store.Path
	if *dbPath != "" {
		path = *dbPath
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "No verdict history at %s\n", path)
		fmt.Fprintln(os.Stderr, "Enable it with [reporting.store] enabled = true.")
		os.Exit(1)
	}

	if err := printStats(os.Stdout, path, *limit, *asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type statsOutput struct {
	Database      string         `json:"database"`
	Total         int            `json:"total"`
	Suspicious    int            `json:"suspicious"`
	BySeverity    map[string]int `json:"by_severity"`
	MaxConfidence float64        `json:"max_confidence"`
	First         *time.Time     `json:"first,omitempty"`
	Last          *time.Time     `json:"last,omitempty"`
	Recent        []store.Record `json:"recent"`
}

func printStats(w io.Writer, path string, limit int, asJSON bool) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sum, err := st.Summary(ctx)
	if err != nil {
		return err
	}
	recent, err := st.Recent(ctx, limit)
	if err != nil {
		return err
	}

	out := statsOutput{
		Database:      path,
		Total:         sum.Total,
		Suspicious:    sum.Suspicious,
		BySeverity:    sum.BySeverity,
		MaxConfidence: sum.MaxConfidence,
		Recent:        recent,
	}
	if !sum.First.IsZero() {
		out.First, out.Last = &sum.First, &sum.Last
	}
	if out.Recent == nil {
		out.Recent = []store.Record{}
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "Database:    %s\n", out.Database)
	fmt.Fprintf(w, "Verdicts:    %d (%d suspicious)\n", out.Total, out.Suspicious)
	if out.Total == 0 {
		return nil
	}
	fmt.Fprintf(w, "Max conf:    %.1f%%\n", min(out.MaxConfidence, 1)*100)
	fmt.Fprintf(w, "Range:       %s - %s\n", out.First.Format(time.RFC3339), out.Last.Format(time.RFC3339))

	sevs := make([]string, 0, len(out.BySeverity))
	for sev := range out.BySeverity {
		sevs = append(sevs, sev)
	}
	sort.Strings(sevs)
	parts := make([]string, 0, len(sevs))
	for _, sev := range sevs {
		parts = append(parts, fmt.Sprintf("%s=%d", sev, out.BySeverity[sev]))
	}
	fmt.Fprintf(w, "Severity:    %s\n", strings.Join(parts, " "))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Recent:")
	for _, r := range out.Recent {
		mark := " "
		if r.Verdict.Suspicious {
			mark = "!"
		}
		fmt.Fprintf(w, "  %s %s  %5.1f%%  %-6s  %s\n",
			mark,
			r.Verdict.Timestamp.Format("2006-01-02 15:04:05"),
			r.Verdict.ClampedConfidence()*100,
			r.Verdict.Severity(),
			strings.Join(r.Verdict.Reasons, "; "),
		)
	}
	return nil
}

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "Configuration file")
	fs.Parse(args)

	path := resolveConfigPath(*configPath)
	if err := checkConfig(os.Stdout, path); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func checkConfig(w io.Writer, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			var b strings.Builder
			fmt.Fprintf(&b, "%s: %d problem(s)\n", path, len(verrs))
			for _, e := range verrs {
				fmt.Fprintf(&b, "  %s: %s\n", e.Field, e.Message)
			}
			return errors.New(strings.TrimRight(b.String(), "\n"))
		}
		return err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(w, "%s does not exist; defaults are valid\n", path)
		return nil
	}
	fmt.Fprintf(w, "%s: OK\n", path)
	return nil
}

func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", config.ConfigPath(), "Where to write the configuration")
	fs.Parse(args)

	_, created, err := config.LoadOrCreate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if created {
		fmt.Printf("Wrote default configuration to %s\n", *configPath)
	} else {
		fmt.Printf("Configuration already exists at %s\n", *configPath)
	}
}
