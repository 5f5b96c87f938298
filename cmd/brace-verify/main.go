package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/platinummonkey/brace/pkg/builtin"
	"github.com/platinummonkey/brace/pkg/observability"
	"github.com/platinummonkey/brace/pkg/plugins"
	"golang.org/x/sync/errgroup"
)

// Config holds the verifier configuration
type Config struct {
	Dir           string
	Extension     string
	MaxConcurrent int
	JSON          bool
	LogLevel      string
	Paths         []string
}

// brace-verify checks plugin packages offline: each one is loaded into a
// throwaway boundary against the builtin host types and nothing is run.
func main() {
	config := parseFlags()
	logger := observability.NewLogger(config.LogLevel, observability.FormatText, os.Stderr)

	paths, err := collectPaths(config)
	if err != nil {
		logger.Fatalf("Failed to list packages: %v", err)
	}
	if len(paths) == 0 {
		logger.Fatal("No plugin packages to verify")
	}

	host := plugins.NewHostNamespace()
	if err := builtin.Register(host, logger); err != nil {
		logger.Fatalf("Failed to register builtin types: %v", err)
	}

	results, err := inspectAll(plugins.NewInspector(host, len(paths), 0), paths, config.MaxConcurrent)
	if err != nil {
		logger.Fatalf("Verification failed: %v", err)
	}

	if config.JSON {
		err = writeJSON(os.Stdout, results)
	} else {
		err = writeReport(os.Stdout, results)
	}
	if err != nil {
		logger.Fatalf("Failed to write report: %v", err)
	}

	if invalid := countInvalid(results); invalid > 0 {
		logger.WithField("invalid", invalid).Error("Some packages would not load")
		os.Exit(1)
	}
}

func parseFlags() Config {
	config := Config{}

	flag.StringVar(&config.Dir, "dir", "", "Verify every package in this directory")
	flag.StringVar(&config.Extension, "ext", plugins.DefaultExtension, "File extension of plugin packages (with -dir)")
	flag.IntVar(&config.MaxConcurrent, "max-concurrent", 4, "Maximum concurrent verifications")
	flag.BoolVar(&config.JSON, "json", false, "Print the report as JSON")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [package...]\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()
	config.Paths = flag.Args()
	return config
}

// collectPaths merges explicit arguments with the candidates found in -dir
func collectPaths(config Config) ([]string, error) {
	paths := append([]string(nil), config.Paths...)
	if config.Dir == "" {
		return paths, nil
	}

	entries, err := os.ReadDir(config.Dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), config.Extension) {
			continue
		}
		paths = append(paths, filepath.Join(config.Dir, entry.Name()))
	}
	return paths, nil
}

func inspectAll(inspector *plugins.Inspector, paths []string, limit int) ([]*plugins.Inspection, error) {
	results := make([]*plugins.Inspection, len(paths))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, path := range paths {
		g.Go(func() error {
			result, err := inspector.Inspect(path)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})
	return results, nil
}

func writeJSON(w io.Writer, results []*plugins.Inspection) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func writeReport(w io.Writer, results []*plugins.Inspection) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PACKAGE\tID\tVERSION\tSTATUS\tDETAIL")
	for _, r := range results {
		id, version := "-", "-"
		if r.Manifest != nil {
			id = r.Manifest.ID
			if r.Manifest.Version != "" {
				version = r.Manifest.Version
			}
		}
		status, detail := "ok", strings.Join(r.Types, ",")
		if !r.Valid {
			status, detail = r.Reason, r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", filepath.Base(r.Path), id, version, status, detail)
	}
	return tw.Flush()
}

func countInvalid(results []*plugins.Inspection) int {
	n := 0
	for _, r := range results {
		if !r.Valid {
			n++
		}
	}
	return n
}
