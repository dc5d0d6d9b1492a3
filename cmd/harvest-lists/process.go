// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/harvest-lists/internal/cache"
	"github.com/pdiddy/harvest-lists/internal/classify"
	"github.com/pdiddy/harvest-lists/internal/harvest"
	"github.com/pdiddy/harvest-lists/internal/resolve"
	"github.com/pdiddy/harvest-lists/internal/secrets"
	"github.com/pdiddy/harvest-lists/pkg/types"
)

var processCmd = &cobra.Command{
	Use:   "process <field>",
	Short: "Build harvest lists for every year of one field",
	Long: `Process reads <input-dir>/<field>/<field><year>.csv for each year in
[--start, --end], samples at most --samples records per file, and resolves
each sampled article through the NCBI PMC ID Converter and Unpaywall.

For each file it writes:
  <output-dir>/<field>/<field><year>-UPW.jsonl.gz  articles with an open-access URL
  <output-dir>/<field>/<field><year>-PMC.txt       remaining articles with a PMC ID
  <reports-dir>/<field>/<field><year>-dump.csv     articles in neither list

A per-field report and run summary are written to <reports-dir>/<field>/.
A failed file does not stop the run.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

// processFlags maps configuration keys to the flags that set them.
var processFlags = map[string]string{
	"start_year":  "start",
	"end_year":    "end",
	"sample_size": "samples",
	"email":       "email",
	"seed":        "seed",
	"workers":     "workers",
	"timeout":     "timeout",
	"input_dir":   "input-dir",
	"output_dir":  "output-dir",
	"reports_dir": "reports-dir",
	"cache_db":    "cache-db",
	"abort_after": "abort-after",
}

func init() {
	f := processCmd.Flags()
	f.Int("start", types.DefaultStartYear, "first publication year")
	f.Int("end", types.DefaultEndYear, "last publication year (inclusive)")
	f.IntP("samples", "s", types.DefaultSampleSize, "maximum records classified per file")
	f.StringP("email", "e", "", "contact email sent to Unpaywall (default from .secrets/unpaywall-email, then "+types.DefaultEmail+")")
	f.Int64("seed", -1, "sampling seed; negative draws a random one")
	f.Int("workers", types.DefaultWorkers, "concurrent lookups per file")
	f.Duration("timeout", types.DefaultTimeout, "timeout for each HTTP request")
	f.String("input-dir", "input", "directory holding <field>/<field><year>.csv")
	f.String("output-dir", "output", "directory receiving harvest lists")
	f.String("reports-dir", "reports", "directory receiving reports and dumps")
	f.String("cache-db", "", "SQLite file caching lookup answers across runs (disabled when empty)")
	f.Int("abort-after", types.DefaultAbortAfter, "unreachable-service failures, with no answer, before a file is abandoned")

	for key, name := range processFlags {
		_ = viper.BindPFlag(key, f.Lookup(name))
	}
	_ = viper.BindEnv("ncbi_api_key")

	rootCmd.AddCommand(processCmd)
}

// loadConfig assembles the run configuration from flags, config file,
// environment and secrets, in that order of precedence.
func loadConfig() (types.HarvestConfig, error) {
	var cfg types.HarvestConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", harvest.ErrInvalidConfig, err)
	}
	loadedSecrets.Fill(&cfg.Email, secrets.KeyUnpaywallEmail)
	loadedSecrets.Fill(&cfg.NCBIAPIKey, secrets.KeyNCBIAPIKey)
	return cfg.WithDefaults(), nil
}

func runProcess(cmd *cobra.Command, args []string) error {
	field := args[0]
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: cfg.Timeout}

	idOpts := []resolve.IDConvOption{
		resolve.WithIDConvHTTPClient(client),
		resolve.WithIDConvRate(cfg.IDConvRate),
		resolve.WithIDConvContact(cfg.UserAgent, cfg.Email),
		resolve.WithNCBIAPIKey(cfg.NCBIAPIKey),
	}
	if cfg.IDConvBaseURL != "" {
		idOpts = append(idOpts, resolve.WithIDConvBaseURL(cfg.IDConvBaseURL))
	}
	oaOpts := []resolve.UnpaywallOption{
		resolve.WithUnpaywallHTTPClient(client),
		resolve.WithUnpaywallRate(cfg.UnpaywallRate),
		resolve.WithUnpaywallUserAgent(cfg.UserAgent),
	}
	if cfg.UnpaywallBaseURL != "" {
		oaOpts = append(oaOpts, resolve.WithUnpaywallBaseURL(cfg.UnpaywallBaseURL))
	}

	var (
		ids resolve.IdentifierResolver = resolve.NewIDConvClient(idOpts...)
		oa  resolve.OpenAccessResolver = resolve.NewUnpaywallClient(oaOpts...)
	)
	if cfg.CacheDB != "" {
		store, err := cache.Open(cfg.CacheDB)
		if err != nil {
			return err
		}
		defer store.Close()
		cacheLog := logger.With("component", "cache")
		ids = cache.WrapIdentifiers(ids, store, cacheLog)
		oa = cache.WrapOpenAccess(oa, store, cacheLog)
	}

	classifier := classify.New(ids, oa, classify.Options{
		Email:      cfg.Email,
		Workers:    cfg.Workers,
		AbortAfter: cfg.AbortAfter,
		Logger:     logger.With("component", "classify"),
	})

	runner := harvest.NewRunner(cfg, classifier, os.Stdout, logger)
	run, err := runner.Run(cmd.Context(), field)
	if err != nil {
		return err
	}
	if run.HasFailures() {
		logger.Warn("some files failed", "failed", run.FailedCount(), "report", harvest.ReportPath(cfg, field))
	}
	return nil
}
