// Package main is the dashrag CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/dashrag/internal/cli"
	"github.com/hyperjump/dashrag/internal/collection"
	"github.com/hyperjump/dashrag/internal/config"
	"github.com/hyperjump/dashrag/internal/embedding"
	"github.com/hyperjump/dashrag/internal/ingest"
	"github.com/hyperjump/dashrag/internal/loader"
	"github.com/hyperjump/dashrag/internal/models"
	"github.com/hyperjump/dashrag/internal/ranking"
	"github.com/hyperjump/dashrag/internal/search"
	"github.com/hyperjump/dashrag/internal/server"
	"github.com/hyperjump/dashrag/internal/sparse"
	"github.com/hyperjump/dashrag/internal/watcher"
	"github.com/hyperjump/dashrag/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/dashrag/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if present, and a missing default file yields the built-in
// defaults. Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// .env supplies API keys for remote embedders; it is optional.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("dashrag version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and creates the logger shared by every subcommand.
func setup(configPath string, debugFlag bool) (*config.Config, string, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if debugFlag {
		cfg.Debug = true
	}
	logger, err := utils.NewLogger(cfg.Debug, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, resolved, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (file events, ingestion, queries)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger := setup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug),
		zap.String("collection", cfg.Collection.Path()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchOpts := []watcher.Option{}
	if cfg.Debug {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.New(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(ctx context.Context, paths []string) {
			report, err := components.Ingest.ProcessFiles(ctx, paths...)
			if err != nil {
				logger.Warn("Inbox ingest failed", zap.Strings("paths", paths), zap.Error(err))
				return
			}
			for _, f := range report.Failures {
				logger.Warn("Inbox file skipped", zap.String("path", f.Path), zap.Error(f.Err))
			}
		},
		watchOpts...,
	)
	if err := watchSvc.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer watchSvc.Stop()

	srv := server.NewServer(
		components.Searcher,
		components.Ingest,
		components.Collection,
		&cfg.Server,
		logger,
		server.WithWatch(watchSvc, resolvedConfigPath, cfg),
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = write the collection directly)")
	strict := fs.Bool("strict", false, "abort on the first file that cannot be loaded")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: dashrag ingest [flags] <file-or-directory>...")
		os.Exit(1)
	}
	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()
	if *strict {
		cfg.Loader.Strict = true
	}

	paths, err := expandPaths(fs.Args(), cfg.Loader.Extensions, cfg.Watch.RecursiveOrDefault())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list files: %v\n", err)
		os.Exit(1)
	}
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "No supported files found")
		os.Exit(1)
	}

	var report *ingest.Report
	if *serverURL != "" {
		report, err = ingestViaHTTP(*serverURL, paths)
	} else {
		components, initErr := initializeComponents(context.Background(), cfg, logger)
		if initErr != nil {
			logger.Fatal("Failed to initialize", zap.Error(initErr))
		}
		defer components.Close()
		report, err = components.Ingest.ProcessFiles(context.Background(), paths...)
	}
	if report != nil {
		for _, f := range report.Failures {
			fmt.Fprintf(os.Stderr, "Skipped %s: %v\n", f.Path, f.Err)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	action := "Added"
	if report.Built {
		action = "Built collection with"
	}
	fmt.Printf("%s %d documents from %d files (batch %s)\n", action, report.Documents, len(paths)-len(report.Failures), report.BatchID)
}

// expandPaths turns directory arguments into their supported files and makes every
// path absolute, so the server resolves them the same way.
func expandPaths(args []string, extensions []string, recursive bool) ([]string, error) {
	var out []string
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			out = append(out, abs)
			continue
		}
		files, err := watcher.ListFiles(abs, extensions, recursive)
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}
	return out, nil
}

type ingestHTTPResponse struct {
	ingest.Report
	Failures []struct {
		Path  string `json:"path"`
		Error string `json:"error"`
	} `json:"failures"`
}

func ingestViaHTTP(serverURL string, paths []string) (*ingest.Report, error) {
	var out ingestHTTPResponse
	if err := postJSON(serverURL+"/api/v1/ingest", map[string][]string{"paths": paths}, &out); err != nil {
		return nil, err
	}
	report := out.Report
	for _, f := range out.Failures {
		report.Failures = append(report.Failures, &models.LoadError{Path: f.Path, Err: errors.New(f.Error)})
	}
	return &report, nil
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: dashrag search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Results are ranked by fused dense and sparse similarity.
  • Use --tables to restrict results to pages that contain a table.
  • Use --filter key=value (repeatable) for exact metadata matches, e.g. --filter source_file=report.pdf.

Examples:
  dashrag search quarterly revenue by region
  dashrag search --tables --k 5 revenue
  dashrag search --output json "marketing budget"
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchConfigPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func searchConfigPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultPath
}

// searchDefaultKFromConfig returns search.default_k from the config at path, or 3
// when it cannot be loaded.
func searchDefaultKFromConfig(path string) int {
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil || cfg.Search.DefaultK < 1 {
		return 3
	}
	return cfg.Search.DefaultK
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front so flag.Parse sees them; flag stops at the first positional argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// filterFlag collects repeated key=value pairs into a metadata filter.
type filterFlag models.Filter

func (f filterFlag) String() string { return models.Filter(f).String() }

func (f filterFlag) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("filter must be key=value, got %q", v)
	}
	switch value {
	case "true":
		f[key] = true
	case "false":
		f[key] = false
	default:
		f[key] = value
	}
	return nil
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])
	defaultK := searchDefaultKFromConfig(searchConfigPathFromArgs(searchArgs, defaultConfigPath))

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the collection directly)")
	k := fs.Int("k", defaultK, "number of results")
	tables := fs.Bool("tables", false, "only return pages that contain a table")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (one result per line), or json (parseable)")
	filter := filterFlag{}
	fs.Var(filter, "filter", "metadata filter key=value (repeatable)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}

	format := cli.SearchOutputFormat(*outputFormat)
	switch format {
	case cli.OutputText, cli.OutputCompact, cli.OutputJSON:
	default:
		fmt.Printf("Unknown output format %q; use text, compact, or json\n", *outputFormat)
		os.Exit(1)
	}

	query := &models.SearchQuery{
		Query:      queryStr,
		K:          *k,
		TablesOnly: *tables,
		Filter:     models.Filter(filter),
	}

	start := time.Now()
	var results []*models.SearchResult
	if *serverURL != "" {
		// The server owns the collection while it runs; go through its API.
		response, err := searchViaHTTP(*serverURL, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		for i, d := range response.Documents {
			results = append(results, &models.SearchResult{Document: d, Rank: i + 1})
		}
	} else {
		cfg, _, logger := setup(*configPath, false)
		defer logger.Sync()
		components, err := initializeComponents(context.Background(), cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()
		results, err = components.Searcher.SearchWithScores(context.Background(), query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteSearchResults(os.Stdout, queryStr, results, time.Since(start), format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

type searchHTTPRequest struct {
	Query      string        `json:"query"`
	K          int           `json:"k"`
	TablesOnly bool          `json:"tables_only"`
	Filter     models.Filter `json:"filter,omitempty"`
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	var response models.SearchResponse
	req := searchHTTPRequest{Query: query.Query, K: query.K, TablesOnly: query.TablesOnly, Filter: query.Filter}
	if err := postJSON(serverURL+"/api/v1/search", req, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func postJSON(url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Path           string                 `json:"path"`
	Loaded         bool                   `json:"loaded"`
	Documents      int                    `json:"documents"`
	DiskUsageBytes int64                  `json:"disk_usage_bytes,omitempty"`
	Collection     *models.CollectionInfo `json:"collection,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the collection directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		resp, err := http.Get(*serverURL + "/api/v1/status")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Status failed: server returned %d: %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: decode response: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, logger := setup(*configPath, false)
		defer logger.Sync()
		components, err := initializeComponents(context.Background(), cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()
		col := components.Collection
		status.Path = col.Path()
		status.Loaded = col.Loaded()
		if info, infoErr := col.Info(); infoErr == nil {
			status.Collection = info
			status.Documents = col.Count()
		}
		if du, duErr := col.DiskUsage(); duErr == nil {
			status.DiskUsageBytes = du
		}
	}

	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(status)
		return
	}
	cli.WriteStatus(os.Stdout, status.Path, status.Collection, status.Documents, status.DiskUsageBytes)
}

// Components holds initialized services.
type Components struct {
	Dense      embedding.Embedder
	Sparse     sparse.Embedder
	Collection *collection.Collection
	Loader     *loader.FileLoader
	Ingest     *ingest.Service
	Searcher   *search.Searcher
}

// Close releases the collection and the dense model.
func (c *Components) Close() {
	if c.Collection != nil {
		_ = c.Collection.Close()
	}
	if c.Dense != nil {
		_ = c.Dense.Close()
	}
}

// initializeComponents wires the embedders, collection, loader, ingestion, and
// search. An existing collection is loaded; a missing one is built by the first ingest.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	dense, err := embedding.New(cfg.Embedding.Dense, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dense embedder: %w", err)
	}
	sp, err := sparse.NewBM25Embedder(cfg.Embedding.Sparse.Analyzer,
		sparse.WithParameters(cfg.Embedding.Sparse.K1, cfg.Embedding.Sparse.B, cfg.Embedding.Sparse.AvgDocLen))
	if err != nil {
		_ = dense.Close()
		return nil, fmt.Errorf("failed to initialize sparse embedder: %w", err)
	}
	c := &Components{Dense: dense, Sparse: sp}

	var debugLogger *zap.Logger
	if cfg.Debug {
		debugLogger = logger
	}
	c.Collection = collection.New(cfg.Collection.Path(), dense, sp,
		collection.WithName(cfg.Collection.Name),
		collection.WithBackend(cfg.Collection.Backend),
		collection.WithWorkers(cfg.Embedding.Workers),
		collection.WithFusion(&ranking.FusionConfig{
			Method:       cfg.Search.Fusion,
			DenseWeight:  cfg.Search.DenseWeight,
			SparseWeight: cfg.Search.SparseWeight,
			RRFK:         cfg.Search.RRFK,
		}),
		collection.WithLogger(logger),
	)
	if c.Collection.Exists() {
		if err := c.Collection.Load(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to load collection: %w", err)
		}
	}

	c.Loader = loader.New(
		loader.WithStrict(cfg.Loader.Strict),
		loader.WithExtensions(cfg.Loader.Extensions),
		loader.WithPreviewRows(cfg.Loader.PreviewRows),
		loader.WithLogger(debugLogger),
	)
	c.Ingest = ingest.NewService(c.Loader, c.Collection, cfg.Ingest, ingest.WithLogger(logger))
	c.Searcher = search.NewSearcher(c.Collection, cfg.Search, search.WithLogger(debugLogger))
	return c, nil
}

func printUsage() {
	fmt.Println(`dashrag - Hybrid dense + sparse document index for dashboard context retrieval

Usage:
  dashrag server [flags]                  Start the HTTP server and inbox watcher
  dashrag ingest [flags] <path>...        Load files (or directories) into the collection
  dashrag search [flags] <query>          Search the collection
  dashrag status [flags]                  Show collection status
  dashrag version                         Show version
  dashrag help                            Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/dashrag/config.yaml)
  --debug            Enable debug logging

Ingest Flags:
  --config string    Config file path
  --server string    Server URL; empty writes the collection directly (default: "")
  --strict           Abort on the first file that cannot be loaded

Search Flags:
  --config string    Config file path (direct mode; also supplies the default k)
  --server string    Server URL (default: http://localhost:8080). Use --server "" when no server runs.
  --k int            Number of results (default from config, or 3)
  --tables           Only return pages that contain a table
  --filter key=value Metadata filter (repeatable)
  --output string    Output format: text, compact, or json (default: text)

Status Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct mode.
  --output string    Output format: text or json (default: text)

Examples:
  dashrag server
  dashrag ingest ./reports/q3.pdf ./reports/sales.xlsx
  dashrag search --tables "revenue by region"
  dashrag search --server "" --output json churn
  dashrag status --output json`)
}
