// Package main is the pricebook CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/offerdesk/pricebook/internal/catalog"
	"github.com/offerdesk/pricebook/internal/cli"
	"github.com/offerdesk/pricebook/internal/config"
	"github.com/offerdesk/pricebook/internal/embedding"
	"github.com/offerdesk/pricebook/internal/ingest"
	"github.com/offerdesk/pricebook/internal/keyword"
	"github.com/offerdesk/pricebook/internal/models"
	"github.com/offerdesk/pricebook/internal/search"
	"github.com/offerdesk/pricebook/internal/server"
	"github.com/offerdesk/pricebook/internal/storage"
	"github.com/offerdesk/pricebook/internal/watcher"
	"github.com/offerdesk/pricebook/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/pricebook/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "pricebook server" from the project dir uses the
// project's config. Returns the config and the path that was actually loaded.
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
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "match":
		runMatch()
	case "rebuild":
		runRebuild()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("pricebook version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	rebuild := fs.Bool("rebuild", false, "rebuild catalogs from source files instead of loading stored snapshots")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	if err := components.Manager.Initialize(ctx, *rebuild); err != nil {
		logger.Fatal("Failed to initialize catalogs", zap.Error(err))
	}

	var watchSvc *watcher.Watcher
	if cfg.Catalog.WatchSources {
		mgr := components.Manager
		watchSvc = watcher.NewWatcher(
			[]string{
				cfg.Catalog.ForeignPriceList,
				cfg.Catalog.LocalPriceList,
				cfg.Catalog.ClientsFile,
			},
			func(path string) {
				logger.Info("source file changed, rebuilding catalogs", zap.String("path", path))
				if err := mgr.RebuildAll(context.Background()); err != nil {
					logger.Warn("rebuild after source change failed", zap.Error(err))
				}
			},
			logger,
		)
		watchCtx, watchCancel := context.WithCancel(ctx)
		defer watchCancel()
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	srv := server.NewServer(components.Engine, components.Matcher, components.Manager, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the
// query to the front of the slice so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument, so
// "pricebook search \"fire pump\" -limit 20" would otherwise leave -limit
// unparsed.
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

func parseOutputFormat(name string) (cli.OutputFormat, error) {
	switch name {
	case "text":
		return cli.OutputText, nil
	case "json":
		return cli.OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", name)
	}
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage when server is not running)")
	source := fs.String("source", "all", "catalog to search: foreign, local, or all")
	role := fs.String("role", "", "caller role; admin receives ranking fields")
	limit := fs.Int("limit", 0, "max results (0 = unlimited)")
	makeFilter := fs.String("make", "", "comma-separated make filter")
	approvals := fs.String("approvals", "", "comma-separated approvals filter")
	model := fs.String("model", "", "comma-separated model filter")
	productType := fs.String("product-type", "", "comma-separated product type (sheet) filter")
	clients := fs.Bool("clients", false, "search the client directory instead of item catalogs")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(searchArgs)

	queryStr := buildSearchQuery(fs.Args())
	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if *serverURL != "" {
		if *clients {
			results, err := clientSearchViaHTTP(*serverURL, queryStr)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
				os.Exit(1)
			}
			writeClientResults(results, format)
			return
		}
		results, err := itemSearchViaHTTP(*serverURL, queryStr, *source, *role, *limit, map[string]string{
			"make":         *makeFilter,
			"approvals":    *approvals,
			"model":        *model,
			"product_type": *productType,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteItemResults(os.Stdout, results, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Direct snapshot access (when server is not running).
	components, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	ctx := context.Background()
	if err := components.Manager.Initialize(ctx, false); err != nil {
		logger.Fatal("Failed to initialize catalogs", zap.Error(err))
	}

	if *clients {
		results, err := components.Engine.SearchClients(ctx, queryStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		writeClientResults(results, format)
		return
	}

	results := components.Engine.SearchItems(models.ItemQuery{
		Query:  queryStr,
		Source: *source,
		Role:   *role,
		Limit:  *limit,
		Filters: models.ItemFilters{
			Make:        splitCSV(*makeFilter),
			Approvals:   splitCSV(*approvals),
			Model:       splitCSV(*model),
			ProductType: splitCSV(*productType),
		},
	})
	if err := cli.WriteItemResults(os.Stdout, results, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runMatch() {
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	useForeign := fs.Bool("foreign", true, "match against the foreign catalog")
	useLocal := fs.Bool("local", true, "match against the local catalog")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: pricebook match [flags] <file.xlsx|file.csv>")
		os.Exit(1)
	}
	path := fs.Arg(0)
	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	components, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	ctx := context.Background()
	if err := components.Manager.Initialize(ctx, false); err != nil {
		logger.Fatal("Failed to initialize catalogs", zap.Error(err))
	}

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	result, err := components.Matcher.MatchUpload(ctx, f, filepath.Base(path), *useForeign, *useLocal)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Match failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteUploadResult(os.Stdout, result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runRebuild() {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	catalogName := fs.String("catalog", "", "rebuild only this catalog (foreign_items, local_items, or clients)")
	_ = fs.Parse(os.Args[2:])

	components, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	ctx := context.Background()
	var err error
	if *catalogName != "" {
		err = components.Manager.Rebuild(ctx, *catalogName)
	} else {
		err = components.Manager.RebuildAll(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Rebuild failed: %v\n", err)
		os.Exit(1)
	}
	for name, st := range components.Manager.Status() {
		fmt.Printf("%-15s %6d items (built %s)\n", name, st.Items, st.BuiltAt.Format(time.RFC3339))
	}
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Catalogs       map[string]catalog.CatalogStatus `json:"catalogs"`
	DiskUsageBytes int64                            `json:"disk_usage_bytes"`
	Config         map[string]interface{}           `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		components, logger := mustInitialize(*configPath)
		defer components.Close()
		defer logger.Sync()
		if err := components.Manager.Initialize(context.Background(), false); err != nil {
			logger.Fatal("Failed to initialize catalogs", zap.Error(err))
		}
		status = statusResponse{
			Catalogs:       components.Manager.Status(),
			DiskUsageBytes: storage.DiskUsageBytes(cfg.Storage.DatabasePath),
			Config: map[string]interface{}{
				"embedding_provider":   cfg.Embedding.Provider,
				"embedding_dimensions": cfg.Embedding.Dimensions,
				"markup_rate":          cfg.Catalog.MarkupRate,
				"match_threshold":      cfg.Match.Threshold,
				"database_path":        cfg.Storage.DatabasePath,
			},
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		for name, st := range status.Catalogs {
			fmt.Printf("%-15s %6d items (built %s)\n", name, st.Items, st.BuiltAt.Format(time.RFC3339))
		}
		fmt.Printf("disk_usage_bytes: %d\n", status.DiskUsageBytes)
		if status.Config != nil {
			fmt.Println()
			fmt.Println("# configuration")
			for _, key := range []string{"embedding_provider", "embedding_dimensions", "markup_rate", "match_threshold", "database_path"} {
				if v, ok := status.Config[key]; ok {
					fmt.Printf("%-22s %v\n", key+":", v)
				}
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func itemSearchViaHTTP(serverURL, query, source, role string, limit int, filters map[string]string) ([]models.ScoredItem, error) {
	params := url.Values{}
	params.Set("q", query)
	if source != "" {
		params.Set("source", source)
	}
	if role != "" {
		params.Set("role", role)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	for name, value := range filters {
		if value != "" {
			params.Set(name, value)
		}
	}
	var results []models.ScoredItem
	if err := getJSON(serverURL+"/api/v1/items/search?"+params.Encode(), &results); err != nil {
		return nil, err
	}
	return results, nil
}

func clientSearchViaHTTP(serverURL, query string) ([]models.ClientRecord, error) {
	params := url.Values{}
	params.Set("q", query)
	var results []models.ClientRecord
	if err := getJSON(serverURL+"/api/v1/clients/search?"+params.Encode(), &results); err != nil {
		return nil, err
	}
	return results, nil
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	var s statusResponse
	if err := getJSON(serverURL+"/api/v1/status", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func getJSON(endpoint string, out interface{}) error {
	resp, err := http.Get(endpoint)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func writeClientResults(results []models.ClientRecord, format cli.OutputFormat) {
	if format == cli.OutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(results)
		return
	}
	fmt.Printf("\nFound %d clients\n\n", len(results))
	for _, c := range results {
		fmt.Printf("%s\n", c.Name)
		if c.Address != "" {
			fmt.Printf("  %s\n", c.Address)
		}
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var values []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

// Components holds initialized services.
type Components struct {
	Snapshots *storage.SnapshotStore
	Embedder  embedding.Embedder
	Attrs     *keyword.AttrIndex
	Store     *catalog.Store
	Manager   *catalog.Manager
	Engine    *search.Engine
	Matcher   *ingest.Matcher
}

func (c *Components) Close() {
	if c.Snapshots != nil {
		_ = c.Snapshots.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Attrs != nil {
		_ = c.Attrs.Close()
	}
}

// mustInitialize loads config, builds the logger, and initializes all
// components, exiting the process on failure.
func mustInitialize(configPath string) (*Components, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return components, logger
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	snapshots, err := storage.NewSnapshotStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot store: %w", err)
	}

	embedder, err := newEmbedder(cfg, logger)
	if err != nil {
		_ = snapshots.Close()
		return nil, err
	}

	attrs, err := keyword.NewAttrIndex()
	if err != nil {
		_ = snapshots.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize attribute index: %w", err)
	}

	store := catalog.NewStore()
	manager := catalog.NewManager(cfg, store, snapshots, attrs, embedder, logger)
	engine := search.NewEngine(cfg, store, embedder)
	matcher := ingest.NewMatcher(cfg, store, embedder, logger)

	return &Components{
		Snapshots: snapshots,
		Embedder:  embedder,
		Attrs:     attrs,
		Store:     store,
		Manager:   manager,
		Engine:    engine,
		Matcher:   matcher,
	}, nil
}

// newEmbedder builds the configured embedding provider. The ONNX provider
// falls back to the mock embedder when the runtime or model is unavailable,
// so the server stays usable on machines without onnxruntime.
func newEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "onnx":
		onnxEmbedder, err := embedding.NewONNXEmbedder(
			cfg.Embedding.ModelPath,
			cfg.Embedding.Dimensions,
			cfg.Embedding.MaxTokens,
			cfg.Embedding.CacheSize,
		)
		if err != nil {
			logger.Warn("ONNX embedder unavailable, falling back to mock",
				zap.String("model_path", cfg.Embedding.ModelPath),
				zap.Error(err))
			return embedding.NewMockEmbedder(cfg.Embedding.Dimensions), nil
		}
		return onnxEmbedder, nil
	case "http":
		return embedding.NewHTTPEmbedder(
			cfg.Embedding.Endpoint,
			cfg.Embedding.Model,
			cfg.Embedding.APIKeyEnv,
			cfg.Embedding.Dimensions,
			cfg.Embedding.CacheSize,
		)
	case "mock":
		return embedding.NewMockEmbedder(cfg.Embedding.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func printUsage() {
	fmt.Println(`pricebook - semantic price list search and matching

Usage:
  pricebook server [flags]           Start the HTTP server
  pricebook search [flags] <query>   Search catalog items (or clients with --clients)
  pricebook match [flags] <file>     Match an uploaded sheet against the catalogs
  pricebook rebuild [flags]          Rebuild catalogs from source files
  pricebook status [flags]           Show catalog and storage status
  pricebook version                  Show version
  pricebook help                     Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/pricebook/config.yaml)
  --debug            Enable debug logging
  --rebuild          Rebuild catalogs from source files on startup

Search Flags:
  --config string        Config file path (for direct storage mode)
  --server string        Server URL (default: http://localhost:8080). Use empty (--server "") when the server is not running.
  --source string        Catalog to search: foreign, local, or all (default: all)
  --role string          Caller role; admin receives ranking fields
  --limit int            Max results (0 = unlimited)
  --make string          Comma-separated make filter
  --approvals string     Comma-separated approvals filter
  --model string         Comma-separated model filter
  --product-type string  Comma-separated product type (sheet) filter
  --clients              Search the client directory instead of item catalogs
  --output string        Output format: text or json (default: text)

Match Flags:
  --config string    Config file path
  --foreign          Match against the foreign catalog (default: true)
  --local            Match against the local catalog (default: true)
  --output string    Output format: text or json (default: text)

Rebuild Flags:
  --config string    Config file path
  --catalog string   Rebuild only this catalog (foreign_items, local_items, or clients)

Examples:
  pricebook server
  pricebook search diesel fire pump
  pricebook search --source local --make NAFFCO "sprinkler head"
  pricebook search --clients "al futtaim"
  pricebook match --output json boq.xlsx
  pricebook rebuild
  pricebook status --output json`)
}
