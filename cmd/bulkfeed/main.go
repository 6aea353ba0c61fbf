// -----------------------------------------------------------------------
// Last Modified: Saturday, 1st August 2026 9:00:00 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/bulkfeed/internal/bulk/cache"
	"github.com/ternarybob/bulkfeed/internal/bulk/fetch"
	"github.com/ternarybob/bulkfeed/internal/bulk/image"
	"github.com/ternarybob/bulkfeed/internal/bulk/refresh"
	"github.com/ternarybob/bulkfeed/internal/bulk/serve"
	"github.com/ternarybob/bulkfeed/internal/bulk/site"
	"github.com/ternarybob/bulkfeed/internal/common"
	"github.com/ternarybob/bulkfeed/internal/httpclient"
)

// configPaths is a custom flag type that allows multiple -config flags.
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	serverPort   = flag.Int("port", 0, "HTTP server port (overrides config)")
	serverHost   = flag.String("host", "", "HTTP server host (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("bulkfeed version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Install crash handler, print banner
	if len(configFiles) == 0 {
		if _, err := os.Stat("bulkfeed.toml"); err == nil {
			configFiles = append(configFiles, "bulkfeed.toml")
		} else if _, err := os.Stat("deployments/local/bulkfeed.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/bulkfeed.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, *serverPort, *serverHost)

	logger := common.SetupLogger(config)
	defer common.Stop()

	common.InstallCrashHandler(filepath.Join(filepath.Dir(mustExecPath()), "logs"))
	defer common.RecoverWithCrashFile()

	common.PrintBanner(config, logger)

	if err := os.MkdirAll(config.Storage.ArtifactDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("dir", config.Storage.ArtifactDir).Msg("failed to create artifact directory")
	}

	registry, err := site.NewRegistry(config.Sites, config.Refresh.CachePeriod)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build site registry")
	}

	for _, s := range config.Sites {
		if _, isTestURL, warnings, err := common.ValidateBaseURL(s.Endpoint, logger); err != nil {
			logger.Fatal().Err(err).Str("site", s.Name).Str("endpoint", s.Endpoint).Msg("invalid site endpoint")
		} else if isTestURL {
			logger.Warn().Str("site", s.Name).Strs("warnings", warnings).Msg("site endpoint looks like a local/test URL")
		}
	}

	diskCache, err := cache.New(config.Storage.CacheDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize disk cache")
	}

	httpClient := httpclient.NewInsecureClient(config.Fetch.RequestTimeout)
	fetcher := fetch.New(httpClient, logger)
	imageModel := image.New(config.Image, logger)

	var previewLimiter *rate.Limiter
	if config.Image.PreviewRateLimit > 0 {
		previewLimiter = rate.NewLimiter(rate.Every(config.Image.PreviewRateLimit), 1)
	}
	previewFunc := fetch.NewPreviewFunc(fetcher, diskCache, config.Image.PreviewServiceURL, config.Image.PreviewTTL, previewLimiter, logger)

	gate := refresh.NewGate()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	requestTTL := func() time.Duration { return config.Refresh.RequestTTL }

	for name, model := range registry {
		jsonFunc := fetch.NewJSONFunc(fetcher, diskCache, requestTTL, logger)
		loop := &refresh.Loop{
			Site:        model,
			FetchJSON:   jsonFunc,
			Image:       imageModel,
			Preview:     previewFunc,
			Gate:        gate,
			DataFile:    filepath.Join(config.Storage.ArtifactDir, name+".json.gz"),
			ImagesFile:  filepath.Join(config.Storage.ArtifactDir, name+"-images.json.gz"),
			CachePeriod: model.CachePeriod(),
			RetryPeriod: config.Refresh.RetryPeriod,
			Logger:      logger,
		}
		common.SafeGoWithContext(ctx, logger, "refresh:"+name, func() { loop.Run(ctx) })
	}

	mux := http.NewServeMux()
	// The redirect Location is a URL path resolved by the artifact handler
	// below, so it must name the cache dir relative to the artifact root.
	cacheURLRoot, err := filepath.Rel(config.Storage.ArtifactDir, config.Storage.CacheDir)
	if err != nil {
		cacheURLRoot = config.Storage.CacheDir
	}
	mux.Handle("/fetch", &serve.FetchRedirectHandler{CacheRoot: filepath.ToSlash(cacheURLRoot)})
	mux.Handle("/", &serve.ArtifactHandler{
		Root:        config.Storage.ArtifactDir,
		CachePeriod: config.Refresh.CachePeriod,
		Logger:      logger,
	})

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	common.SafeGo(logger, "http-server", func() {
		logger.Info().Str("addr", addr).Msg("serving artifacts")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("artifact server failed")
		}
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("interrupt received, shutting down")
	common.PrintShutdownBanner(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("artifact server shutdown failed")
	}

	cancel()
}

func mustExecPath() string {
	p, err := os.Executable()
	if err != nil {
		return "."
	}
	return p
}
