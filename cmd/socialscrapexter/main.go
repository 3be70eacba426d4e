// cmd/socialscrapexter/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/valpere/SocialScrapexter/internal/config"
	"github.com/valpere/SocialScrapexter/internal/export"
	"github.com/valpere/SocialScrapexter/internal/monitoring"
	"github.com/valpere/SocialScrapexter/internal/scraper"
	"github.com/valpere/SocialScrapexter/internal/storage"
	"github.com/valpere/SocialScrapexter/internal/utils"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

// Version information (set by build flags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// main handles CLI arguments and routes to the appropriate command.
func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch command := os.Args[1]; command {
	case "scrape":
		err = runScrape(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "validate":
		err = runValidate(os.Args[2:])
	case "template":
		err = runTemplate()
	case "version", "--version":
		printVersion()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runScrape executes one collection job: scrape <platform> <user|hashtag|keyword> <target>.
func runScrape(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: socialscrapexter scrape <platform> <user|hashtag|keyword> <target> [--limit N] [--config FILE]")
	}

	platform := types.Platform(args[0])
	if !platform.IsValid() {
		return fmt.Errorf("unknown platform %q", args[0])
	}
	targetType := types.TargetType(args[1])
	if !targetType.IsValid() {
		return fmt.Errorf("unknown target type %q (want user, hashtag or keyword)", args[1])
	}
	target := args[2]

	limit := 0
	if v := flagValue(args, "--limit"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &limit); err != nil {
			return fmt.Errorf("invalid --limit %q", v)
		}
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if proxyURL := flagValue(args, "--proxy"); proxyURL != "" {
		cfg.Proxies.Enabled = true
		cfg.Proxies.Endpoints = append(cfg.Proxies.Endpoints, config.ProxySeed{URL: proxyURL})
	}
	utils.SetLogger(utils.NewLoggerWithLevel(cfg.Logging.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gateway, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer gateway.Close()

	metrics := monitoring.NewMetrics()

	var obsServer *monitoring.Server
	if cfg.Metrics.Enabled {
		obsServer = monitoring.NewServer(cfg.Metrics.ListenAddress, metrics)
		obsServer.AddCheck("storage", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, err := gateway.CountPostsByPlatform(checkCtx)
			return err
		})
		go func() {
			if err := obsServer.Start(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
	}

	var scheduler *storage.Scheduler
	if cfg.Storage.Analytics.Enabled {
		scheduler, err = storage.NewScheduler(gateway, cfg.Storage.Analytics)
		if err != nil {
			return fmt.Errorf("starting analytics scheduler: %w", err)
		}
		scheduler.Start()
	}

	engine := scraper.New(cfg, gateway, metrics)
	engine.Start()

	session, runErr := engine.Run(ctx, scraper.Job{
		Platform:   platform,
		TargetType: targetType,
		Target:     target,
		Limit:      limit,
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	engine.Stop(shutdownCtx)
	if scheduler != nil {
		scheduler.Stop()
	}
	if obsServer != nil {
		_ = obsServer.Shutdown(shutdownCtx)
	}

	if runErr != nil {
		return runErr
	}
	printSession(session)
	return nil
}

// runStats prints stored totals and recent sessions: stats [--platform P] [--config FILE].
func runStats(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	gateway, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer gateway.Close()

	counts, err := gateway.CountPostsByPlatform(ctx)
	if err != nil {
		return fmt.Errorf("counting posts: %w", err)
	}

	filter := types.Platform(flagValue(args, "--platform"))

	fmt.Println("Posts by platform:")
	var total int64
	for _, p := range types.ValidPlatforms() {
		if filter != "" && p != filter {
			continue
		}
		if n, ok := counts[p]; ok {
			fmt.Printf("  %-12s %d\n", p, n)
			total += n
		}
	}
	fmt.Printf("  %-12s %d\n", "total", total)

	if authors, err := gateway.TopAuthors(ctx, filter, 5); err == nil && len(authors) > 0 {
		fmt.Println("\nTop authors:")
		for _, a := range authors {
			fmt.Printf("  %-12s %-20s %d posts\n", a.Platform, a.Author, a.Posts)
		}
	}

	sessions, err := gateway.GetSessions(ctx, filter, 10)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) > 0 {
		fmt.Println("\nRecent sessions:")
		for _, s := range sessions {
			fmt.Printf("  %s  %-10s %-8s %-20s %d/%d posts  %s\n",
				s.StartTime.Format("2006-01-02 15:04"),
				s.Platform, s.TargetType, s.Target,
				s.SuccessfulPosts, s.TotalPosts, s.Status)
		}
	}
	return nil
}

// runExport writes stored posts to a file: export [--format F] [--output FILE]
// [--platform P] [--limit N] [--config FILE].
func runExport(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	format := types.OutputFormat(cfg.Output.Format)
	if v := flagValue(args, "--format"); v != "" {
		format = types.OutputFormat(v)
	}
	if !format.IsValid() {
		return fmt.Errorf("unknown format %q (want json, csv or excel)", format)
	}

	query := storage.PostQuery{
		Platform: types.Platform(flagValue(args, "--platform")),
	}
	if v := flagValue(args, "--limit"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &query.Limit); err != nil {
			return fmt.Errorf("invalid --limit %q", v)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	gateway, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer gateway.Close()

	posts, err := gateway.GetPosts(ctx, query)
	if err != nil {
		return fmt.Errorf("reading posts: %w", err)
	}
	if len(posts) == 0 {
		return fmt.Errorf("no posts match the given filters")
	}

	path := flagValue(args, "--output")
	if path == "" {
		path = export.DefaultPath(cfg.Output.Directory, format)
	}
	if err := export.Export(posts, format, path); err != nil {
		return err
	}
	fmt.Printf("Exported %d posts to %s\n", len(posts), path)
	return nil
}

// runValidate loads and validates a configuration file.
func runValidate(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: socialscrapexter validate <config.yaml>")
	}
	cfg, err := config.LoadFromFile(args[0])
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	fmt.Printf("✓ Configuration file '%s' is valid\n", args[0])
	return nil
}

// runTemplate prints the default configuration as a starting point.
func runTemplate() error {
	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("marshaling template: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

func loadConfig(args []string) (*config.Config, error) {
	if path := flagValue(args, "--config"); path != "" {
		cfg, err := config.LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading configuration: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
	return config.Default(), nil
}

// flagValue returns the value following a flag, or "" when absent.
func flagValue(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func printSession(s types.Session) {
	fmt.Printf("Session %s finished: %s\n", s.SessionID, s.Status)
	fmt.Printf("  Platform: %s  Target: %s %s\n", s.Platform, s.TargetType, s.Target)
	fmt.Printf("  Posts: %d total, %d successful, %d failed\n",
		s.TotalPosts, s.SuccessfulPosts, s.FailedPosts)
	fmt.Printf("  Duration: %s\n", s.Duration.Round(time.Millisecond))
	if s.LastError != "" {
		fmt.Printf("  Last error: %s\n", s.LastError)
	}
}

// printUsage displays help information.
func printUsage() {
	fmt.Println("SocialScrapexter - Multi-Platform Social Media Collection Engine")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  socialscrapexter scrape <platform> <user|hashtag|keyword> <target>")
	fmt.Println("                                          Run a collection job")
	fmt.Println("  socialscrapexter stats                  Show stored totals and recent sessions")
	fmt.Println("  socialscrapexter export                 Export stored posts to a file")
	fmt.Println("  socialscrapexter validate <config.yaml> Validate a configuration file")
	fmt.Println("  socialscrapexter template               Print the default configuration")
	fmt.Println("  socialscrapexter version                Show version information")
	fmt.Println("  socialscrapexter help                   Show this help message")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config FILE     Configuration file (defaults are used when omitted)")
	fmt.Println("  --limit N         Maximum posts to collect or export")
	fmt.Println("  --proxy URL       Add a proxy endpoint for this run")
	fmt.Println("  --platform P      Filter stats/export by platform")
	fmt.Println("  --format F        Export format: json, csv or excel")
	fmt.Println("  --output FILE     Export file path")
}

// printVersion displays version information.
func printVersion() {
	fmt.Printf("SocialScrapexter %s\n", version)
	fmt.Printf("Build time: %s\n", buildTime)
	fmt.Printf("Git commit: %s\n", gitCommit)
}
