package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"finfeed/adapter/postgres"
	"finfeed/adapter/rss"
	"finfeed/app"
	"finfeed/cli/control"
	"finfeed/domain"
	"finfeed/internal/config"
	"finfeed/internal/taxonomy"
	"finfeed/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "--help", "-h", "help":
		printHelp()
		return
	case "fetch":
		err = cmdFetch(args)
	case "add":
		err = cmdAdd(args)
	case "list":
		err = cmdList(args)
	case "delete":
		err = cmdDelete(args)
	case "articles":
		err = cmdArticles(args)
	case "asset":
		err = cmdAsset(args)
	case "stats":
		err = cmdStats(args)
	case "trigger":
		err = cmdTrigger(args)
	case "status":
		err = cmdStatus(args)
	default:
		fmt.Printf("unknown command: %s\n\n", cmd)
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Print(`Usage:
  finfeed COMMAND [OPTIONS]

Common Commands:
   fetch           start the background daemon: scheduled feed ingestion, statistics refresh and maintenance
   add             add a feed (--name, --url, --category)
   list            list configured feeds
   delete          delete a feed by --name
   articles        show latest articles of a feed (--feed-name, --num)
   asset           show latest articles mentioning an instrument (--code, --num)
   stats           show mention statistics (--timeframe 24h|7d|30d)
   trigger         trigger an ingestion pass on the running daemon
   status          show scheduler status of the running daemon
`)
}

// cmdFetch is the daemon: it seeds feeds from the configured feed list,
// wires the pipeline and scheduler, and serves the control endpoint until
// interrupted.
func cmdFetch(args []string) error {
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	listener, err := control.TryListen(cfg.ControlAddr)
	if err != nil {
		if errors.Is(err, control.ErrAlreadyRunning) {
			fmt.Println("Background process is already running")
		}
		return err
	}
	defer listener.Close()

	// A broken feed list is the one startup failure allowed to propagate.
	specs, err := config.LoadFeeds(cfg.FeedsFile)
	if err != nil {
		return fmt.Errorf("load feed list: %w", err)
	}

	tax := taxonomy.Default()
	if cfg.TaxonomyFile != "" {
		if tax, err = taxonomy.LoadFile(cfg.TaxonomyFile); err != nil {
			return fmt.Errorf("load taxonomy: %w", err)
		}
	}

	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	repo := postgres.New(database)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := repo.Ensure(ctx); err != nil {
		return fmt.Errorf("db ensure failed: %w", err)
	}
	if err := seedFeeds(ctx, repo, specs, log); err != nil {
		return err
	}

	fetcher := rss.NewFetcher(cfg.FetchTimeout, log)
	pipeline := app.NewIngestionPipeline(repo, fetcher, tax, log)
	stats := app.NewStatisticsAggregator(repo, log)

	schedCfg := app.DefaultSchedulerConfig()
	schedCfg.IngestSpec = cfg.IngestSpec
	schedCfg.StatsSpec = cfg.StatsSpec
	schedCfg.MaintenanceSpec = cfg.MaintenanceSpec
	scheduler, err := app.NewScheduler(pipeline, stats, repo, schedCfg, log)
	if err != nil {
		return err
	}

	go func() {
		_ = http.Serve(listener, control.NewServer(scheduler))
	}()

	scheduler.Start()
	log.Info().
		Int("feeds", len(specs)).
		Str("ingest_schedule", cfg.IngestSpec).
		Str("control_addr", cfg.ControlAddr).
		Msg("Feed ingestion daemon started")

	<-ctx.Done()
	scheduler.Stop()
	log.Info().Msg("Graceful shutdown complete")
	return nil
}

// seedFeeds upserts the configured feed list so new entries become active
// without touching feeds added administratively.
func seedFeeds(ctx context.Context, repo *postgres.Repository, specs []domain.FeedSpec, log zerolog.Logger) error {
	for _, spec := range specs {
		if _, err := repo.UpsertFeed(ctx, domain.Feed{
			Name:     spec.Name,
			URL:      spec.URL,
			Category: spec.Category,
			Active:   true,
		}); err != nil {
			return fmt.Errorf("seed feed %s: %w", spec.Name, err)
		}
		log.Debug().Str("feed", spec.Name).Str("category", spec.Category).Msg("Feed configured")
	}
	return nil
}

func cmdAdd(args []string) error {
	fset := flag.NewFlagSet("add", flag.ContinueOnError)
	var name, url, category string
	fset.StringVar(&name, "name", "", "feed name")
	fset.StringVar(&url, "url", "", "feed URL")
	fset.StringVar(&category, "category", "general", "feed category (forex, crypto, commodities, stocks, general)")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" || strings.TrimSpace(url) == "" {
		return fmt.Errorf("both --name and --url are required")
	}
	repo, closeDB, err := openRepo()
	if err != nil {
		return err
	}
	defer closeDB()
	return repo.AddFeed(context.Background(), name, url, category)
}

func cmdList(args []string) error {
	fset := flag.NewFlagSet("list", flag.ContinueOnError)
	var num int
	fset.IntVar(&num, "num", 0, "limit number of feeds (0 = all)")
	if err := fset.Parse(args); err != nil {
		return err
	}
	repo, closeDB, err := openRepo()
	if err != nil {
		return err
	}
	defer closeDB()
	feeds, err := repo.ListFeeds(context.Background(), num)
	if err != nil {
		return err
	}
	fmt.Println("# Configured Feeds")
	fmt.Println()
	for i, f := range feeds {
		status := "ok"
		if f.FetchError != nil {
			status = "error: " + *f.FetchError
		}
		lastFetched := "never"
		if f.LastFetched != nil {
			lastFetched = f.LastFetched.Format("2006-01-02 15:04")
		}
		fmt.Printf("%d. Name: %s\n   URL: %s\n   Category: %s\n   Last fetched: %s (%s)\n\n",
			i+1, f.Name, f.URL, f.Category, lastFetched, status)
	}
	return nil
}

func cmdDelete(args []string) error {
	fset := flag.NewFlagSet("delete", flag.ContinueOnError)
	var name string
	fset.StringVar(&name, "name", "", "feed name")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("--name is required")
	}
	repo, closeDB, err := openRepo()
	if err != nil {
		return err
	}
	defer closeDB()
	n, err := repo.DeleteFeed(context.Background(), name)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no feed named %q", name)
	}
	return nil
}

func cmdArticles(args []string) error {
	fset := flag.NewFlagSet("articles", flag.ContinueOnError)
	var feedName string
	var num int
	fset.StringVar(&feedName, "feed-name", "", "feed name")
	fset.IntVar(&num, "num", 3, "number of articles")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(feedName) == "" {
		return fmt.Errorf("--feed-name is required")
	}
	repo, closeDB, err := openRepo()
	if err != nil {
		return err
	}
	defer closeDB()
	feed, err := repo.GetFeedByName(context.Background(), feedName)
	if err != nil {
		return err
	}
	arts, err := repo.ListArticlesByFeed(context.Background(), feed.ID, num)
	if err != nil {
		return err
	}
	fmt.Printf("Feed: %s\n\n", feed.Name)
	for i, a := range arts {
		fmt.Printf("%d. [%s] %s\n   %s\n   markets: %s  instruments: %s\n\n",
			i+1, a.PublishedAt.Format("2006-01-02"), a.Title, a.Link,
			strings.Join(a.Markets, ","), strings.Join(a.Instruments, ","))
	}
	return nil
}

func cmdAsset(args []string) error {
	fset := flag.NewFlagSet("asset", flag.ContinueOnError)
	var code string
	var num int
	fset.StringVar(&code, "code", "", "instrument code (e.g. EURUSD)")
	fset.IntVar(&num, "num", 10, "number of articles")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("--code is required")
	}
	repo, closeDB, err := openRepo()
	if err != nil {
		return err
	}
	defer closeDB()
	arts, err := repo.FindArticlesByInstrument(context.Background(), code, domain.ArticleQuery{Limit: num})
	if err != nil {
		return err
	}
	fmt.Printf("Articles mentioning %s\n\n", code)
	for i, a := range arts {
		fmt.Printf("%d. [%s] %s\n   %s\n\n", i+1, a.PublishedAt.Format("2006-01-02"), a.Title, a.Link)
	}
	return nil
}

func cmdStats(args []string) error {
	fset := flag.NewFlagSet("stats", flag.ContinueOnError)
	var timeframe string
	fset.StringVar(&timeframe, "timeframe", "24h", "window: 24h, 7d or 30d")
	if err := fset.Parse(args); err != nil {
		return err
	}
	repo, closeDB, err := openRepo()
	if err != nil {
		return err
	}
	defer closeDB()
	agg := app.NewStatisticsAggregator(repo, zerolog.Nop())
	stats, err := agg.GetStatistics(context.Background(), timeframe)
	if err != nil {
		return err
	}
	fmt.Printf("Statistics (%s): %d articles\n\n", stats.Timeframe, stats.TotalArticles)
	fmt.Println("Top assets:")
	for i, a := range stats.TopAssets {
		fmt.Printf("%2d. %-8s %4d mentions (+%d/-%d/=%d)\n",
			i+1, a.Instrument, a.Mentions, a.Sentiment.Positive, a.Sentiment.Negative, a.Sentiment.Neutral)
	}
	fmt.Println("\nCategories:")
	for _, c := range stats.TopCategories {
		fmt.Printf("    %-12s %4d mentions\n", c.Category, c.Mentions)
	}
	return nil
}

func cmdTrigger(args []string) error {
	c := control.NewClient(config.Load().ControlAddr)
	res, err := c.Trigger()
	if err != nil {
		return err
	}
	fmt.Printf("Processing complete: %d articles stored, %d feed errors\n", res.Processed, res.Errors)
	return nil
}

func cmdStatus(args []string) error {
	c := control.NewClient(config.Load().ControlAddr)
	st, err := c.Status()
	if err != nil {
		return err
	}
	fmt.Printf("Scheduler running: %v  (ingestion in flight: %v, active jobs: %d)\n\n", st.IsRunning, st.IngestRunning, st.ActiveJobs)
	for _, j := range st.Jobs {
		fmt.Printf("  %-20s %-8s last: %s  next: %s\n",
			j.Name, j.State, formatRun(j.LastRun), formatRun(j.NextRun))
		if j.LastError != "" {
			fmt.Printf("    last error: %s\n", j.LastError)
		}
	}
	return nil
}

func formatRun(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func openRepo() (*postgres.Repository, func(), error) {
	database, err := openDB(config.Load())
	if err != nil {
		return nil, nil, err
	}
	repo := postgres.New(database)
	if err := repo.Ensure(context.Background()); err != nil {
		database.Close()
		return nil, nil, err
	}
	return repo, func() { database.Close() }, nil
}

func openDB(cfg config.Config) (*sql.DB, error) {
	pgURL := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.PGUser, cfg.PGPassword, cfg.PGHost, cfg.PGPort, cfg.PGDatabase,
	)
	dbConn, err := sql.Open("postgres", pgURL)
	if err != nil {
		return nil, err
	}
	dbConn.SetMaxOpenConns(10)
	dbConn.SetMaxIdleConns(10)
	dbConn.SetConnMaxLifetime(30 * time.Minute)
	if err := dbConn.Ping(); err != nil {
		return nil, err
	}
	return dbConn, nil
}
