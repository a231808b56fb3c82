package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ajramos/gmail-inbox/internal/cache"
	"github.com/ajramos/gmail-inbox/internal/config"
	"github.com/ajramos/gmail-inbox/internal/db"
	"github.com/ajramos/gmail-inbox/internal/debug"
	"github.com/ajramos/gmail-inbox/internal/gmail"
	"github.com/ajramos/gmail-inbox/internal/logging"
	"github.com/ajramos/gmail-inbox/internal/services"
	"github.com/ajramos/gmail-inbox/internal/tui"
	"github.com/ajramos/gmail-inbox/internal/version"
	"github.com/ajramos/gmail-inbox/pkg/auth"
	"go.uber.org/zap"
	gmailapi "google.golang.org/api/gmail/v1"
)

// Environment overrides
const (
	envConfig      = "GMAIL_INBOX_CONFIG"
	envCredentials = "GMAIL_INBOX_CREDENTIALS"
)

// defaultAlias names the single account used when none is configured
const defaultAlias = "default"

var scopes = []string{
	gmailapi.GmailModifyScope,
	gmailapi.GmailSendScope,
}

type flags struct {
	config      string
	credentials string
	account     string
	debugAddr   string
	version     bool
	clearCache  bool
	purgeTemp   bool
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("gmail-inbox", flag.ContinueOnError)
	fs.StringVar(&f.config, "config", "", "Path to configuration file, JSON or YAML (default: ~/.config/gmail-inbox/config.json)")
	fs.StringVar(&f.credentials, "credentials", "", "Path to OAuth client credentials JSON (default: ~/.config/gmail-inbox/credentials.json)")
	fs.StringVar(&f.account, "account", "", "Alias of the account to show first")
	fs.StringVar(&f.debugAddr, "debug-addr", "", "Serve the debug endpoints on this address, e.g. 127.0.0.1:6060")
	fs.BoolVar(&f.version, "version", false, "Show version information and exit")
	fs.BoolVar(&f.clearCache, "clear-cache", false, "Remove the offline page snapshots and exit")
	fs.BoolVar(&f.purgeTemp, "purge-temp", false, "Remove every message preview file and exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "%s\n\nUsage:\n  gmail-inbox [options]\n\nOptions:\n", version.GetVersionString())
		fs.PrintDefaults()
		fmt.Fprintf(fs.Output(), "\nEnvironment Variables:\n")
		fmt.Fprintf(fs.Output(), "  %s       Override default config file path\n", envConfig)
		fmt.Fprintf(fs.Output(), "  %s  Override default credentials file path\n", envCredentials)
	}
	err := fs.Parse(args)
	return f, err
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}
	if f.version {
		fmt.Println(version.GetDetailedVersionString())
		return
	}
	if err := run(context.Background(), f); err != nil {
		fmt.Fprintf(os.Stderr, "gmail-inbox: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags) error {
	cfg, err := config.LoadConfig(getConfigPath(f.config))
	if err != nil {
		return err
	}
	if f.debugAddr != "" {
		cfg.DebugAddr = f.debugAddr
	}

	logPath := cfg.LogFile
	if logPath == "" {
		logPath = config.DefaultLogPath()
	}
	logger, err := logging.New(config.ExpandPath(logPath), cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting", zap.String("version", version.GetVersionString()))

	dbPath := cfg.Database
	if dbPath == "" {
		dbPath = config.DefaultDatabasePath()
	}
	store, err := db.Open(ctx, config.ExpandPath(dbPath))
	if err != nil {
		return err
	}
	defer store.Close()

	snapshots, closeSnapshots, err := openSnapshotStore(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	defer closeSnapshots()
	pageCache := services.NewPageCache(snapshots, logger)

	prefetchRoot := cfg.Prefetch.Root
	if prefetchRoot == "" {
		prefetchRoot = config.DefaultPrefetchRoot()
	}
	previews := services.NewBodyPrefetcher(config.ExpandPath(prefetchRoot), cfg.GetPrefetchDelay(), logger)

	if f.clearCache || f.purgeTemp {
		return maintenance(ctx, f, pageCache, previews)
	}

	accounts := services.NewAccountService(db.NewAccountStore(store), logger)
	preferred := f.account
	if preferred == "" {
		preferred = cfg.ActiveAccount
	}
	if err := accounts.Seed(ctx, accountEntries(cfg), preferred); err != nil {
		return err
	}
	registered, err := accounts.List(ctx)
	if err != nil {
		return err
	}
	for _, acc := range registered {
		if err := previews.Cleanup(acc.Alias); err != nil {
			logger.Warn("preview cleanup failed", zap.String("account", acc.Alias), zap.Error(err))
		}
	}

	credPath := getCredentialsPath(f.credentials, cfg.Credentials)
	if _, err := os.Stat(credPath); err != nil {
		return fmt.Errorf("credentials file not found at %s: download OAuth client credentials from Google Cloud Console and place them there", credPath)
	}

	prefs := services.NewPreferenceService(db.NewPreferenceStore(store)).WithPageCache(pageCache)
	app, err := tui.NewApp(ctx, tui.Options{
		Config:   cfg,
		Accounts: accounts,
		Connect:  newConnector(credPath, cfg.GetRequestTimeout(), accounts, previews, logger),
		Toggle:   prefs,
		Pager: services.PagerOptions{
			Filter: services.ListFilter{
				Query:            cfg.Fetch.Query,
				LabelIDs:         cfg.Fetch.LabelIDs,
				IncludeSpamTrash: cfg.Fetch.IncludeSpamTrash,
			},
			Preferences:       prefs,
			Cache:             pageCache,
			Prefetcher:        previews,
			MaxPerRequest:     cfg.Fetch.MaxPerRequest,
			MetadataBatchSize: cfg.Fetch.MetadataBatchSize,
			Location:          time.Local,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	if cfg.DebugAddr != "" {
		srv, err := debug.Listen(cfg.DebugAddr, debug.Config{Cache: pageCache, Pager: app.Pager(), Logger: logger})
		if err != nil {
			return fmt.Errorf("debug server: %w", err)
		}
		go func() {
			if err := srv.Serve(); err != nil {
				logger.Error("debug server stopped", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	defer app.Pager().Close()
	return app.Run()
}

// openSnapshotStore returns the configured snapshot backend and its closer
func openSnapshotStore(ctx context.Context, cfg *config.Config, store *db.Store, logger *zap.Logger) (services.SnapshotStore, func(), error) {
	if cfg.Cache.Backend != config.CacheBackendRedis {
		return db.NewSnapshotStore(store), func() {}, nil
	}
	rdb, err := cache.Dial(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("offline cache in redis", zap.String("addr", cfg.Cache.RedisAddr))
	return cache.NewRedisStore(rdb, cfg.GetCacheTTL(), logger), func() { _ = rdb.Close() }, nil
}

func maintenance(ctx context.Context, f flags, pageCache services.PageCache, previews *services.BodyPrefetcher) error {
	if f.clearCache {
		if err := pageCache.Clear(ctx); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		fmt.Println("Offline cache cleared")
	}
	if f.purgeTemp {
		if err := previews.Purge(); err != nil {
			return fmt.Errorf("purge previews: %w", err)
		}
		fmt.Println("Message previews removed")
	}
	return nil
}

// accountEntries returns the configured accounts, or a single default
// account using the default token path
func accountEntries(cfg *config.Config) []config.AccountEntry {
	if len(cfg.Accounts) > 0 {
		return cfg.Accounts
	}
	_, tokenPath := config.DefaultCredentialPaths()
	return []config.AccountEntry{{Alias: defaultAlias, Token: tokenPath}}
}

func newConnector(credPath string, timeout time.Duration, accounts *services.AccountServiceImpl, previews *services.BodyPrefetcher, logger *zap.Logger) tui.Connector {
	return func(ctx context.Context, acc services.Account) (*tui.Session, error) {
		oc := auth.NewOAuth2Config(credPath, acc.TokenPath, scopes...)
		oc.Interactive = true
		provider := auth.NewFileTokenProvider(oc)
		svc, err := auth.NewGmailService(ctx, provider, timeout)
		if err != nil {
			return nil, err
		}
		log := logger.With(zap.String("account", acc.Alias))
		client := gmail.NewClient(svc, log)

		if acc.Email == "" {
			email, err := client.ActiveAccountEmail(ctx)
			if err != nil {
				log.Warn("profile lookup failed", zap.Error(err))
			} else if err := accounts.UpdateEmail(ctx, acc.Alias, email); err != nil {
				log.Warn("saving account email failed", zap.Error(err))
			} else {
				acc.Email = email
			}
		}
		return &tui.Session{
			Account: acc,
			Client:  client,
			Creds:   provider,
			Email:   services.NewEmailService(client, previews, log),
		}, nil
	}
}

// getConfigPath returns the configuration file path using the following priority:
// 1. CLI flag
// 2. Environment variable GMAIL_INBOX_CONFIG
// 3. Default path ~/.config/gmail-inbox/config.json
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv(envConfig); envPath != "" {
		return config.ExpandPath(envPath)
	}
	return config.DefaultConfigPath()
}

// getCredentialsPath returns the credentials file path using the following priority:
// 1. CLI flag
// 2. Environment variable GMAIL_INBOX_CREDENTIALS
// 3. Config file setting
// 4. Default path ~/.config/gmail-inbox/credentials.json
func getCredentialsPath(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv(envCredentials); envPath != "" {
		return config.ExpandPath(envPath)
	}
	if configValue != "" {
		return config.ExpandPath(configValue)
	}
	credPath, _ := config.DefaultCredentialPaths()
	return credPath
}
