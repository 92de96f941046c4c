package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/mschirtzinger/khata/internal/auth"
	"github.com/mschirtzinger/khata/internal/cache"
	"github.com/mschirtzinger/khata/internal/cache/redis"
	"github.com/mschirtzinger/khata/internal/cache/sqlite"
	"github.com/mschirtzinger/khata/internal/config"
	"github.com/mschirtzinger/khata/internal/dateparse"
	"github.com/mschirtzinger/khata/internal/ledger"
	"github.com/mschirtzinger/khata/internal/logging"
	"github.com/mschirtzinger/khata/internal/netstate"
	"github.com/mschirtzinger/khata/internal/remote"
	"github.com/mschirtzinger/khata/internal/remote/drive"
	"github.com/mschirtzinger/khata/internal/remote/memory"
	"github.com/mschirtzinger/khata/internal/resolver"
	"github.com/mschirtzinger/khata/internal/schema"
	ksync "github.com/mschirtzinger/khata/internal/sync"
	"github.com/mschirtzinger/khata/internal/ui"
)

// app is the wired object graph shared by every command.
type app struct {
	cfg      *config.Config
	logOut   io.Writer
	closeLog func() error

	cache     cache.Store
	cachePath string

	// provider is nil for the memory backend.
	provider *auth.Provider
	store    remote.BlobStore
	resolver *resolver.Resolver

	// monitor is nil for the memory backend.
	monitor *netstate.Monitor

	engine *ksync.Engine
	dates  *dateparse.Parser
}

// localCredentials stands in for sign-in with the memory backend.
type localCredentials struct{}

func (localCredentials) Credential(context.Context) (auth.Credential, error) {
	return auth.Credential{AccessToken: "local", Account: "local"}, nil
}

func openApp(ctx context.Context) (*app, error) {
	logOut, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	a := &app{cfg: cfg, logOut: logOut, closeLog: closeLog, dates: dateparse.New()}

	if err := a.openCache(ctx); err != nil {
		a.Close()
		return nil, err
	}

	var (
		creds ksync.Credentials
		conn  ksync.Connectivity
	)
	switch cfg.Remote.Backend {
	case config.RemoteMemory:
		a.store = memory.New()
		creds = localCredentials{}
		conn = netstate.Static(true)
	default:
		oauthCfg := auth.GoogleConfig(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, cfg.OAuth.RedirectURL, cfg.OAuth.Scopes)
		a.provider, err = auth.NewProvider(auth.Config{
			OAuth:     oauthCfg,
			Cache:     a.cache,
			Validator: &auth.UserInfoValidator{},
			Timeout:   cfg.Sync.AuthTimeout,
			Logger:    a.logger("auth"),
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		var opts []drive.Option
		if cfg.Remote.Endpoint != "" {
			opts = append(opts, drive.WithEndpoint(cfg.Remote.Endpoint))
		}
		opts = append(opts, drive.WithLogger(a.logger("drive")))
		a.store = drive.New(opts...)
		creds = a.provider

		a.monitor = netstate.NewMonitor(&netstate.DialProber{Addr: cfg.Sync.ProbeAddr, Timeout: netstate.DefaultTimeout})
		a.monitor.Check(ctx)
		conn = a.monitor
	}

	a.resolver = resolver.New(a.store, resolver.Config{
		FolderName:   cfg.Remote.FolderName,
		DocumentName: cfg.Remote.DocumentName,
		Logger:       a.logger("resolver"),
	})

	ids, err := schema.NewSnowflakeGenerator(cfg.Ledger.Node)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.engine, err = ksync.New(ksync.Config{
		LoadTimeout:    cfg.Sync.LoadTimeout,
		AuthTimeout:    cfg.Sync.AuthTimeout,
		SaveTimeout:    cfg.Sync.SaveTimeout,
		SummaryPrefix:  cfg.Sync.SummaryPrefix,
		DisableSummary: cfg.Sync.DisableSummary,
		RetentionDays:  cfg.Ledger.RetentionDays,
	}, ksync.Deps{
		Cache:        a.cache,
		Credentials:  creds,
		Store:        a.store,
		Resolver:     a.resolver,
		Connectivity: conn,
		IDs:          ids,
		Logger:       a.logger("sync"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openCache(ctx context.Context) error {
	switch a.cfg.Cache.Backend {
	case config.CacheRedis:
		r := a.cfg.Cache.Redis
		store, err := redis.Dial(ctx, redis.Options{Addr: r.Addr, Password: r.Password, DB: r.DB, Prefix: r.Prefix})
		if err != nil {
			return err
		}
		a.cache = store
	case config.CacheMemory:
		a.cache = cache.NewMemory()
	default:
		store, err := sqlite.Open(a.cfg.Cache.Path)
		if err != nil {
			return err
		}
		a.cache = store
		a.cachePath = store.Path()
	}
	return nil
}

func (a *app) logger(component string) *log.Logger {
	return logging.For(a.logOut, component)
}

// Close waits for in-flight saves and releases resources.
func (a *app) Close() {
	if a.engine != nil {
		a.engine.Wait()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}

// mustOpen opens the app and loads the ledger, or exits.
func mustOpen(ctx context.Context) (*app, ksync.LoadResult) {
	a, err := openApp(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	return a, a.load(ctx)
}

// load runs Load and settles a missing store name from config or a prompt.
func (a *app) load(ctx context.Context) ksync.LoadResult {
	lr := a.engine.Load(ctx)
	if lr.Outcome.IsFailure() && lr.RemoteErr != nil {
		fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), loadWarning(lr))
	}
	if !lr.NeedsStoreName {
		return lr
	}

	name := a.cfg.Store.Name
	if name == "" {
		prompted, err := ui.PromptStoreName()
		if err != nil {
			fmt.Printf("%s Store name not set; run 'khata store-name <name>'\n", ui.RenderWarn("⚠"))
			return lr
		}
		name = prompted
	}
	if err := a.engine.SetStoreName(ctx, name); err != nil {
		fmt.Printf("%s %v\n", ui.RenderWarn("⚠"), err)
		return lr
	}
	lr.NeedsStoreName = false
	return lr
}

func loadWarning(lr ksync.LoadResult) string {
	switch lr.Outcome {
	case ksync.AuthRequired:
		return "Using ledger on this device; run 'khata login' to sync"
	default:
		return fmt.Sprintf("Using ledger on this device; Google Drive unavailable (%v)", lr.RemoteErr)
	}
}

// mutate applies fn and saves, printing the outcome.
func (a *app) mutate(ctx context.Context, fn func(*ledger.Ledger) error) {
	if err := a.engine.Mutate(fn); err != nil {
		a.Close()
		fatalf("%v", err)
	}
	res := a.engine.Save(ctx, ksync.Auto)
	fmt.Println(ui.Outcome(res))
}

func (a *app) view(fn func(*ledger.Ledger) error) {
	if err := a.engine.View(fn); err != nil {
		a.Close()
		fatalf("%v", err)
	}
}
