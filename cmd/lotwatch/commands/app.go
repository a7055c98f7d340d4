package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"lotwatch/dev/env"
	"lotwatch/internal/auth"
	"lotwatch/internal/components/chrono"
	"lotwatch/internal/components/telemetry"
	"lotwatch/internal/discovery"
	"lotwatch/internal/macbid"
	"lotwatch/internal/monitor"
	"lotwatch/internal/notify"
	"lotwatch/internal/scoring"
	"lotwatch/internal/store"
	"lotwatch/lib/restyutil"
	"net/http"
	"net/http/cookiejar"
	"path"
	"time"
)

// App holds everything commands share. Clients are built lazily so
// commands only pay for what they use.
type App struct {
	cfg     Config
	verbose bool
	tel     telemetry.API
	clock   chrono.API
	otel    telemetry.Otel
	jar     http.CookieJar
	profile interface{ Stop() }

	store     *store.Store
	cache     *macbid.ResponseCache
	client    *macbid.Client
	token     *auth.Token
	typesense *macbid.Typesense
	nextData  *macbid.NextData
}

func NewApp(ctx context.Context, cfg Config, verbose bool) (*App, error) {
	clock, err := chrono.NewStandardImpl()
	if err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	otel, err := telemetry.SetupOtel(ctx, "lotwatch", cfg.Telemetry.Otlp)
	if err != nil {
		return nil, fmt.Errorf("setup otel: %w", err)
	}
	if otel.MeterProvider != nil {
		telemetry.InstrumentPerfStats(ctx)
	}

	return &App{
		cfg:     cfg,
		verbose: verbose,
		tel:     telemetry.SlogAPI{},
		clock:   clock,
		otel:    otel,
		jar:     jar,
	}, nil
}

func (a *App) Close(ctx context.Context) {
	if a.profile != nil {
		a.profile.Stop()
		a.profile = nil
	}
	if a.cache != nil {
		err := a.cache.Close()
		if err != nil {
			slog.Warn("close response cache", "err", err)
		}
		a.cache = nil
	}
	if a.store != nil {
		err := a.store.Close()
		if err != nil {
			slog.Warn("close database", "err", err)
		}
		a.store = nil
	}
	err := a.otel.Shutdown(ctx)
	if err != nil {
		slog.Warn("shutdown otel", "err", err)
	}
}

func (a *App) Store(ctx context.Context) (store.Store, error) {
	if a.store != nil {
		return *a.store, nil
	}
	st, err := store.Open(ctx, a.cfg.Database)
	if err != nil {
		return store.Store{}, fmt.Errorf("open database: %w", err)
	}
	a.store = &st
	return st, nil
}

func (a *App) session(name, baseUrl string) macbid.SessionOptions {
	opts := macbid.SessionOptions{
		BaseURL:           baseUrl,
		Timeout:           duration(a.cfg.MacBid.Timeout, 0),
		RequestsPerSecond: a.cfg.MacBid.RequestsPerSecond,
		Burst:             a.cfg.MacBid.Burst,
		Retries:           a.cfg.MacBid.Retries,
		Jar:               a.jar,
	}
	if a.verbose {
		output, err := restyutil.NewFilesystemOutput(path.Join("<dev_state>/resty", name))
		if err != nil {
			slog.Warn("http dumps disabled", "client", name, "err", err)
		} else {
			opts.Output = output
		}
	}
	return opts
}

// Token resolves the bearer token once, ErrNoToken is not cached so a
// later login can still be picked up by long running commands.
func (a *App) Token(ctx context.Context) (auth.Token, error) {
	if a.token != nil {
		return *a.token, nil
	}
	st, err := a.Store(ctx)
	if err != nil {
		return auth.Token{}, err
	}
	tokenFile := a.cfg.Auth.TokenFile
	if tokenFile != "" {
		tokenFile, err = devenv.ResolvePath(tokenFile)
		if err != nil {
			return auth.Token{}, err
		}
	}
	source := auth.TokenSource{
		Explicit:   a.cfg.Auth.Token,
		CustomerID: a.cfg.Auth.CustomerID,
		Store:      st,
		FilePath:   tokenFile,
		Now:        a.clock.Now,
		Tel:        telemetry.NewScopedAPI("auth", a.tel),
	}
	token, err := source.Resolve(ctx)
	if err != nil {
		return auth.Token{}, err
	}
	if token.Origin == auth.OriginCredential {
		cred, err := st.Credential(ctx, auth.DefaultCredentialName)
		if err == nil {
			auth.ApplyCookies(a.jar, cred.Cookies)
		}
	}
	a.token = &token
	return token, nil
}

// Client returns the api client, signed in when a token can be resolved.
func (a *App) Client(ctx context.Context) (*macbid.Client, error) {
	if a.client != nil {
		return a.client, nil
	}

	ttl := duration(a.cfg.MacBid.CacheTTL, 0)
	if a.cache == nil && ttl > 0 {
		dir := a.cfg.MacBid.CacheDir
		if dir != "" {
			resolved, err := devenv.ResolvePath(dir)
			if err != nil {
				return nil, err
			}
			dir = resolved
		}
		cache, err := macbid.OpenResponseCache(dir, ttl)
		if err != nil {
			return nil, fmt.Errorf("open response cache: %w", err)
		}
		a.cache = cache
	}

	client, err := macbid.NewClient(macbid.ClientOptions{
		Session: a.session("api", a.cfg.MacBid.ApiBaseUrl),
		Cache:   a.cache,
		Now:     a.clock.Now,
	}, a.tel)
	if err != nil {
		return nil, err
	}

	token, err := a.Token(ctx)
	switch {
	case err == nil:
		client.SetToken(token.Value)
		slog.Debug("using token", "origin", token.Origin, "customer", token.CustomerID)
	case errors.Is(err, auth.ErrNoToken):
	case errors.Is(err, auth.ErrTokenExpired):
		slog.Warn("stored token expired, run `lotwatch login` to sign in again")
	default:
		return nil, err
	}

	a.client = client
	return client, nil
}

// Typesense returns nil when no typesense url is configured.
func (a *App) Typesense() (*macbid.Typesense, error) {
	if a.typesense != nil || a.cfg.Typesense.Url == "" {
		return a.typesense, nil
	}
	typesense, err := macbid.NewTypesense(macbid.TypesenseOptions{
		Session:    a.session("typesense", a.cfg.Typesense.Url),
		APIKey:     a.cfg.Typesense.ApiKey,
		Collection: a.cfg.Typesense.Collection,
	}, a.tel)
	if err != nil {
		return nil, err
	}
	a.typesense = typesense
	return typesense, nil
}

func (a *App) NextData() (*macbid.NextData, error) {
	if a.nextData != nil {
		return a.nextData, nil
	}
	nextData, err := macbid.NewNextData(macbid.NextDataOptions{
		Session: a.session("nextdata", a.cfg.MacBid.SiteBaseUrl),
	}, a.tel)
	if err != nil {
		return nil, err
	}
	a.nextData = nextData
	return nextData, nil
}

func (a *App) Firestore() (*macbid.Firestore, error) {
	if a.cfg.Firestore.Project == "" {
		return nil, fmt.Errorf("firestore.project is not configured")
	}
	return macbid.NewFirestore(macbid.FirestoreOptions{
		Session:    a.session("firestore", ""),
		Project:    a.cfg.Firestore.Project,
		APIKey:     a.cfg.Firestore.ApiKey,
		Collection: a.cfg.Firestore.Collection,
	}, a.tel)
}

func (a *App) Scorer() scoring.Scorer {
	return scoring.NewScorer(a.cfg.Scoring.Weights, a.cfg.Scoring.Brands)
}

func (a *App) Scanner(ctx context.Context, fake bool) (discovery.Scanner, error) {
	st, err := a.Store(ctx)
	if err != nil {
		return discovery.Scanner{}, err
	}
	if fake {
		faked := macbid.NewFaked()
		return discovery.NewScanner(
			discovery.Sources{Search: faked, Typesense: faked, Flash: faked},
			st, a.Scorer(), a.clock, a.tel,
		), nil
	}

	client, err := a.Client(ctx)
	if err != nil {
		return discovery.Scanner{}, err
	}
	sources := discovery.Sources{Search: client, Flash: client}
	typesense, err := a.Typesense()
	if err != nil {
		return discovery.Scanner{}, err
	}
	if typesense != nil {
		sources.Typesense = typesense
	}
	return discovery.NewScanner(sources, st, a.Scorer(), a.clock, a.tel), nil
}

// Sinks fans monitor events out to the console, email when smtp is
// configured, and `extra`.
func (a *App) Sinks(extra ...monitor.Sink) notify.Multi {
	sinks := notify.Multi{notify.NewConsole()}
	if a.cfg.Smtp.Enabled() {
		sinks = append(sinks, notify.Filter{
			Kinds: notify.DefaultEmailKinds,
			Sink:  notify.NewEmail(a.cfg.Smtp),
		})
	}
	return append(sinks, extra...)
}

type MonitorOptions struct {
	Fake        bool
	Interval    time.Duration
	Jitter      time.Duration
	ClosingSoon time.Duration
}

func (a *App) Monitor(ctx context.Context, opts MonitorOptions, sink monitor.Sink) (*monitor.Monitor, error) {
	st, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	monitorOpts := monitor.Options{
		Interval:    opts.Interval,
		Jitter:      opts.Jitter,
		ClosingSoon: opts.ClosingSoon,
	}
	if opts.Fake {
		return monitor.NewMonitor(macbid.NewFaked(), st, sink, a.clock, a.tel, monitorOpts), nil
	}

	client, err := a.Client(ctx)
	if err != nil {
		return nil, err
	}
	nextData, err := a.NextData()
	if err != nil {
		return nil, err
	}
	fetcher := monitor.FetcherChain{
		client,
		monitor.LotFetcherFunc(nextData.LotPage),
	}

	if client.HasToken() {
		token, err := a.Token(ctx)
		if err == nil && token.CustomerID != "" {
			monitorOpts.Customer = client
			monitorOpts.CustomerID = token.CustomerID
		}
	}
	return monitor.NewMonitor(fetcher, st, sink, a.clock, a.tel, monitorOpts), nil
}
