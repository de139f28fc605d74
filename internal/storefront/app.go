// Package storefront wires one instance of every client component for an
// active session.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/storefront/internal/alert"
	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/session"
)

const breakerOpenFor = 30 * time.Second

type App struct {
	Session  *session.Manager
	Client   *api.Client
	Guard    *api.Guard
	Cart     *cart.State
	Feed     *catalog.Feed
	Checkout *checkout.Flow
	Notifier alert.Notifier
	Log      *slog.Logger

	consumer *events.Consumer
	redis    *redis.Client
	closers  []func() error

	stopOnce sync.Once
	stop     context.CancelFunc
	wg       sync.WaitGroup
}

type options struct {
	log        *slog.Logger
	notifier   alert.Notifier
	httpClient *http.Client
	store      session.Store
	redis      *redis.Client
	reader     events.MessageReader
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithNotifier(n alert.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithSessionStore overrides the store selected by SESSION_STORE.
func WithSessionStore(s session.Store) Option {
	return func(o *options) { o.store = s }
}

// WithRedis supplies the Redis client used for the session store and the
// cart cache instead of dialing one from the config.
func WithRedis(c *redis.Client) Option {
	return func(o *options) { o.redis = c }
}

// WithEventReader consumes checkout events from r instead of Kafka.
func WithEventReader(r events.MessageReader) Option {
	return func(o *options) { o.reader = r }
}

func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	}
	if o.notifier == nil {
		o.notifier = alert.LogNotifier{Log: o.log, AutoAcknowledge: true}
	}

	a := &App{Notifier: o.notifier, Log: o.log, redis: o.redis}

	store, err := a.sessionStore(cfg, o)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Session = session.NewManager(store, nil, session.WithLogger(o.log))

	a.Guard = api.NewGuard(o.notifier, cfg.GuardSettleDelay)
	a.Guard.OnExpire(a.Session.Expire)

	clientOpts := []api.Option{
		api.WithTokenSource(a.Session),
		api.WithUnauthorizedHandler(a.Guard),
		api.WithTimeout(cfg.RequestTimeout),
		api.WithBreaker(cfg.BreakerMaxFailures, breakerOpenFor),
		api.WithLogger(o.log),
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(o.httpClient))
	}
	a.Client = api.NewClient(cfg.APIURL, clientOpts...)
	a.Session.SetAuthenticator(api.NewAuthService(a.Client))

	cartOpts := []cart.Option{
		cart.WithLogger(o.log),
		cart.WithCache(a.cartCache(cfg), a.Session.UserID),
	}
	if cfg.SerializeCartMutations {
		cartOpts = append(cartOpts, cart.WithSerializedMutations())
	}
	a.Cart = cart.New(api.NewCartService(a.Client), cartOpts...)

	a.Feed = catalog.NewFeed(api.NewCatalogService(a.Client),
		catalog.WithPageSize(cfg.CatalogPageSize),
		catalog.WithNotifier(o.notifier),
		catalog.WithLogger(o.log),
	)
	a.Checkout = checkout.NewFlow(a.Cart, api.NewPaymentService(a.Client), o.log)

	a.Session.OnLogout(func(ctx context.Context) {
		a.Cart.Reset(ctx)
		a.Feed.Reset()
		a.Checkout.Reset()
	})

	reader := o.reader
	if reader == nil && len(cfg.KafkaBrokers) > 0 {
		reader = events.NewKafkaReader(events.DefaultGroupID, cfg.KafkaBrokers...)
	}
	if reader != nil {
		a.consumer = events.NewConsumer(reader, a.Cart, a.Session.UserID, o.log)
	}

	return a, nil
}

func (a *App) sessionStore(cfg *config.Config, o *options) (session.Store, error) {
	if o.store != nil {
		return o.store, nil
	}
	switch cfg.SessionStore {
	case "redis":
		rdb, err := a.redisClient(cfg)
		if err != nil {
			return nil, err
		}
		return session.NewRedisStore(rdb, ""), nil
	case "sqlite":
		s, err := session.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return session.NewMemoryStore(), nil
	}
}

func (a *App) redisClient(cfg *config.Config) (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	var opts *redis.Options
	if cfg.RedisURL != "" {
		var err error
		if opts, err = redis.ParseURL(cfg.RedisURL); err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
	} else {
		opts = &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	}
	a.redis = redis.NewClient(opts)
	a.closers = append(a.closers, a.redis.Close)
	return a.redis, nil
}

func (a *App) cartCache(cfg *config.Config) cache.CartCache {
	if a.redis != nil {
		return cache.NewRedisCache(a.redis, cache.WithTTL(cfg.CartCacheTTL, cfg.CartCacheJitter))
	}
	return cache.NewMemoryCache()
}

// Start restores the persisted session, loads the cart of a restored user
// and starts the checkout event consumer.
func (a *App) Start(ctx context.Context) error {
	if err := a.Session.Restore(ctx); err != nil {
		return err
	}
	if a.Session.Authenticated() {
		a.loadCart(ctx)
	}

	if a.consumer != nil {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a.stop = cancel
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.consumer.Run(runCtx)
		}()
	}
	return nil
}

func (a *App) Login(ctx context.Context, email, password string) error {
	if err := a.Session.Login(ctx, email, password); err != nil {
		return err
	}
	a.loadCart(ctx)
	return nil
}

func (a *App) Register(ctx context.Context, name, email, password string) error {
	if err := a.Session.Register(ctx, name, email, password); err != nil {
		return err
	}
	a.loadCart(ctx)
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	return a.Session.Logout(ctx)
}

// loadCart shows the cached cart right away, then reconciles with the server.
func (a *App) loadCart(ctx context.Context) {
	a.Cart.Warm(ctx)
	if err := a.Cart.FetchCart(ctx); err != nil {
		a.Log.WarnContext(ctx, "initial cart fetch failed", "error", err)
	}
}

// Close stops the event consumer and releases the stores.
func (a *App) Close() error {
	var errs []error
	a.stopOnce.Do(func() {
		if a.stop != nil {
			a.stop()
		}
		a.wg.Wait()
		if a.consumer != nil {
			a.consumer.Close()
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
