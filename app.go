package auth

import (
	"runtime/debug"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type appOptions struct {
	logger   Logger
	gatherer prometheus.Gatherer
}

type AppOption func(*appOptions)

func WithAppLogger(logger Logger) AppOption {
	return func(o *appOptions) {
		o.logger = normalizeLogger(logger)
	}
}

// WithMetricsGatherer sets what /metrics exposes, defaults to the
// prometheus default gatherer.
func WithMetricsGatherer(g prometheus.Gatherer) AppOption {
	return func(o *appOptions) {
		if g != nil {
			o.gatherer = g
		}
	}
}

// NewApp builds the HTTP surface: account routes, /metrics, the error
// page and a JSON not found fallback, all failures rendered by the
// ErrorTranslator.
func NewApp(cfg Config, auther Authenticator, opts ...AppOption) *fiber.App {
	o := &appOptions{
		logger:   defLogger{},
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	translator := NewErrorTranslator(cfg.IsDevelopment(), o.logger)

	// forwarded headers are ignored unless the peer is a trusted proxy
	app := fiber.New(fiber.Config{
		AppName:                 "accountd",
		ErrorHandler:            translator.Handler,
		DisableStartupMessage:   true,
		ProxyHeader:             cfg.Proxy.Header,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          cfg.Proxy.TrustedProxies,
		EnableIPValidation:      true,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e any) {
			o.logger.Error("panic recovered", "panic", e, "path", c.OriginalURL())
			c.Locals(StackLocalsKey, string(debug.Stack()))
		},
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{})))

	var limiter *KeyedLimiter
	if cfg.RateLimit.Enabled {
		limiter = NewKeyedLimiter(cfg.RateLimit.PerSec, cfg.RateLimit.Burst, cfg.RateLimit.TTL)
	}

	RegisterAccountRoutes(app, auther,
		WithControllerLogger(o.logger),
		WithRateLimiter(limiter),
		WithPhoneRegion(cfg.PhoneRegion),
	)

	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound)
	})

	return app
}
