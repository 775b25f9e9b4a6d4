package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/smartjobassistant/go-account-auth"
)

func main() {
	configPath := flag.String("config", os.Getenv("ACCOUNT_CONFIG"), "path to a YAML config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] [grant-role <email> <role>]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("app"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
	logger := lgr.GetLogger("accountd")

	cfg, err := auth.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// a bad signing configuration must never serve traffic
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if cfg.Debug {
		fmt.Println(configSummary(cfg))
	}

	ctx := context.Background()

	db, err := openDB(cfg.DSN)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	users := auth.NewUsers(db,
		auth.WithBcryptCost(cfg.BcryptCost),
		auth.WithUsersLogger(lgr.GetLogger("auth:users")),
	)

	if err := users.EnsureSchema(ctx); err != nil {
		logger.Error("failed to prepare schema", "error", err)
		os.Exit(1)
	}

	if flag.Arg(0) == "grant-role" {
		if flag.NArg() != 3 {
			flag.Usage()
			os.Exit(2)
		}
		if err := users.AddRole(ctx, flag.Arg(1), flag.Arg(2)); err != nil {
			logger.Error("failed to grant role", "error", err)
			os.Exit(1)
		}
		logger.Info("role granted", "email", flag.Arg(1), "role", flag.Arg(2))
		return
	}

	signer, err := auth.NewTokenSigner(cfg.TokenConfig(),
		auth.WithSignerLogger(lgr.GetLogger("auth:tokens")),
	)
	if err != nil {
		logger.Error("invalid token configuration", "error", err)
		os.Exit(1)
	}

	metrics, err := auth.NewMetricsSink(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	activityLogger := lgr.GetLogger("auth:activity")
	auther := auth.NewAuthenticator(users, signer).
		WithLogger(lgr.GetLogger("auth:authn")).
		WithActivitySink(auth.MultiActivitySink{
			metrics,
			auth.ActivitySinkFunc(func(_ context.Context, e auth.ActivityEvent) error {
				activityLogger.Info("activity",
					"event", string(e.EventType),
					"user_id", e.UserID,
					"reason", e.Reason,
					"metadata", e.Metadata,
				)
				return nil
			}),
		})

	app := auth.NewApp(cfg, auther, auth.WithAppLogger(lgr.GetLogger("http")))

	go func() {
		logger.Info("listening", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := app.Listen(cfg.Addr); err != nil {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	sig := WaitExitSignal()
	logger.Info("shutting down", "signal", sig.String())

	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

// configSummary renders the resolved configuration, the signing key
// never leaves the Secret type.
func configSummary(cfg auth.Config) string {
	return print.MaybePrettyJSON(cfg)
}

func openDB(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer, concurrent registrations queue here
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
