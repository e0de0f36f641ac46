package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"go.uber.org/zap"

	identityapp "github.com/logiride/client/internal/application/identity"
	ledgerapp "github.com/logiride/client/internal/application/ledger"
	tripapp "github.com/logiride/client/internal/application/trip"
	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/infrastructure/config"
	"github.com/logiride/client/internal/infrastructure/httpclient"
	"github.com/logiride/client/internal/infrastructure/logger"
	"github.com/logiride/client/internal/infrastructure/metrics"
	"github.com/logiride/client/internal/infrastructure/session"
)

// command is one ridecli subcommand
type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"login":    {"login -phone <phone> -password <password>", runLogin},
		"logout":   {"logout", runLogout},
		"whoami":   {"whoami", runWhoami},
		"register": {"register -phone -password -name [-email] [-role CUSTOMER|DRIVER]", runRegister},
		"history":  {"history [-json]", runHistory},
		"bookings": {"bookings", runBookings},
		"book":     {"book -from <address> -to <address> [-vehicle CAR_4] [-km 0] [-voucher CODE]", runBook},
		"cancel":   {"cancel -id <booking>", runCancel},
		"vouchers": {"vouchers [-price 0]", runVouchers},
		"scan-id":  {"scan-id -file <image>", runScanID},
		"chat":     {"chat -booking <id>", runChat},
		"listen":   {"listen [-metrics :9102]", runListen},
	}
}

// app holds the services shared by every command
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	sessions identity.SessionStore
	api      *httpclient.Client
	auth     *identityapp.AuthService
	account  *identityapp.AccountService
	history  *ledgerapp.HistoryService
	bookings *tripapp.BookingService
	vouchers *tripapp.VoucherService
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, func(), error) {
	sessions, closeSessions, err := session.NewStore(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	m := metrics.New()
	api, err := httpclient.New(cfg.API, sessions,
		httpclient.WithLogger(log),
		httpclient.WithMetrics(m),
	)
	if err != nil {
		_ = closeSessions()
		return nil, nil, err
	}
	auth := identityapp.NewAuthService(api, sessions, log)
	api.SetSessionExpiredHandler(auth.HandleSessionExpired)

	a := &app{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		sessions: sessions,
		api:      api,
		auth:     auth,
		account:  identityapp.NewAccountService(api, sessions, log),
		history:  ledgerapp.NewHistoryService(api, sessions, cfg.History, log),
		bookings: tripapp.NewBookingService(api, log),
		vouchers: tripapp.NewVoucherService(api),
	}
	cleanup := func() {
		if err := closeSessions(); err != nil {
			log.Warn("Closing session store", zap.Error(err))
		}
	}
	return a, cleanup, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: ridecli [-config path] [-v] <command> [flags]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
	}
}

func main() {
	var (
		configPath string
		verbose    bool
	)
	flag.StringVar(&configPath, "config", "", "Path to config.toml")
	flag.BoolVar(&verbose, "v", false, "Log at debug level")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", args[0])
		usage()
		os.Exit(2)
	}

	// Load configuration
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	log, err := logger.New(logger.FromConfig(cfg.Log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	a, cleanup, err := newApp(ctx, cfg, log)
	if err != nil {
		stop()
		log.Fatal("Failed to initialize client", zap.Error(err))
	}

	err = cmd.run(ctx, a, args[1:])
	cleanup()
	stop()
	logger.Sync(log)

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flags creates the flag set of a subcommand
func flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ridecli %s\n", commands[name].usage)
		fs.PrintDefaults()
	}
	return fs
}
