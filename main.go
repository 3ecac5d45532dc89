package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	"xgos-feed/adapters"
	"xgos-feed/application"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var Flags = []cli.Flag{
	FlagLogLevel,
	FlagLogWriter,
	FlagStorePath,
	FlagMQTTHost,
	FlagMQTTPort,
	FlagMQTTClientID,
	FlagMQTTUsername,
	FlagMQTTPassword,
	FlagMQTTKeepAlive,
	FlagMQTTCleanSession,
	FlagMQTTConnectTimeout,
	FlagReconnectDelay,
	FlagRetryOnAuthFailure,
	FlagBufferCapacity,
	FlagReportInterval,
	FlagDiagnosticsAddr,
}

var LoginFlags = []cli.Flag{
	FlagUserID,
	FlagUsername,
	FlagServerHost,
}

var ErrNoActiveUser = fmt.Errorf("no active user, run login first")

func main() {
	var logger zerolog.Logger

	app := cli.App{
		Name:    "xgos-feed",
		Usage:   "live alert and video feed for an xgos account",
		Version: "v0.0.1",
		Flags:   Flags,
		Before: func(ctx *cli.Context) error {
			var logWriter io.Writer
			if ctx.String(FlagLogWriter.Name) == "console" {
				logWriter = zerolog.ConsoleWriter{
					Out:        os.Stderr,
					TimeFormat: time.RFC3339Nano,
				}
			} else if ctx.String(FlagLogWriter.Name) == "json" {
				logWriter = os.Stderr
			} else {
				return fmt.Errorf("invalid log writer: %s", ctx.String(FlagLogWriter.Name))
			}

			logger = zerolog.New(logWriter).With().Timestamp().
				Str("service", "xgos-feed").
				Str("module", "main").
				Logger()

			level, err := zerolog.ParseLevel(ctx.String(FlagLogLevel.Name))
			if err != nil {
				return err
			}

			zerolog.SetGlobalLevel(level)

			return nil
		},
		Action: func(ctx *cli.Context) error {
			return runFeed(ctx, logger)
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "connect and consume the live feed (default)",
				Action: func(ctx *cli.Context) error {
					return runFeed(ctx, logger)
				},
			},
			{
				Name:  "login",
				Usage: "store the active user for later runs",
				Flags: LoginFlags,
				Action: func(ctx *cli.Context) error {
					store, err := openStore(ctx, logger)
					if err != nil {
						return err
					}

					user := application.ActiveUser{
						UserID:   ctx.String(FlagUserID.Name),
						Username: ctx.String(FlagUsername.Name),
					}
					if err := store.SaveActiveUser(user, ctx.String(FlagMQTTUsername.Name)); err != nil {
						return err
					}
					if host := ctx.String(FlagServerHost.Name); host != "" {
						if err := store.SaveBrokerHost(host); err != nil {
							return err
						}
					}

					logger.Info().Str("user_id", user.UserID).Str("username", user.Username).Msg("logged in")
					return nil
				},
			},
			{
				Name:  "logout",
				Usage: "forget the active user",
				Action: func(ctx *cli.Context) error {
					store, err := openStore(ctx, logger)
					if err != nil {
						return err
					}
					if err := store.Clear(); err != nil {
						return err
					}

					logger.Info().Msg("logged out")
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Err(err).Msg("service terminated")
		os.Exit(1)
	}
}

func openStore(ctx *cli.Context, logger zerolog.Logger) (*adapters.FileCredentialStore, error) {
	return adapters.NewFileCredentialStore(adapters.FileCredentialStoreParams{
		Path: ctx.String(FlagStorePath.Name),
		Log:  logger.With().Str("module", "credential-store").Logger(),
	})
}

func runFeed(ctx *cli.Context, logger zerolog.Logger) error {
	logger.Info().Msg("service starting...")

	appCtx, cancel := context.WithCancel(logger.WithContext(context.Background()))
	defer cancel()
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

		<-c

		logger.Warn().Msg("interrupt signal received")
		cancel()
	}()

	store, err := openStore(ctx, logger)
	if err != nil {
		return err
	}

	user, ok := store.GetActiveUser()
	if !ok {
		return ErrNoActiveUser
	}

	creds := application.Credentials{
		BrokerHost:     ctx.String(FlagMQTTHost.Name),
		BrokerPort:     ctx.Int(FlagMQTTPort.Name),
		ClientIdentity: ctx.String(FlagMQTTClientID.Name),
		Username:       ctx.String(FlagMQTTUsername.Name),
		Password:       ctx.String(FlagMQTTPassword.Name),
		KeepAlive:      ctx.Duration(FlagMQTTKeepAlive.Name),
		CleanSession:   ctx.Bool(FlagMQTTCleanSession.Name),
	}
	if creds.BrokerHost == "" {
		creds.BrokerHost = store.BrokerHost()
	}
	if creds.Username == "" {
		creds.Username = store.MQTTUsername()
	}

	dialer := adapters.NewMQTTDialer(adapters.MQTTDialerParams{
		ConnectTimeout: ctx.Duration(FlagMQTTConnectTimeout.Name),
		Log:            logger.With().Str("module", "mqtt-client").Logger(),
	})

	notifications := adapters.NewNotificationDispatcher(adapters.NotificationDispatcherParams{
		Log: logger.With().Str("module", "notifications").Logger(),
	})

	managerLog := logger.With().Str("module", "connection-manager").Logger()
	manager, err := application.NewConnectionManager(application.ConnectionManagerParams{
		Dialer:             dialer,
		Dispatcher:         notifications,
		CredentialStore:    store,
		Buffer:             application.NewMessageBuffer(ctx.Int(FlagBufferCapacity.Name)),
		ReconnectDelay:     ctx.Duration(FlagReconnectDelay.Name),
		RetryOnAuthFailure: ctx.Bool(FlagRetryOnAuthFailure.Name),
		Log:                managerLog,
	})
	if err != nil {
		return err
	}

	feedService, err := application.NewFeedService(application.FeedServiceParams{
		Manager:        manager,
		StatusNotifier: notifications,
		ReportInterval: ctx.Duration(FlagReportInterval.Name),
		Log:            logger.With().Str("module", "feed-service").Logger(),
	})
	if err != nil {
		return err
	}

	if err := manager.Connect(creds, user.UserID); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(appCtx)
	g.Go(func() error {
		return feedService.Run(gCtx)
	})

	if addr := ctx.String(FlagDiagnosticsAddr.Name); addr != "" {
		diagnostics, err := adapters.NewDiagnosticsServer(adapters.DiagnosticsServerParams{
			Addr: addr,
			Feed: manager,
			Log:  logger.With().Str("module", "diagnostics").Logger(),
		})
		if err != nil {
			return err
		}

		g.Go(func() error {
			return diagnostics.Run(gCtx)
		})
	}

	logger.Info().Str("user_id", user.UserID).Msg("service started")
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info().Msg("service terminating...")
	return nil
}
