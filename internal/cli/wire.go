package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/congo-pay/druid/internal/auth"
	"github.com/congo-pay/druid/internal/binding"
	"github.com/congo-pay/druid/internal/config"
	"github.com/congo-pay/druid/internal/identity"
	"github.com/congo-pay/druid/internal/infra"
	"github.com/congo-pay/druid/internal/logging"
	"github.com/congo-pay/druid/internal/reconcile"
	"github.com/congo-pay/druid/internal/remote"
	"github.com/congo-pay/druid/internal/session"
	"github.com/congo-pay/druid/internal/telemetry"
)

const passkeySetupPath = "/passkey"

// Build wires an App from client configuration. The returned close function
// releases the session database, the Redis client and flushes traces.
func Build(ctx context.Context, cfg config.Client, in io.Reader, out, logOut io.Writer) (*App, func(), error) {
	logger := logging.NewText(logOut, cfg.LogLevel)
	var closers []func() error

	shutdownTracing, err := telemetry.Setup(ctx, "druid-cli", cfg.OTelEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("setup tracing: %w", err)
	}
	closers = append(closers, func() error { return shutdownTracing(context.Background()) })

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("close", slog.Any("error", err))
			}
		}
	}

	client, err := remote.New(remote.Options{BaseURL: cfg.ServiceURL, Timeout: cfg.Timeout, Logger: logger})
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	storage, err := session.OpenSQLite(ctx, cfg.SessionPath)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	closers = append(closers, storage.Close)

	var codec session.Codec
	if cfg.SessionKey != "" {
		signed, err := session.NewSignedCodec([]byte(cfg.SessionKey))
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		codec = signed
	}

	var recorder reconcile.Recorder = reconcile.NewLogRecorder(logger)
	if cfg.RedisURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, cache.Close)
		recorder = reconcile.NewRedisRecorder(cache, logger)
	}

	binder := binding.NewBinder(client, recorder, logger)
	manager := auth.NewManager(auth.Deps{
		Resolver:  identity.NewResolver(client, logger),
		Binder:    binder,
		Sessions:  session.NewStore(storage, codec, logger),
		Registrar: client,
		Logger:    logger,
	})

	prompt := NewPrompter(in, out)
	app := NewApp(Deps{
		Manager:  manager,
		PINs:     client,
		Ceremony: NewPromptCeremony(prompt, cfg.ServiceURL+passkeySetupPath),
		Binder:   binder,
		Logger:   logger,
	}, prompt, out)
	return app, closeAll, nil
}

// Main parses args, runs the command and returns the process exit code.
func Main(ctx context.Context, fs *flag.FlagSet, args []string, in io.Reader, out, errOut io.Writer) int {
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(errOut, err)
		}
		return 2
	}
	clientCfg, err := config.LoadClient(cfg.ConfigPath)
	if err != nil {
		fmt.Fprintf(errOut, "load config: %v\n", err)
		return 1
	}
	app, closeAll, err := Build(ctx, clientCfg, in, out, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "start: %v\n", err)
		return 1
	}
	defer closeAll()

	if err := app.Run(ctx, cfg.Command, cfg.Args); err != nil {
		fmt.Fprintln(errOut, err)
		if errors.Is(err, ErrUsage) {
			return 2
		}
		return 1
	}
	return 0
}
