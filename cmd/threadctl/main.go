// Command threadctl reads and writes comment threads in the configured store.
//
//	threadctl [-as email] save [file]        save a thread (or a JSON array of threads)
//	threadctl [-as email] get <id>           print a thread
//	threadctl [-as email] subscribe <id> <subscriber>...
//	threadctl [-as email] private <application-id>
//	threadctl health                         ping the store
//
// Configuration comes from config.yaml and THREADSTORE_* environment variables.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/helixir/comment-thread-store/internal/config"
	"github.com/helixir/comment-thread-store/internal/domain"
	"github.com/helixir/comment-thread-store/internal/events"
	"github.com/helixir/comment-thread-store/internal/observability"
	"github.com/helixir/comment-thread-store/internal/policy"
	"github.com/helixir/comment-thread-store/internal/service"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("threadctl", flag.ContinueOnError)
	actingUser := fs.String("as", "", "Email of the acting user; scopes reads and owns created threads")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("no command specified")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     "stderr",
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "threadctl").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	st, err := openStore(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer st.close()

	publisher, err := openPublisher(&cfg.Kafka, metrics, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close publisher")
		}
	}()

	cmds := &commands{
		svc:    service.NewThreadService(st.repo, events.NewEmitter(events.EmitterConfig{ServiceName: cfg.Store.ServiceName}), publisher, logger),
		health: st.health,
	}

	ctx = invocationContext(ctx, *actingUser)
	if cfg.Store.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Store.OperationTimeout)
		defer cancel()
	}

	return cmds.execute(ctx, fs.Args(), stdin, stdout)
}

// invocationContext tags ctx with a fresh request id, so the logs and events
// of one invocation correlate, and with the acting user when one is given.
func invocationContext(ctx context.Context, actingUser string) context.Context {
	ctx = observability.WithRequestID(ctx, uuid.NewString())
	if actingUser != "" {
		ctx = policy.WithUser(ctx, domain.User{Email: actingUser})
	}
	return ctx
}
