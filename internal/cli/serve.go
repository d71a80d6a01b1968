package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ideacrew/gluedb-sub000/internal/engine"
	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
	"github.com/ideacrew/gluedb-sub000/internal/httpapi"
	"github.com/ideacrew/gluedb-sub000/internal/transport"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string
	Addr     string
	Workers  int
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine behind the HTTP API and the Kafka consumer",
		Long: `Run the batch engine as a service.

Starts the engine workers and the HTTP API. When kafka.brokers is set in
the config, batches are also consumed from the inbound topic and queued
confirmations are relayed to the confirmation topic.

Endpoints:
  POST /v1/batches                         process a batch
  GET  /v1/markers/{hbx_enrollment_id}     list idempotency markers
  GET  /healthz                            database and redis health

Examples:
  enrollsync serve
  enrollsync serve --config ./enrollsync.cue --addr :9090 --workers 8`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent batches (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.HTTP.Addr = opts.Addr
	}
	if opts.Workers > 0 {
		cfg.Engine.Workers = opts.Workers
	}

	st, err := openStore(cfg, opts.Database)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	// Use command's context if available (for testing), otherwise create one
	ctx, cancel := context.WithCancel(commandContext(cmd.Context()))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	markers, client, err := openMarkers(ctx, cfg, st)
	if err != nil {
		return err
	}
	health := []httpapi.Pinger{st}
	if client != nil {
		defer client.Close()
		health = append(health, redisPinger{client})
	}

	eng, err := newEngine(ctx, cfg, st, markers)
	if err != nil {
		return err
	}
	srv := httpapi.NewServer(cfg.HTTP.Addr, httpapi.NewRouter(httpapi.NewHandler(eng.Submit, markers, health...)))

	var (
		wg   sync.WaitGroup
		errc = make(chan error, 4)
	)
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fn(ctx)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				slog.Error("component failed", "component", name, "error", err)
				errc <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}

	start("engine", eng.Run)
	start("http", func(ctx context.Context) error { return httpapi.Serve(ctx, srv) })

	if cfg.Kafka.Enabled() {
		consumer, err := transport.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.InboundTopic)
		if err != nil {
			cancel()
			wg.Wait()
			return WrapExitError(ExitCommandError, "failed to create kafka consumer", err)
		}
		consumer.Attempts = cfg.Kafka.Attempts
		defer consumer.Close()

		publisher, err := transport.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.ConfirmationTopic)
		if err != nil {
			cancel()
			wg.Wait()
			return WrapExitError(ExitCommandError, "failed to create kafka publisher", err)
		}
		defer publisher.Close()

		relay := transport.NewOutboxRelay(slog.Default(), st, publisher,
			cfg.OutboxInterval(), cfg.Outbox.BatchSize, cfg.Outbox.MaxRetries)

		start("kafka-consumer", func(ctx context.Context) error {
			return consumer.Run(ctx, batchHandler(eng.Submit))
		})
		start("outbox-relay", relay.Run)
		slog.Info("kafka enabled",
			"brokers", cfg.Kafka.Brokers,
			"inbound_topic", cfg.Kafka.InboundTopic,
			"confirmation_topic", cfg.Kafka.ConfirmationTopic)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s with %d worker(s).\n", cfg.HTTP.Addr, cfg.Engine.Workers)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	wg.Wait()
	close(errc)
	if err := <-errc; err != nil {
		return WrapExitError(ExitFailure, "service error", err)
	}

	slog.Info("service stopped gracefully")
	return nil
}

// batchHandler adapts a process function to the Kafka consumer. Batches
// that can never succeed are logged and acknowledged so the partition
// moves on; every other failure is returned for redelivery.
func batchHandler(process httpapi.ProcessFunc) transport.Handler {
	return func(ctx context.Context, b *enrollment.Batch) error {
		rep, err := process(ctx, b)
		if err != nil {
			if !engine.Retryable(err) {
				slog.Error("dropping batch that cannot be processed", "batch_id", b.ID, "error", err)
				return nil
			}
			return err
		}
		slog.Debug("consumed batch",
			"batch_id", rep.BatchID,
			"chunks", len(rep.Chunks),
			"published", rep.Count(engine.OutcomePublished))
		return nil
	}
}

// redisPinger adapts a Redis client to httpapi.Pinger.
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
