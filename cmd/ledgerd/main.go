// Command ledgerd serves the dataset ledger over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/helix-tools/ledger-go/api"
	"github.com/helix-tools/ledger-go/config"
	"github.com/helix-tools/ledger-go/envelope"
	"github.com/helix-tools/ledger-go/ledger"
	"github.com/helix-tools/ledger-go/notify"
	"github.com/helix-tools/ledger-go/snapshot"
)

const shutdownTimeout = 15 * time.Second

var configFile = flag.String("config", "", "path to a YAML config file")

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		log.Fatalf("ledgerd: %v", err)
	}
}

func run(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	awsCfg, err := config.NewAWSConfig(ctx, cfg)
	if err != nil {
		return err
	}
	if err := cfg.ApplySSM(ctx, ssm.NewFromConfig(awsCfg)); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	arn, err := config.CallerIdentity(ctx, sts.NewFromConfig(awsCfg))
	if err != nil {
		return err
	}
	if cfg.Operator == "" {
		cfg.Operator = arn
	}

	logger.Info("starting ledgerd",
		zap.String("operator", cfg.Operator),
		zap.String("caller_arn", arn),
		zap.Uint64("fee_rate", cfg.FeeRate),
		zap.String("region", cfg.Region),
	)

	opts := []ledger.Option{
		ledger.WithFeeRate(cfg.FeeRate),
		ledger.WithLogger(logger.Named("ledger")),
		ledger.WithRegisterer(prometheus.DefaultRegisterer),
	}
	if cfg.EventQueueURL != "" {
		pub, err := notify.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.EventQueueURL, logger.Named("notify"))
		if err != nil {
			return err
		}
		opts = append(opts, ledger.WithPublisher(pub))
	}

	l, err := ledger.New(cfg.Operator, opts...)
	if err != nil {
		return err
	}

	var store *snapshot.Store
	if cfg.SnapshotBucket != "" {
		store, err = snapshot.NewStore(s3.NewFromConfig(awsCfg), snapshot.Config{
			Bucket: cfg.SnapshotBucket,
			Key:    cfg.SnapshotKey,
			Sealer: envelope.NewSealer(kms.NewFromConfig(awsCfg), cfg.KMSKeyID),
			Logger: logger.Named("snapshot"),
		})
		if err != nil {
			return err
		}
		if err := restore(ctx, store, l, logger); err != nil {
			return err
		}
	}

	checkpointDone := make(chan struct{})
	serveCtx, stopCheckpoints := context.WithCancel(ctx)
	if store != nil && cfg.SnapshotInterval > 0 {
		go func() {
			defer close(checkpointDone)
			checkpoint(serveCtx, store, l, cfg.SnapshotInterval, logger)
		}()
	} else {
		close(checkpointDone)
	}

	serveErr := serve(serveCtx, cfg, l, logger)
	stopCheckpoints()
	<-checkpointDone

	if store != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := store.Save(saveCtx, l.Snapshot()); err != nil {
			return errors.Join(serveErr, fmt.Errorf("failed to save snapshot: %w", err))
		}
	}
	if serveErr != nil {
		return serveErr
	}

	logger.Info("ledgerd stopped")

	return nil
}

func restore(ctx context.Context, store *snapshot.Store, l *ledger.Ledger, logger *zap.Logger) error {
	state, err := store.Load(ctx)
	if errors.Is(err, snapshot.ErrNotFound) {
		logger.Info("no snapshot found, starting empty")
		return nil
	}
	if err != nil {
		return err
	}

	if err := l.Restore(state); err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}

	logger.Info("restored snapshot",
		zap.Uint64("datasets", state.DatasetCount),
		zap.Uint64("categories", state.CategoryCount),
		zap.Uint64("event_sequence", state.EventSequence),
	)

	return nil
}

// checkpoint saves the ledger every interval while it has committed
// mutations since the last save, until ctx is done. A failed save is
// retried on the next tick.
func checkpoint(ctx context.Context, store *snapshot.Store, l *ledger.Ledger, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	saved := l.Sequence()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if l.Sequence() == saved {
			continue
		}

		state := l.Snapshot()
		if err := store.Save(ctx, state); err != nil {
			logger.Error("failed to checkpoint ledger", zap.Error(err))
			continue
		}
		saved = state.EventSequence
	}
}

// serve runs the API and metrics servers until ctx is cancelled.
func serve(ctx context.Context, cfg config.Config, l *ledger.Ledger, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(l, logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()
	if metricsSrv != nil {
		go func() {
			logger.Info("metrics server starting", zap.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server failed: %w", err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down servers")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", zap.Error(err))
		}
	}

	return serveErr
}

func newLogger(level string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()

	atomic, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zapConfig.Level = atomic
	zapConfig.InitialFields = map[string]any{"service": "ledgerd"}
	if host, err := os.Hostname(); err == nil {
		zapConfig.InitialFields["host"] = host
	}

	return zapConfig.Build()
}
