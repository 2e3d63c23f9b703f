package etcd

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/MrSnakeDoc/vigil/internal/logger"
	"github.com/MrSnakeDoc/vigil/internal/utils"
)

// ConnectOptions defines etcd connection retry behavior.
type ConnectOptions struct {
	Endpoints      []string      // etcd endpoints (ex: ["localhost:2379"])
	DialTimeout    time.Duration // gRPC dial timeout per endpoint
	ConnectTimeout time.Duration // Total time allowed for connection attempts (ex: 30s)
	RetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	MaxWait        time.Duration // max wait between retries (ex: 10s)
	StatusTimeout  time.Duration // timeout for each status probe (ex: 2s)
	WarnThreshold  int           // warn after this many attempts
}

// retryConfig holds retry policy settings.
type retryConfig struct {
	maxWait       time.Duration
	statusTimeout time.Duration
	initialWait   time.Duration
	totalTimeout  time.Duration
	warnThreshold int // warn after this many attempts
}

// connectionLogger handles all etcd connection logging.
type connectionLogger struct {
	logger logger.Logger
}

func (cl *connectionLogger) logConnectionStart(endpoints []string, timeout time.Duration) {
	cl.logger.Info("connecting to etcd",
		logger.Strings("endpoints", endpoints),
		logger.Duration("timeout", timeout))
}

func (cl *connectionLogger) logSuccess(endpoint string, attempts int, elapsed time.Duration) {
	if attempts > 1 {
		cl.logger.Warn("connected to etcd after retry",
			logger.String("endpoint", endpoint),
			logger.Int("attempts", attempts),
			logger.Duration("elapsed", elapsed))
	} else {
		cl.logger.Info("connected to etcd",
			logger.String("endpoint", endpoint))
	}
}

func (cl *connectionLogger) logTimeout(endpoints []string, attempts int, timeout time.Duration, err error) {
	cl.logger.Error("etcd unavailable - failed to connect after timeout",
		logger.Strings("endpoints", endpoints),
		logger.Int("attempts", attempts),
		logger.Duration("timeout", timeout),
		logger.Error(err))
}

func (cl *connectionLogger) logRetry(endpoint string, attempt int, remaining time.Duration, nextRetry time.Duration, warnThreshold int, err error) {
	switch {
	case remaining < 10*time.Second:
		cl.logger.Error("etcd still down - retrying but timeout approaching",
			logger.String("endpoint", endpoint),
			logger.Int("attempt", attempt),
			logger.Duration("remaining", remaining),
			logger.Duration("next_retry_in", nextRetry),
			logger.Error(err))
	case attempt <= warnThreshold:
		cl.logger.Warn("etcd connection failed, retrying",
			logger.String("endpoint", endpoint),
			logger.Int("attempt", attempt),
			logger.Duration("next_retry_in", nextRetry),
			logger.Error(err))
	default:
		cl.logger.Error("etcd still unavailable - connection attempts failing",
			logger.String("endpoint", endpoint),
			logger.Int("attempt", attempt),
			logger.Duration("next_retry_in", nextRetry),
			logger.Error(err))
	}
}

// validateOptions ensures all required configuration values are valid.
func (cl *connectionLogger) validateOptions(opts ConnectOptions) error {
	if len(opts.Endpoints) == 0 {
		cl.logger.Error("no etcd endpoints configured")
		return fmt.Errorf("at least one etcd endpoint is required")
	}
	if opts.ConnectTimeout <= 0 {
		cl.logger.Error("invalid ConnectTimeout", logger.Duration("value", opts.ConnectTimeout))
		return fmt.Errorf("ConnectTimeout must be > 0, got %v", opts.ConnectTimeout)
	}
	if opts.RetryInterval <= 0 {
		cl.logger.Error("invalid RetryInterval", logger.Duration("value", opts.RetryInterval))
		return fmt.Errorf("RetryInterval must be > 0, got %v", opts.RetryInterval)
	}
	if opts.MaxWait <= 0 {
		cl.logger.Error("invalid MaxWait", logger.Duration("value", opts.MaxWait))
		return fmt.Errorf("MaxWait must be > 0, got %v", opts.MaxWait)
	}
	if opts.StatusTimeout <= 0 {
		cl.logger.Error("invalid StatusTimeout", logger.Duration("value", opts.StatusTimeout))
		return fmt.Errorf("StatusTimeout must be > 0, got %v", opts.StatusTimeout)
	}
	if opts.WarnThreshold < 0 {
		cl.logger.Error("invalid WarnThreshold", logger.Int("value", opts.WarnThreshold))
		return fmt.Errorf("WarnThreshold must be >= 0, got %d", opts.WarnThreshold)
	}
	return nil
}

// New creates an etcd client and verifies the cluster answers before
// returning it, retrying with exponential backoff until ConnectTimeout is
// reached. The gRPC dial itself is lazy, so the status probe is what
// actually proves the cluster is reachable.
func New(opts ConnectOptions, log logger.Logger) (*clientv3.Client, error) {
	connLogger := &connectionLogger{logger: log}
	if err := connLogger.validateOptions(opts); err != nil {
		return nil, err
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   opts.Endpoints,
		DialTimeout: opts.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("building etcd client: %w", err)
	}

	retry := retryConfig{
		maxWait:       opts.MaxWait,
		statusTimeout: opts.StatusTimeout,
		initialWait:   opts.RetryInterval,
		totalTimeout:  opts.ConnectTimeout,
		warnThreshold: opts.WarnThreshold,
	}

	return connectWithRetry(client, opts.Endpoints, retry, connLogger)
}

// connectWithRetry handles the retry loop with exponential backoff. Probes
// rotate through the endpoints so a single dead member does not mask a
// healthy cluster.
func connectWithRetry(client *clientv3.Client, endpoints []string, retry retryConfig, log *connectionLogger) (*clientv3.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), retry.totalTimeout)
	defer cancel()

	log.logConnectionStart(endpoints, retry.totalTimeout)
	attempt := 0
	wait := retry.initialWait

	for {
		endpoint := endpoints[attempt%len(endpoints)]
		attempt++

		// Attempt connection
		statusCtx, statusCancel := context.WithTimeout(ctx, retry.statusTimeout)
		_, err := client.Status(statusCtx, endpoint)
		statusCancel()

		if err == nil {
			elapsed := retry.totalTimeout - timeLeft(ctx)
			log.logSuccess(endpoint, attempt, elapsed)
			return client, nil
		}

		// Check if timeout exhausted
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.logTimeout(endpoints, attempt, retry.totalTimeout, err)
			utils.Close(client)
			return nil, fmt.Errorf("etcd unavailable at %v after %d attempts (timeout: %v): %w",
				endpoints, attempt, retry.totalTimeout, err)

		case <-timer.C:
			remaining := timeLeft(ctx)
			log.logRetry(endpoint, attempt, remaining, wait, retry.warnThreshold, err)
			// Exponential backoff with cap
			wait *= 2
			if wait > retry.maxWait {
				wait = retry.maxWait
			}
		}
	}
}

// timeLeft returns the remaining time before context deadline.
func timeLeft(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return time.Until(deadline)
}
