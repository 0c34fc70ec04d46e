package bon

import (
	"context"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb/postgres"
)

const (
	// dedupeSize bounds the ids remembered for duplicate suppression.
	dedupeSize = 4096

	// catchUpBatch is the page size of the pending-bon query.
	catchUpBatch = 256

	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute

	// pingInterval is how long the worker waits for a notification
	// before probing the connection and re-running the catch-up query.
	pingInterval = 90 * time.Second
)

// Worker listens on the postgres bon channel and renders receipts as
// orders finish. Notifications only fire on commit, so every id the
// worker sees references a fully booked order.
type Worker struct {
	listener  *pq.Listener
	generator *Generator
	logger    zerolog.Logger

	// seen suppresses duplicate notifications for recently handled
	// orders. Skipping here only saves the database roundtrip;
	// Generate itself is idempotent.
	seen *lru.Cache[int64, struct{}]
}

// NewWorker creates a bon worker connected to the given postgres DSN.
func NewWorker(dsn string, generator *Generator, logger zerolog.Logger) (*Worker, error) {
	workerLogger := logger.With().Str("component", "bon-worker").Logger()

	seen, err := lru.New[int64, struct{}](dedupeSize)
	if err != nil {
		return nil, err
	}

	listener := pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval,
		func(event pq.ListenerEventType, err error) {
			if err != nil {
				workerLogger.Error().Err(err).Int("event", int(event)).Msg("listener event")
			}
		})

	return &Worker{
		listener:  listener,
		generator: generator,
		logger:    workerLogger,
		seen:      seen,
	}, nil
}

// Run listens for bon notifications until the context is cancelled.
// Missed notifications are picked up by the startup catch-up pass and
// again whenever the connection drops or the idle probe fires.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.listener.Listen(postgres.BonChannel); err != nil {
		w.listener.Close()
		return err
	}
	defer w.listener.Close()

	w.logger.Info().Str("channel", postgres.BonChannel).Msg("bon worker started")
	w.catchUp(ctx)

	idle := time.NewTimer(pingInterval)
	defer idle.Stop()

	for {
		idle.Reset(pingInterval)

		select {
		case <-ctx.Done():
			w.logger.Info().Msg("bon worker stopping")
			return nil

		case n := <-w.listener.Notify:
			if n == nil {
				// The connection was re-established; anything missed
				// in between is only in the pending query.
				w.catchUp(ctx)
				continue
			}
			orderID, err := strconv.ParseInt(n.Extra, 10, 64)
			if err != nil {
				w.logger.Warn().Str("payload", n.Extra).Msg("ignoring malformed bon notification")
				continue
			}
			w.process(ctx, orderID)

		case <-idle.C:
			if err := w.listener.Ping(); err != nil {
				w.logger.Error().Err(err).Msg("listener ping failed")
			}
			w.catchUp(ctx)
		}
	}
}

// catchUp renders every bon still marked pending, page by page.
func (w *Worker) catchUp(ctx context.Context) {
	for {
		ids, err := w.generator.db.Bon().ListPendingBons(ctx, catchUpBatch)
		if err != nil {
			w.logger.Error().Err(err).Msg("failed to list pending bons")
			return
		}
		if len(ids) == 0 {
			return
		}

		w.logger.Info().Int("count", len(ids)).Msg("catching up on pending bons")
		for _, id := range ids {
			if ctx.Err() != nil {
				return
			}
			w.process(ctx, id)
		}

		if len(ids) < catchUpBatch {
			return
		}
	}
}

// process renders one order's receipt, suppressing recently seen ids.
func (w *Worker) process(ctx context.Context, orderID int64) {
	if w.seen.Contains(orderID) {
		return
	}

	start := time.Now()
	generated, err := w.generator.Generate(ctx, orderID)
	if err != nil {
		w.logger.Error().Err(err).Int64("order_id", orderID).Msg("bon generation failed")
		if !relationaldb.IsRetryable(err) {
			// Pinned to the bon row; a retry without operator action
			// would fail the same way.
			w.seen.Add(orderID, struct{}{})
		}
		return
	}

	w.seen.Add(orderID, struct{}{})
	if generated {
		w.logger.Info().
			Int64("order_id", orderID).
			Dur("duration", time.Since(start)).
			Msg("bon generated")
	}
}
