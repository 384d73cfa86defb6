package scheduler

import (
	"context"
	"fmt"

	"salesflow_backend/internal/deals/domain"
	"salesflow_backend/internal/deals/repository"
	"salesflow_backend/platform/config"
	"salesflow_backend/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DealWriter is the write side of the durable deal store. Upsert must
// ignore stale revisions and deleted ids; *repository.Repo does.
type DealWriter interface {
	Upsert(ctx context.Context, deal domain.Deal) error
	Delete(ctx context.Context, id string) error
}

// Worker replays deal writes that failed on the API's hot path.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	deals  DealWriter
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, pool *pgxpool.Pool, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		deals:  repository.New(pool),
		log:    log,
	}

	mux.HandleFunc(TaskDealPersistRetry, w.handlePersistRetry)
	mux.HandleFunc(TaskDealDeleteRetry, w.handleDeleteRetry)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// handlePersistRetry replays the queued upsert. The store drops it when the
// row has moved past the queued revision or the deal was deleted since.
func (w *Worker) handlePersistRetry(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseDealPersistPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	deal := payload.Deal
	if deal.ID == "" {
		return fmt.Errorf("persist retry without deal id: %w", asynq.SkipRetry)
	}

	if err := w.deals.Upsert(ctx, deal); err != nil {
		return err
	}
	w.log.Info("persist retry applied", "deal_id", deal.ID, "revision", deal.Revision)
	return nil
}

func (w *Worker) handleDeleteRetry(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseDealDeletePayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if payload.DealID == "" {
		return fmt.Errorf("delete retry without deal id: %w", asynq.SkipRetry)
	}

	if err := w.deals.Delete(ctx, payload.DealID); err != nil {
		return err
	}
	w.log.Info("delete retry applied", "deal_id", payload.DealID)
	return nil
}
