// Package application is the messaging orchestrator: it sequences the
// conversation store, the message log, delivery tracking, fan-out and
// offline notification behind one API.
package application

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/conversation"
	"github.com/SARVESHVARADKAR123/RealChat/internal/delivery"
	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/internal/fanout"
	"github.com/SARVESHVARADKAR123/RealChat/internal/messagelog"
	"github.com/SARVESHVARADKAR123/RealChat/internal/notify"
	"github.com/SARVESHVARADKAR123/RealChat/internal/repository"
	"github.com/SARVESHVARADKAR123/RealChat/internal/tx"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/SARVESHVARADKAR123/RealChat/internal/application")

type Options struct {
	// OutboxEnabled writes every durable event to the outbox in the same tx.
	OutboxEnabled  bool
	IdempotencyTTL time.Duration
	NotifyTimeout  time.Duration
	Names          notify.NameResolver
}

type Service struct {
	repo          repository.Repository
	tx            tx.Transactor
	conversations *conversation.Store
	messages      *messagelog.Log
	deliveries    *delivery.Tracker
	hub           *fanout.Hub
	notifier      notify.Notifier
	log           *zap.Logger
	opts          Options
	now           func() time.Time

	bg sync.WaitGroup
}

func New(
	repo repository.Repository,
	transactor tx.Transactor,
	hub *fanout.Hub,
	notifier notify.Notifier,
	log *zap.Logger,
	opts Options,
) *Service {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 5 * time.Second
	}
	if opts.Names == nil {
		opts.Names = notify.UserIDNames{}
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}

	return &Service{
		repo:          repo,
		tx:            transactor,
		conversations: conversation.NewStore(repo, transactor, log),
		messages:      messagelog.New(repo),
		deliveries:    delivery.NewTracker(repo),
		hub:           hub,
		notifier:      notifier,
		log:           log,
		opts:          opts,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Wait blocks until background notifications have finished.
func (s *Service) Wait() {
	s.bg.Wait()
}

// emit writes ev to the outbox inside tx when the outbox is enabled.
func (s *Service) emit(ctx context.Context, tx *sql.Tx, ev domain.Event) error {
	if !s.opts.OutboxEnabled || !ev.Durable() {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	if err := s.repo.InsertOutbox(ctx, tx, "conversation", ev.ConversationID, string(ev.Type), payload); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}
	return nil
}

// transient marks storage and infrastructure failures as retryable. Domain
// errors and caller cancellation or deadline pass through unchanged.
func transient(err error) error {
	if err == nil || domain.IsKnown(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrTransient, err)
}
