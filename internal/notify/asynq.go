package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TaskTypeMessage = "notify:message"
	DefaultQueue    = "notifications"
	defaultMaxRetry = 5
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqNotifier enqueues one task per recipient and message on a redis-backed
// asynq queue. Re-enqueueing the same pair is a no-op.
type AsynqNotifier struct {
	client   enqueuer
	queue    string
	maxRetry int
}

func NewAsynqNotifier(client *asynq.Client, queue string) *AsynqNotifier {
	return newAsynqNotifier(client, queue)
}

func newAsynqNotifier(client enqueuer, queue string) *AsynqNotifier {
	if queue == "" {
		queue = DefaultQueue
	}
	return &AsynqNotifier{client: client, queue: queue, maxRetry: defaultMaxRetry}
}

func (a *AsynqNotifier) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	task := asynq.NewTask(TaskTypeMessage, payload)
	_, err = a.client.EnqueueContext(ctx, task,
		asynq.Queue(a.queue),
		asynq.MaxRetry(a.maxRetry),
		asynq.TaskID(n.MessageID+":"+n.RecipientID),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

// Sink is where a dequeued notification goes, e.g. a push provider.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

// Processor consumes TaskTypeMessage tasks.
type Processor struct {
	sink Sink
	log  *zap.Logger
}

func NewProcessor(sink Sink, log *zap.Logger) *Processor {
	return &Processor{sink: sink, log: log}
}

func (p *Processor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var n Notification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		// Malformed payloads never succeed; do not retry them.
		return fmt.Errorf("invalid notification payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := p.sink.Deliver(ctx, n); err != nil {
		p.log.Warn("notification delivery failed",
			zap.String("user_id", n.RecipientID),
			zap.String("message_id", n.MessageID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Register mounts the processor on mux.
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.Handle(TaskTypeMessage, p)
}

// LogSink is the default Sink until a push provider is wired in.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Deliver(_ context.Context, n Notification) error {
	s.log.Info("push notification",
		zap.String("user_id", n.RecipientID),
		zap.String("sender_name", n.SenderName),
		zap.String("conversation_id", n.ConversationID),
		zap.String("preview", n.Preview),
	)
	return nil
}
