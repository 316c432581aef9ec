package application

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/internal/messagelog"
	"github.com/SARVESHVARADKAR123/RealChat/internal/notify"
	"github.com/SARVESHVARADKAR123/RealChat/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type SendMessageCommand struct {
	ConversationID string
	UserID         string
	// IdempotencyKey makes retries of the same send return the first result.
	IdempotencyKey string
	Type           string
	Content        string
	MediaURL       string
}

// SendMessage durably appends a message, initializes its delivery records,
// and then pushes it to live subscribers and notifies offline recipients.
func (s *Service) SendMessage(ctx context.Context, cmd SendMessageCommand) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "SendMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation_id", cmd.ConversationID),
		attribute.String("user_id", cmd.UserID),
	)

	log := observability.WithTrace(ctx, s.log)

	msgType, err := domain.ParseMessageType(cmd.Type)
	if err != nil {
		return nil, err
	}

	var (
		result     *domain.Message
		recipients []string
		replayed   bool
	)

	err = s.tx.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		result, recipients, replayed = nil, nil, false

		if cmd.IdempotencyKey != "" {
			owned, err := s.repo.TryInsertIdempotency(
				ctx, tx,
				cmd.IdempotencyKey,
				cmd.UserID,
				cmd.ConversationID,
				s.now().Add(s.opts.IdempotencyTTL),
			)
			if err != nil {
				return fmt.Errorf("failed to check idempotency: %w", err)
			}

			if !owned {
				payload, err := s.repo.GetIdempotencyForUpdate(ctx, tx, cmd.IdempotencyKey, cmd.UserID, cmd.ConversationID)
				if err != nil {
					return fmt.Errorf("failed to fetch idempotency response: %w", err)
				}
				if payload == nil {
					// The first attempt has not committed yet.
					return domain.ErrTransient
				}
				var msg domain.Message
				if err := json.Unmarshal(payload, &msg); err != nil {
					return fmt.Errorf("failed to unmarshal cached message: %w", err)
				}
				result = &msg
				replayed = true
				return nil
			}
		}

		appended, err := s.messages.Append(ctx, tx, messagelog.AppendInput{
			ConversationID: cmd.ConversationID,
			SenderID:       cmd.UserID,
			Type:           msgType,
			Content:        cmd.Content,
			MediaURL:       cmd.MediaURL,
		})
		if err != nil {
			return err
		}
		msg := appended.Message

		if err := s.deliveries.InitializeForMessage(ctx, tx, msg, appended.Recipients); err != nil {
			return err
		}

		if err := s.emit(ctx, tx, domain.NewMessageEvent(domain.EventMessageCreated, msg, s.now())); err != nil {
			return err
		}

		if cmd.IdempotencyKey != "" {
			payload, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("failed to marshal message for idempotency: %w", err)
			}
			if err := s.repo.UpdateIdempotencyResponse(ctx, tx, cmd.IdempotencyKey, cmd.UserID, cmd.ConversationID, payload); err != nil {
				return fmt.Errorf("failed to update idempotency response: %w", err)
			}
		}

		result = msg
		recipients = appended.Recipients
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("SendMessage failed",
			zap.String("conversation_id", cmd.ConversationID),
			zap.String("user_id", cmd.UserID),
			zap.Error(err),
		)
		return nil, transient(err)
	}

	if replayed {
		observability.IdempotentReplaysTotal.Inc()
		log.Info("SendMessage replayed",
			zap.String("conversation_id", cmd.ConversationID),
			zap.String("message_id", result.ID),
		)
		return result, nil
	}

	observability.MessagesSentTotal.WithLabelValues(string(result.Type)).Inc()
	log.Info("message sent",
		zap.String("conversation_id", result.ConversationID),
		zap.String("message_id", result.ID),
		zap.Int64("sequence", result.Sequence),
	)

	s.hub.Publish(ctx, domain.NewMessageEvent(domain.EventMessageCreated, result, s.now()))
	s.notifyOffline(ctx, result, recipients)

	return result, nil
}

// notifyOffline hands recipients without a live session to the notifier in
// the background. Failures are logged only.
func (s *Service) notifyOffline(ctx context.Context, msg *domain.Message, recipients []string) {
	var offline []string
	for _, userID := range recipients {
		if !s.hub.IsOnline(userID) {
			offline = append(offline, userID)
		}
	}
	if len(offline) == 0 {
		return
	}

	bgCtx := context.WithoutCancel(ctx)
	senderName := s.opts.Names.DisplayName(bgCtx, msg.SenderID)
	preview := msg.Preview()

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(bgCtx, s.opts.NotifyTimeout)
		defer cancel()

		for _, userID := range offline {
			err := s.notifier.Notify(ctx, notify.Notification{
				RecipientID:    userID,
				SenderID:       msg.SenderID,
				SenderName:     senderName,
				ConversationID: msg.ConversationID,
				MessageID:      msg.ID,
				Sequence:       msg.Sequence,
				Preview:        preview,
			})
			if err != nil {
				observability.NotificationsTotal.WithLabelValues("error").Inc()
				s.log.Warn("offline notification failed",
					zap.String("user_id", userID),
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
				continue
			}
			observability.NotificationsTotal.WithLabelValues("ok").Inc()
		}
	}()
}
