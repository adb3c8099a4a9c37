package service

import (
	"context"
	"encoding/json"

	"github.com/walrusgate/contentgate/cmd/contentgate/models"
	"github.com/walrusgate/contentgate/common/logger"
	"github.com/walrusgate/contentgate/common/queue"
)

// Event topics
const (
	TopicPurchaseRecorded = "purchase.recorded"
	TopicDuplicatePayment = "purchase.duplicate_payment"
)

func publishEvent(ctx context.Context, pub Publisher, log *logger.Logger, topic string, event *models.PurchaseEvent) {
	if pub == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Warn("failed to marshal event", "topic", topic, "error", err)
		return
	}
	if err := pub.Publish(ctx, topic, event.UploadID.String(), data); err != nil {
		log.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

// SubscribeAudit logs every purchase event. Duplicate payments are logged
// at WARN since the losing payer has been charged without a new purchase.
func SubscribeAudit(ctx context.Context, q queue.Queue, log *logger.Logger) error {
	handler := func(topic string) queue.MessageHandler {
		return func(ctx context.Context, key string, value []byte) error {
			var event models.PurchaseEvent
			if err := json.Unmarshal(value, &event); err != nil {
				return err
			}

			args := []any{
				"topic", topic,
				"upload_id", event.UploadID,
				"buyer", event.BuyerAddress,
				"payment_proof", event.PaymentProof,
				"amount", event.Amount,
			}
			if topic == TopicDuplicatePayment {
				log.Warn("audit: duplicate payment", args...)
			} else {
				log.Info("audit: purchase recorded", args...)
			}
			return nil
		}
	}

	for _, topic := range []string{TopicPurchaseRecorded, TopicDuplicatePayment} {
		if err := q.Subscribe(ctx, topic, handler(topic)); err != nil {
			return err
		}
	}
	return nil
}
