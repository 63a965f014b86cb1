package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/models"
)

// MessageEvent is the record written to the message topic for downstream services.
type MessageEvent struct {
	Type           string                      `json:"type"`
	MessageID      uuid.UUID                   `json:"message_id"`
	ConversationID uuid.UUID                   `json:"conversation_id"`
	Kind           models.ConversationType     `json:"conversation_type"`
	Category       models.ConversationCategory `json:"category"`
	OperatorID     *uint                       `json:"operator_id,omitempty"`
	AgentID        uint                        `json:"agent_id"`
	MerchantID     *uint                       `json:"merchant_id,omitempty"`
	SenderID       uint                        `json:"sender_id"`
	SenderRole     string                      `json:"sender_role"`
	Content        string                      `json:"content"`
	ImageURL       *string                     `json:"image_url,omitempty"`
	CreatedAt      time.Time                   `json:"created_at"`
}

func NewMessageEvent(conv *models.Conversation, msg *models.Message) MessageEvent {
	return MessageEvent{
		Type:           "chat_message",
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		Kind:           conv.Type,
		Category:       conv.Category,
		OperatorID:     conv.OperatorID,
		AgentID:        conv.AgentID,
		MerchantID:     conv.MerchantID,
		SenderID:       msg.SenderID,
		SenderRole:     msg.SenderRole,
		Content:        msg.Content,
		ImageURL:       msg.ImageURL,
		CreatedAt:      msg.CreatedAt,
	}
}

// KafkaProducer writes message events keyed by conversation id, so each
// conversation stays ordered within its partition.
type KafkaProducer struct {
	Writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: 1,
	}
	return &KafkaProducer{Writer: writer}
}

func (k *KafkaProducer) PublishMessage(ctx context.Context, conv *models.Conversation, msg *models.Message) error {
	data, err := json.Marshal(NewMessageEvent(conv, msg))
	if err != nil {
		return err
	}
	return k.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(conv.ID.String()),
		Value: data,
	})
}

func (k *KafkaProducer) Close() error {
	return k.Writer.Close()
}
