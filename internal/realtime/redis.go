package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/models"
)

const broadcastChannel = "chat:broadcast"

// NewRedis creates a new Redis client
func NewRedis(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// RedisRelay shares room broadcasts between gateway instances over Redis pub/sub
// and publishes per-recipient notifications.
type RedisRelay struct {
	rdb        *redis.Client
	instanceID string
	logger     *slog.Logger
}

type relayEnvelope struct {
	Origin  string          `json:"origin"`
	Rooms   []string        `json:"rooms"`
	Payload json.RawMessage `json:"payload"`
}

func NewRedisRelay(rdb *redis.Client, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{
		rdb:        rdb,
		instanceID: uuid.New().String(),
		logger:     logger.With("component", "redis_relay"),
	}
}

func (r *RedisRelay) Publish(ctx context.Context, rooms []string, payload []byte) error {
	b, err := json.Marshal(relayEnvelope{Origin: r.instanceID, Rooms: rooms, Payload: payload})
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, broadcastChannel, b).Err()
}

// Run delivers broadcasts from other instances to local members until ctx ends.
func (r *RedisRelay) Run(ctx context.Context, hub *Hub) error {
	sub := r.rdb.Subscribe(ctx, broadcastChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", broadcastChannel, err)
	}
	r.logger.Info("relay subscribed", "channel", broadcastChannel, "instance_id", r.instanceID)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(hub, []byte(m.Payload))
		}
	}
}

func (r *RedisRelay) handle(hub *Hub, raw []byte) {
	var env relayEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.logger.Warn("bad relay envelope", "error", err)
		return
	}
	if env.Origin == r.instanceID {
		return
	}
	hub.deliver(env.Rooms, env.Payload)
}

type notification struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	SenderID       uint      `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	Text           string    `json:"text"`
}

// PublishMessage notifies every participant side except the sender's own on
// "notifications:<role>:<id>".
func (r *RedisRelay) PublishMessage(ctx context.Context, conv *models.Conversation, msg *models.Message) error {
	payload, err := json.Marshal(notification{
		Type:           "chat_message",
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		Text:           msg.Content,
	})
	if err != nil {
		return err
	}
	for _, target := range recipientRooms(conv, models.Role(msg.SenderRole)) {
		if err := r.rdb.Publish(ctx, "notifications:"+target, payload).Err(); err != nil {
			return err
		}
	}
	return nil
}

func recipientRooms(conv *models.Conversation, sender models.Role) []string {
	var out []string
	if conv.OperatorID != nil && sender != models.RoleOperator && sender != models.RoleSupportOperator {
		out = append(out, fmt.Sprintf("operator:%d", *conv.OperatorID))
	}
	if sender != models.RoleAgent {
		out = append(out, fmt.Sprintf("agent:%d", conv.AgentID))
	}
	if conv.MerchantID != nil && sender != models.RoleMerchant {
		out = append(out, fmt.Sprintf("merchant:%d", *conv.MerchantID))
	}
	return out
}
