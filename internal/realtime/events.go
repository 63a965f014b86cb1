package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/identity"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/models"
)

// Inbound events.
const (
	EventJoinConversation = "joinConversation"
	EventSendMessage      = "sendMessage"
	EventGetConversations = "getConversations"
	EventGetMessages      = "getMessages"
	EventPing             = "ping"
)

// Outbound events.
const (
	EventJoinedRoom    = "joinedRoom"
	EventNewMessage    = "newMessage"
	EventConversations = "conversations"
	EventMessages      = "messages"
	EventError         = "error"
	EventPong          = "pong"
)

// SupportRoom is joined by every support-operator connection.
const SupportRoom = "role:support"

// inbound is a client frame. Token overrides the handshake token for this event.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Token string          `json:"token,omitempty"`
}

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type joinConversationReq struct {
	ConversationID string `json:"conversationId"`
}

type sendMessageReq struct {
	ConversationID string                  `json:"conversationId"`
	ReceiverID     uint                    `json:"receiverId"`
	Type           models.ConversationType `json:"type"`
	Content        string                  `json:"content"`
}

type getMessagesReq struct {
	ConversationID string `json:"conversationId"`
	Page           int    `json:"page"`
	Limit          int    `json:"limit"`
}

type joinedRoomResp struct {
	Room string `json:"room"`
}

type messagesResp struct {
	ConversationID uuid.UUID        `json:"conversationId"`
	Data           []models.Message `json:"data"`
}

type errorResp struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func ConversationRoom(id uuid.UUID) string {
	return "conversation:" + id.String()
}

// ParticipantRooms lists the personal groups of a conversation's members. Support
// staff get SUPERADMIN_AGENT traffic through SupportRoom.
func ParticipantRooms(conv *models.Conversation) []string {
	rooms := make([]string, 0, 4)
	if conv.OperatorID != nil {
		rooms = append(rooms, fmt.Sprintf("operator:%d", *conv.OperatorID))
	}
	rooms = append(rooms, fmt.Sprintf("agent:%d", conv.AgentID))
	if conv.MerchantID != nil {
		rooms = append(rooms, fmt.Sprintf("merchant:%d", *conv.MerchantID))
	}
	if conv.Type == models.ConversationSuperadminAgent {
		rooms = append(rooms, SupportRoom)
	}
	return rooms
}

// PersonalRooms lists the groups a connection joins once its claims are known.
// An operator without an operator id claim stands for the platform operator.
func PersonalRooms(c *identity.Claims, platformOperatorID uint) []string {
	rooms := []string{fmt.Sprintf("user:%d", c.SubjectID)}
	switch {
	case c.OperatorID != nil:
		rooms = append(rooms, fmt.Sprintf("operator:%d", *c.OperatorID))
	case c.Role == models.RoleOperator:
		rooms = append(rooms, fmt.Sprintf("operator:%d", platformOperatorID))
	}
	if c.AgentID != nil {
		rooms = append(rooms, fmt.Sprintf("agent:%d", *c.AgentID))
	}
	if c.MerchantID != nil {
		rooms = append(rooms, fmt.Sprintf("merchant:%d", *c.MerchantID))
	}
	if c.Role == models.RoleSupportOperator {
		rooms = append(rooms, SupportRoom)
	}
	return rooms
}
