package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/chat"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/identity"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/models"
)

// ConversationService is the slice of chat.Service the gateway dispatches to.
type ConversationService interface {
	PlatformOperatorID() uint
	Conversation(ctx context.Context, id uuid.UUID, c *identity.Claims, category models.ConversationCategory) (*models.Conversation, error)
	ResolveConversation(ctx context.Context, c *identity.Claims, receiverID uint, typ models.ConversationType) (*models.Conversation, error)
	SendMessage(ctx context.Context, id uuid.UUID, c *identity.Claims, content string) (*models.Message, *models.Conversation, error)
	ListForCaller(ctx context.Context, c *identity.Claims) ([]models.Conversation, error)
	GetMessages(ctx context.Context, id uuid.UUID, c *identity.Claims, page, pageSize int) ([]models.Message, error)
}

// MessageSink receives every persisted message after it has been pushed to rooms.
type MessageSink interface {
	PublishMessage(ctx context.Context, conv *models.Conversation, msg *models.Message) error
}

// Gateway owns duplex connections. Connections open without proof of identity;
// every protected event re-verifies a token before it runs.
type Gateway struct {
	svc      ConversationService
	resolver identity.Resolver
	hub      *Hub
	sinks    []MessageSink
	logger   *slog.Logger
}

func NewGateway(svc ConversationService, resolver identity.Resolver, hub *Hub, logger *slog.Logger, sinks ...MessageSink) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		svc:      svc,
		resolver: resolver,
		hub:      hub,
		sinks:    sinks,
		logger:   logger.With("component", "gateway"),
	}
}

func (g *Gateway) Hub() *Hub { return g.hub }

// Serve runs one websocket connection until the client goes away. Mount it with
// websocket.New.
func (g *Gateway) Serve(c *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := NewConnection(uuid.New().String(), c, handshakeToken(c))
	g.Connect(ctx, conn)
	defer g.Disconnect(conn)

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			g.logger.Debug("websocket read ended", "conn_id", conn.ID, "error", err)
			return
		}
		g.HandleFrame(ctx, conn, data)
	}
}

func handshakeToken(c *websocket.Conn) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	if t := c.Headers("Authorization"); t != "" {
		return identity.StripBearer(t)
	}
	if t, ok := c.Locals("authToken").(string); ok {
		return t
	}
	return ""
}

// Connect registers conn and tries a soft authentication with the handshake
// token. A bad or missing token leaves the connection open and unauthenticated.
func (g *Gateway) Connect(ctx context.Context, conn *Connection) {
	g.hub.Register(conn)
	go conn.writePump(g.logger)

	token := conn.HandshakeToken()
	if token == "" {
		g.logger.Debug("connection opened without token", "conn_id", conn.ID)
		return
	}
	claims, err := g.resolver.Resolve(ctx, token)
	if err != nil {
		g.logger.Debug("soft authentication failed", "conn_id", conn.ID, "error", err)
		return
	}
	g.identify(conn, claims, token)
}

// Disconnect releases group membership. Nothing is persisted.
func (g *Gateway) Disconnect(conn *Connection) {
	g.hub.Unregister(conn)
	g.logger.Debug("connection closed", "conn_id", conn.ID)
}

func (g *Gateway) identify(conn *Connection, claims *identity.Claims, token string) {
	if !conn.identify(claims, token) {
		return
	}
	for _, room := range PersonalRooms(claims, g.svc.PlatformOperatorID()) {
		g.hub.Join(conn, room)
	}
	g.logger.Info("connection identified",
		"conn_id", conn.ID,
		"user_id", claims.SubjectID,
		"role", claims.Role)
}

// HandleFrame decodes one client frame and dispatches it. Failures are reported
// to this connection only.
func (g *Gateway) HandleFrame(ctx context.Context, conn *Connection, data []byte) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil || in.Event == "" {
		g.fail(conn, fmt.Errorf("malformed event: %w", chat.ErrInvalidRequest))
		return
	}
	g.Dispatch(ctx, conn, in)
}

type handlerFunc func(ctx context.Context, conn *Connection, claims *identity.Claims, data json.RawMessage) error

func (g *Gateway) Dispatch(ctx context.Context, conn *Connection, in inbound) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("panic while handling event", "conn_id", conn.ID, "event", in.Event, "panic", r)
			g.hub.Send(conn, EventError, errorResp{Message: "internal server error", Code: "internal"})
		}
	}()

	var h handlerFunc
	switch in.Event {
	case EventPing:
		g.hub.Send(conn, EventPong, struct{}{})
		return
	case EventJoinConversation:
		h = g.joinConversation
	case EventSendMessage:
		h = g.sendMessage
	case EventGetConversations:
		h = g.getConversations
	case EventGetMessages:
		h = g.getMessages
	default:
		g.fail(conn, fmt.Errorf("unknown event %q: %w", in.Event, chat.ErrInvalidRequest))
		return
	}

	claims, err := g.authenticate(ctx, conn, in.Token)
	if err != nil {
		g.fail(conn, err)
		return
	}
	if err := h(identity.WithClaims(ctx, claims), conn, claims, in.Data); err != nil {
		g.fail(conn, err)
	}
}

// authenticate is the per-event guard: it verifies the event token, or the
// connection's token, on every protected event.
func (g *Gateway) authenticate(ctx context.Context, conn *Connection, eventToken string) (*identity.Claims, error) {
	token := identity.StripBearer(eventToken)
	if token == "" {
		token = conn.HandshakeToken()
	}
	if token == "" {
		return nil, fmt.Errorf("missing token: %w", chat.ErrUnauthorized)
	}
	claims, err := g.resolver.Resolve(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, chat.ErrUnauthorized)
	}
	g.identify(conn, claims, token)
	return claims, nil
}

func (g *Gateway) joinConversation(ctx context.Context, conn *Connection, claims *identity.Claims, data json.RawMessage) error {
	var req joinConversationReq
	if err := decode(data, &req); err != nil {
		return err
	}
	id, err := parseConversationID(req.ConversationID)
	if err != nil {
		return err
	}
	conv, err := g.svc.Conversation(ctx, id, claims, models.CategoryChat)
	if err != nil {
		return err
	}
	room := ConversationRoom(conv.ID)
	g.hub.Join(conn, room)
	g.hub.Send(conn, EventJoinedRoom, joinedRoomResp{Room: room})
	return nil
}

func (g *Gateway) sendMessage(ctx context.Context, conn *Connection, claims *identity.Claims, data json.RawMessage) error {
	var req sendMessageReq
	if err := decode(data, &req); err != nil {
		return err
	}

	var convID uuid.UUID
	if req.ConversationID != "" {
		id, err := parseConversationID(req.ConversationID)
		if err != nil {
			return err
		}
		convID = id
	} else {
		if req.ReceiverID == 0 || req.Type == "" {
			return fmt.Errorf("conversationId or receiverId and type are required: %w", chat.ErrInvalidRequest)
		}
		conv, err := g.svc.ResolveConversation(ctx, claims, req.ReceiverID, req.Type)
		if err != nil {
			return err
		}
		convID = conv.ID
	}

	msg, conv, err := g.svc.SendMessage(ctx, convID, claims, req.Content)
	if err != nil {
		return err
	}
	g.PublishMessage(ctx, conv, msg)
	return nil
}

func (g *Gateway) getConversations(ctx context.Context, conn *Connection, claims *identity.Claims, _ json.RawMessage) error {
	convs, err := g.svc.ListForCaller(ctx, claims)
	if err != nil {
		return err
	}
	g.hub.Send(conn, EventConversations, convs)
	return nil
}

func (g *Gateway) getMessages(ctx context.Context, conn *Connection, claims *identity.Claims, data json.RawMessage) error {
	var req getMessagesReq
	if err := decode(data, &req); err != nil {
		return err
	}
	id, err := parseConversationID(req.ConversationID)
	if err != nil {
		return err
	}
	msgs, err := g.svc.GetMessages(ctx, id, claims, req.Page, req.Limit)
	if err != nil {
		return err
	}
	g.hub.Send(conn, EventMessages, messagesResp{ConversationID: id, Data: msgs})
	return nil
}

// PublishMessage pushes a persisted message to the conversation room and to every
// participant's personal group, then hands it to the configured sinks.
func (g *Gateway) PublishMessage(ctx context.Context, conv *models.Conversation, msg *models.Message) {
	rooms := append([]string{ConversationRoom(conv.ID)}, ParticipantRooms(conv)...)
	g.hub.Emit(ctx, rooms, EventNewMessage, msg)

	for _, sink := range g.sinks {
		if err := sink.PublishMessage(ctx, conv, msg); err != nil {
			g.logger.Warn("message sink failed",
				"conversation_id", conv.ID,
				"message_id", msg.ID,
				"error", err)
		}
	}
}

func (g *Gateway) fail(conn *Connection, err error) {
	code := chat.Code(err)
	message := err.Error()
	if code == "internal" {
		g.logger.Error("event failed", "conn_id", conn.ID, "error", err)
		message = "internal server error"
	}
	g.hub.Send(conn, EventError, errorResp{Message: message, Code: code})
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, chat.ErrInvalidRequest)
	}
	return nil
}

func parseConversationID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("conversationId %q: %w", raw, chat.ErrInvalidRequest)
	}
	return id, nil
}
