package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/chat"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/identity"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/models"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/store"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/utils"
)

const testSecret = "gateway-test-secret"

func ptr(v uint) *uint { return &v }

type recordingSink struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (s *recordingSink) PublishMessage(_ context.Context, _ *models.Conversation, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg.Content)
	return s.err
}

func (s *recordingSink) contents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

type harness struct {
	gw  *Gateway
	hub *Hub
	st  *store.MemoryStore
	svc *chat.Service
}

func newHarness(t *testing.T, sinks ...MessageSink) *harness {
	t.Helper()
	st := store.NewMemoryStore()
	st.PutUser(models.User{ID: 700, Name: "Agent Seven", Role: models.RoleAgent})
	st.PutUser(models.User{ID: 4200, Name: "Warung 42", Role: models.RoleMerchant})
	st.PutAgent(models.Agent{ID: 7, UserID: 700, Name: "Agent Seven"})
	st.PutAgent(models.Agent{ID: 8, UserID: 800, Name: "Agent Eight"})
	st.PutMerchant(models.Merchant{ID: 42, UserID: 4200, AgentID: ptr(7), Name: "Warung 42"})

	svc := chat.NewService(st, 1, discardLogger())
	hub := NewHub(discardLogger())
	gw := NewGateway(svc, identity.NewJWTResolver(testSecret), hub, discardLogger(), sinks...)
	return &harness{gw: gw, hub: hub, st: st, svc: svc}
}

func token(t *testing.T, c utils.Claims) string {
	t.Helper()
	tok, err := utils.SignJWT(testSecret, c, 60)
	require.NoError(t, err)
	return tok
}

func agentToken(t *testing.T, agentID uint) string {
	return token(t, utils.Claims{UserID: agentID * 100, Role: "agent", AgentID: ptr(agentID)})
}

func merchantToken(t *testing.T, merchantID uint) string {
	return token(t, utils.Claims{UserID: merchantID * 100, Role: "merchant", MerchantID: ptr(merchantID)})
}

func (h *harness) connect(t *testing.T, tok string) (*Connection, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	c := NewConnection(uuid.NewString(), tr, tok)
	h.gw.Connect(context.Background(), c)
	t.Cleanup(func() { h.gw.Disconnect(c) })
	return c, tr
}

func (h *harness) emit(t *testing.T, c *Connection, event string, data interface{}, tok string) {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{"event": event, "data": data, "token": tok})
	require.NoError(t, err)
	h.gw.HandleFrame(context.Background(), c, raw)
}

// settle round-trips a ping so every frame queued before it has been written.
func (h *harness) settle(t *testing.T, c *Connection, tr *fakeTransport) {
	t.Helper()
	before := countEvents(tr, EventPong)
	h.emit(t, c, EventPing, nil, "")
	require.Eventually(t, func() bool { return countEvents(tr, EventPong) > before }, time.Second, 5*time.Millisecond)
}

func countEvents(tr *fakeTransport, event string) int {
	n := 0
	for _, fr := range tr.events() {
		if fr.Event == event {
			n++
		}
	}
	return n
}

func lastEvent(t *testing.T, tr *fakeTransport, event string) frame {
	t.Helper()
	for i := len(tr.events()) - 1; i >= 0; i-- {
		if fr := tr.events()[i]; fr.Event == event {
			return fr
		}
	}
	t.Fatalf("no %q frame", event)
	return frame{}
}

func errorOf(t *testing.T, tr *fakeTransport) errorResp {
	t.Helper()
	var e errorResp
	require.NoError(t, json.Unmarshal(lastEvent(t, tr, EventError).Data, &e))
	return e
}

func TestGateway_ConnectWithoutTokenStaysOpen(t *testing.T) {
	h := newHarness(t)
	c, tr := h.connect(t, "")

	assert.Equal(t, StateUnauthenticated, c.State())
	assert.Equal(t, 1, h.hub.ConnectionCount())

	h.settle(t, c, tr)
}

func TestGateway_ConnectWithBadTokenStaysOpen(t *testing.T) {
	h := newHarness(t)
	c, tr := h.connect(t, "not-a-jwt")

	assert.Equal(t, StateUnauthenticated, c.State())
	h.settle(t, c, tr)
}

func TestGateway_ConnectWithTokenJoinsPersonalRooms(t *testing.T) {
	h := newHarness(t)

	agent, _ := h.connect(t, agentToken(t, 7))
	assert.Equal(t, StateIdentified, agent.State())
	assert.True(t, h.hub.InRoom(agent, "user:700"))
	assert.True(t, h.hub.InRoom(agent, "agent:7"))

	support, _ := h.connect(t, "Bearer "+token(t, utils.Claims{UserID: 200, Role: "support_operator"}))
	assert.True(t, h.hub.InRoom(support, SupportRoom))

	operator, _ := h.connect(t, token(t, utils.Claims{UserID: 100, Role: "operator"}))
	assert.True(t, h.hub.InRoom(operator, "operator:1"))
}

func TestGateway_ProtectedEventWithoutTokenIsRejected(t *testing.T) {
	h := newHarness(t)
	c, tr := h.connect(t, "")

	h.emit(t, c, EventGetConversations, nil, "")
	h.settle(t, c, tr)

	assert.Equal(t, "unauthorized", errorOf(t, tr).Code)
	assert.Equal(t, StateUnauthenticated, c.State())
	assert.Equal(t, 1, h.hub.ConnectionCount())
}

func TestGateway_EventTokenIdentifiesConnection(t *testing.T) {
	h := newHarness(t)
	c, tr := h.connect(t, "")

	h.emit(t, c, EventGetConversations, nil, agentToken(t, 7))
	h.settle(t, c, tr)

	assert.Equal(t, 1, countEvents(tr, EventConversations))
	assert.Equal(t, StateIdentified, c.State())
	assert.True(t, h.hub.InRoom(c, "agent:7"))
}

func TestGateway_EveryEventReverifiesToken(t *testing.T) {
	h := newHarness(t)
	c, tr := h.connect(t, agentToken(t, 7))
	require.Equal(t, StateIdentified, c.State())

	expired, err := utils.SignJWT(testSecret, utils.Claims{UserID: 700, Role: "agent", AgentID: ptr(7)}, -1)
	require.NoError(t, err)

	h.emit(t, c, EventGetConversations, nil, expired)
	h.settle(t, c, tr)

	assert.Equal(t, "unauthorized", errorOf(t, tr).Code)
	assert.Zero(t, countEvents(tr, EventConversations))
}

func TestGateway_MalformedAndUnknownFramesKeepConnection(t *testing.T) {
	h := newHarness(t)
	c, tr := h.connect(t, agentToken(t, 7))

	h.gw.HandleFrame(context.Background(), c, []byte("{not json"))
	h.settle(t, c, tr)
	assert.Equal(t, "invalid_request", errorOf(t, tr).Code)

	h.emit(t, c, "deleteEverything", nil, "")
	h.settle(t, c, tr)
	assert.Equal(t, 2, countEvents(tr, EventError))
	assert.Equal(t, StateIdentified, c.State())
}

func TestGateway_ConcurrentFirstMessagesShareConversation(t *testing.T) {
	h := newHarness(t)
	agent, agentTr := h.connect(t, agentToken(t, 7))
	merchant, merchantTr := h.connect(t, merchantToken(t, 42))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.emit(t, agent, EventSendMessage, map[string]interface{}{
			"receiverId": 42, "type": models.ConversationAgentMerchant, "content": "from agent",
		}, "")
	}()
	go func() {
		defer wg.Done()
		h.emit(t, merchant, EventSendMessage, map[string]interface{}{
			"receiverId": 7, "type": models.ConversationAgentMerchant, "content": "from merchant",
		}, "")
	}()
	wg.Wait()
	h.settle(t, agent, agentTr)
	h.settle(t, merchant, merchantTr)

	convs, err := h.st.ListConversations(context.Background(), store.Scope{Category: models.CategoryChat})
	require.NoError(t, err)
	require.Len(t, convs, 1)

	msgs, err := h.st.ListMessages(context.Background(), convs[0].ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	assert.Equal(t, 2, countEvents(agentTr, EventNewMessage))
	assert.Equal(t, 2, countEvents(merchantTr, EventNewMessage))
	assert.Zero(t, countEvents(agentTr, EventError))
}

func TestGateway_NewMessageFansOutOncePerConnection(t *testing.T) {
	sink := &recordingSink{}
	h := newHarness(t, sink)
	conv, err := h.svc.FindOrCreate(context.Background(), store.Pair{
		Type: models.ConversationAgentMerchant, AgentID: 7, MerchantID: ptr(42),
	})
	require.NoError(t, err)

	agent, agentTr := h.connect(t, agentToken(t, 7))
	merchant, merchantTr := h.connect(t, merchantToken(t, 42))
	other, otherTr := h.connect(t, agentToken(t, 8))

	h.emit(t, agent, EventJoinConversation, map[string]string{"conversationId": conv.ID.String()}, "")
	h.settle(t, agent, agentTr)
	var joined joinedRoomResp
	require.NoError(t, json.Unmarshal(lastEvent(t, agentTr, EventJoinedRoom).Data, &joined))
	assert.Equal(t, ConversationRoom(conv.ID), joined.Room)

	h.emit(t, merchant, EventSendMessage, map[string]string{"conversationId": conv.ID.String(), "content": "stok habis"}, "")
	h.settle(t, agent, agentTr)
	h.settle(t, merchant, merchantTr)
	h.settle(t, other, otherTr)

	assert.Equal(t, 1, countEvents(agentTr, EventNewMessage), "agent is in two target rooms but gets one copy")
	assert.Equal(t, 1, countEvents(merchantTr, EventNewMessage))
	assert.Zero(t, countEvents(otherTr, EventNewMessage))

	var msg models.Message
	require.NoError(t, json.Unmarshal(lastEvent(t, agentTr, EventNewMessage).Data, &msg))
	assert.Equal(t, "stok habis", msg.Content)
	assert.Equal(t, "Warung 42", msg.SenderName)

	assert.Equal(t, []string{"stok habis"}, sink.contents())
}

func TestGateway_JoinConversationRequiresParticipation(t *testing.T) {
	h := newHarness(t)
	conv, err := h.svc.FindOrCreate(context.Background(), store.Pair{
		Type: models.ConversationSuperadminAgent, OperatorID: ptr(1), AgentID: 7,
	})
	require.NoError(t, err)

	merchant, tr := h.connect(t, merchantToken(t, 42))
	h.emit(t, merchant, EventJoinConversation, map[string]string{"conversationId": conv.ID.String()}, "")
	h.settle(t, merchant, tr)

	assert.Equal(t, "forbidden", errorOf(t, tr).Code)
	assert.False(t, h.hub.InRoom(merchant, ConversationRoom(conv.ID)))

	h.emit(t, merchant, EventJoinConversation, map[string]string{"conversationId": "nope"}, "")
	h.settle(t, merchant, tr)
	assert.Equal(t, "invalid_request", errorOf(t, tr).Code)
}

func TestGateway_SupportStaffSeePlatformThreads(t *testing.T) {
	h := newHarness(t)
	support, supportTr := h.connect(t, token(t, utils.Claims{UserID: 200, Role: "support_operator"}))
	agent, agentTr := h.connect(t, agentToken(t, 7))

	h.emit(t, agent, EventSendMessage, map[string]interface{}{
		"receiverId": 1, "type": models.ConversationSuperadminAgent, "content": "need help",
	}, "")
	h.settle(t, agent, agentTr)
	h.settle(t, support, supportTr)

	assert.Equal(t, 1, countEvents(supportTr, EventNewMessage))
}

func TestGateway_GetMessagesRepliesToSenderOnly(t *testing.T) {
	h := newHarness(t)
	conv, err := h.svc.FindOrCreate(context.Background(), store.Pair{
		Type: models.ConversationAgentMerchant, AgentID: 7, MerchantID: ptr(42),
	})
	require.NoError(t, err)
	_, _, err = h.svc.SendMessage(context.Background(), conv.ID, &identity.Claims{SubjectID: 700, Role: models.RoleAgent, AgentID: ptr(7)}, "halo")
	require.NoError(t, err)

	merchant, merchantTr := h.connect(t, merchantToken(t, 42))
	agent, agentTr := h.connect(t, agentToken(t, 7))

	h.emit(t, merchant, EventGetMessages, map[string]interface{}{"conversationId": conv.ID.String(), "page": 1, "limit": 20}, "")
	h.settle(t, merchant, merchantTr)
	h.settle(t, agent, agentTr)

	var resp messagesResp
	require.NoError(t, json.Unmarshal(lastEvent(t, merchantTr, EventMessages).Data, &resp))
	assert.Equal(t, conv.ID, resp.ConversationID)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "halo", resp.Data[0].Content)
	assert.Zero(t, countEvents(agentTr, EventMessages))
}

func TestGateway_SendMessageValidation(t *testing.T) {
	h := newHarness(t)
	c, tr := h.connect(t, agentToken(t, 7))

	h.emit(t, c, EventSendMessage, map[string]string{"content": "orphan"}, "")
	h.settle(t, c, tr)
	assert.Equal(t, "invalid_request", errorOf(t, tr).Code)

	h.emit(t, c, EventSendMessage, map[string]interface{}{"receiverId": 42, "type": models.ConversationAgentMerchant, "content": " "}, "")
	h.settle(t, c, tr)
	assert.Equal(t, "invalid_request", errorOf(t, tr).Code)
}

func TestGateway_FailingSinkDoesNotBlockOthers(t *testing.T) {
	broken := &recordingSink{err: errors.New("broker down")}
	healthy := &recordingSink{}
	h := newHarness(t, broken, healthy)
	conv, err := h.svc.FindOrCreate(context.Background(), store.Pair{
		Type: models.ConversationAgentMerchant, AgentID: 7, MerchantID: ptr(42),
	})
	require.NoError(t, err)

	msg, updated, err := h.svc.SendMessage(context.Background(), conv.ID, &identity.Claims{SubjectID: 4200, Role: models.RoleMerchant, MerchantID: ptr(42)}, "x")
	require.NoError(t, err)
	h.gw.PublishMessage(context.Background(), updated, msg)

	assert.Equal(t, []string{"x"}, broken.contents())
	assert.Equal(t, []string{"x"}, healthy.contents())
}
