package calls

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-receptionist/internal/telephony"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSlots struct {
	mu       sync.Mutex
	limit    int
	held     map[string]bool
	err      error
	released []string
}

func (f *fakeSlots) Acquire(_ context.Context, _, callID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if len(f.held) >= f.limit {
		return false, nil
	}
	f.held[callID] = true
	return true, nil
}

func (f *fakeSlots) Release(_ context.Context, _, callID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, callID)
	f.released = append(f.released, callID)
	return nil
}

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestRegistry(repo Repository, slots SlotLimiter) *Registry {
	r := NewRegistry(repo, slots, RegistryConfig{
		ConvAIURL:        "wss://api.elevenlabs.io/v1/convai/conversation",
		APIKey:           "el-key",
		AudioContentType: "audio/l16;rate=16000",
		PublicBaseURL:    "https://api.example.com/",
		ConnectingTTL:    10 * time.Minute,
	})
	r.now = func() time.Time { return testNow }
	n := 0
	r.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return r
}

func seededRepo() *MemoryRepo {
	repo := NewMemoryRepo()
	repo.AddPhoneNumber(PhoneNumber{PhoneNumber: "+15550001111", TenantID: "t1", Status: PhoneNumberActive})
	repo.AddPhoneNumber(PhoneNumber{PhoneNumber: "+15550002222", TenantID: "t2", Status: PhoneNumberActive})
	repo.AddPhoneNumber(PhoneNumber{PhoneNumber: "+15550003333", TenantID: "t1", Status: "inactive"})
	repo.AddAgent(AgentConfiguration{TenantID: "t1", ExternalAgentID: "agent-1", IsActive: true})
	return repo
}

func inbound(to string) telephony.InboundCallRequest {
	return telephony.InboundCallRequest{ProviderCallID: "vonage-uuid", From: "+15559998888", To: to}
}

func TestRouteInboundCall_Connects(t *testing.T) {
	repo := seededRepo()
	r := newTestRegistry(repo, nil)
	ctx := context.Background()

	res, err := r.RouteInboundCall(ctx, inbound("+15550001111"))
	require.NoError(t, err)
	assert.Equal(t, telephony.InboundCallActionConnect, res.Action)
	assert.Equal(t, "t1", res.TenantID)
	require.NotNil(t, res.Bridge)
	assert.Equal(t, "wss://api.elevenlabs.io/v1/convai/conversation?agent_id=agent-1", res.Bridge.URI)
	assert.Equal(t, "Bearer el-key", res.Bridge.Headers["Authorization"])
	assert.Equal(t, "t1", res.Bridge.Headers["X-Tenant-ID"])
	assert.Equal(t, res.CallID, res.Bridge.Headers["X-Call-ID"])
	assert.Equal(t, "https://api.example.com/webhooks/vonage/events?call_id="+res.CallID, res.EventURL)

	c, ok, err := repo.GetCall(ctx, "t1", res.CallID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, CallStatusConnecting, c.Status)
	assert.Equal(t, "vonage-uuid", c.ExternalCallID)
	assert.Empty(t, c.ExternalConversationID)
}

func TestRouteInboundCall_Rejections(t *testing.T) {
	repo := seededRepo()
	r := newTestRegistry(repo, nil)
	ctx := context.Background()

	cases := map[string]string{
		"+15550009999": telephony.MessageNotInService, // unknown
		"+15550003333": telephony.MessageNotInService, // inactive
		"+15550002222": telephony.MessageUnavailable,  // no agent
	}
	for to, want := range cases {
		res, err := r.RouteInboundCall(ctx, inbound(to))
		require.NoError(t, err, to)
		assert.Equal(t, telephony.InboundCallActionTalk, res.Action, to)
		assert.Equal(t, want, res.Message, to)
	}

	for _, tenant := range []string{"t1", "t2"} {
		calls, err := repo.ListCalls(ctx, tenant, ListFilter{})
		require.NoError(t, err)
		assert.Empty(t, calls, "no call rows for rejected calls")
	}
}

func TestRouteInboundCall_SlotLimit(t *testing.T) {
	repo := seededRepo()
	slots := &fakeSlots{limit: 1, held: map[string]bool{}}
	r := newTestRegistry(repo, slots)
	ctx := context.Background()

	first, err := r.RouteInboundCall(ctx, inbound("+15550001111"))
	require.NoError(t, err)
	require.Equal(t, telephony.InboundCallActionConnect, first.Action)

	second, err := r.RouteInboundCall(ctx, inbound("+15550001111"))
	require.NoError(t, err)
	assert.Equal(t, telephony.MessageLinesBusy, second.Message)

	require.NoError(t, r.ApplyTelephonyStatus(ctx, telephony.StatusEvent{CallID: first.CallID, Status: "completed"}))
	assert.Contains(t, slots.released, first.CallID)

	third, err := r.RouteInboundCall(ctx, inbound("+15550001111"))
	require.NoError(t, err)
	assert.Equal(t, telephony.InboundCallActionConnect, third.Action)
}

func TestRouteInboundCall_SlotErrorFailsOpen(t *testing.T) {
	r := newTestRegistry(seededRepo(), &fakeSlots{err: errors.New("redis down"), held: map[string]bool{}})
	res, err := r.RouteInboundCall(context.Background(), inbound("+15550001111"))
	require.NoError(t, err)
	assert.Equal(t, telephony.InboundCallActionConnect, res.Action)
}

func TestApplyTelephonyStatus_Verbatim(t *testing.T) {
	repo := seededRepo()
	r := newTestRegistry(repo, nil)
	ctx := context.Background()

	res, err := r.RouteInboundCall(ctx, inbound("+15550001111"))
	require.NoError(t, err)

	require.NoError(t, r.ApplyTelephonyStatus(ctx, telephony.StatusEvent{CallID: res.CallID, Status: "ringing"}))
	c, _, _ := repo.GetCall(ctx, "t1", res.CallID)
	assert.Equal(t, CallStatus("ringing"), c.Status)

	// Keyed by provider id when call_id is absent.
	require.NoError(t, r.ApplyTelephonyStatus(ctx, telephony.StatusEvent{ProviderCallID: "vonage-uuid", Status: "answered"}))
	c, _, _ = repo.GetCall(ctx, "t1", res.CallID)
	assert.Equal(t, CallStatus("answered"), c.Status)

	// Unknown call is not an error.
	require.NoError(t, r.ApplyTelephonyStatus(ctx, telephony.StatusEvent{CallID: "nope", Status: "answered"}))
}

func TestConversationLifecycle(t *testing.T) {
	repo := seededRepo()
	r := newTestRegistry(repo, nil)
	ctx := context.Background()

	res, err := r.RouteInboundCall(ctx, inbound("+15550001111"))
	require.NoError(t, err)

	ref, ok, err := r.BindConversation(ctx, res.CallID, "conv-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t1", ref.TenantID)

	// Replay with the same id is fine; a different id never rebinds.
	_, ok, err = r.BindConversation(ctx, res.CallID, "conv-1")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = r.BindConversation(ctx, res.CallID, "conv-2")
	require.NoError(t, err)
	assert.False(t, ok)

	c, _, _ := repo.GetCall(ctx, "t1", res.CallID)
	assert.Equal(t, CallStatusConnected, c.Status)
	assert.Equal(t, "conv-1", c.ExternalConversationID)

	stored, err := r.AppendTurn(ctx, TurnInput{ConversationID: "conv-1", Speaker: "agent", Message: "Hello", TurnNumber: 1})
	require.NoError(t, err)
	assert.True(t, stored)
	stored, err = r.AppendTurn(ctx, TurnInput{ConversationID: "conv-unknown", Message: "lost"})
	require.NoError(t, err)
	assert.False(t, stored)

	turns, err := repo.ListTurns(ctx, "t1", res.CallID)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "agent", turns[0].Speaker)

	ref, ok, err = r.CompleteConversation(ctx, Completion{ConversationID: "conv-1", DurationSeconds: 125, Summary: "Booked"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, res.CallID, ref.CallID)

	c, _, _ = repo.GetCall(ctx, "t1", res.CallID)
	assert.Equal(t, CallStatusCompleted, c.Status)
	assert.Equal(t, 125, c.DurationSeconds)
	require.NotNil(t, c.EndedAt)
	assert.Equal(t, "Booked", c.Summary)

	_, ok, err = r.CompleteConversation(ctx, Completion{ConversationID: "conv-unknown", DurationSeconds: 10})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBindConversation_RequiresIDs(t *testing.T) {
	r := newTestRegistry(seededRepo(), nil)
	_, _, err := r.BindConversation(context.Background(), "", "conv")
	assert.ErrorIs(t, err, ErrMissingCorrelation)
}

func TestExpireStale(t *testing.T) {
	repo := seededRepo()
	slots := &fakeSlots{limit: 10, held: map[string]bool{}}
	r := newTestRegistry(repo, slots)
	ctx := context.Background()

	stale, err := r.RouteInboundCall(ctx, inbound("+15550001111"))
	require.NoError(t, err)
	bound, err := r.RouteInboundCall(ctx, inbound("+15550001111"))
	require.NoError(t, err)
	_, _, err = r.BindConversation(ctx, bound.CallID, "conv-1")
	require.NoError(t, err)

	r.now = func() time.Time { return testNow.Add(11 * time.Minute) }
	n, err := r.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, slots.released, stale.CallID)

	c, _, _ := repo.GetCall(ctx, "t1", stale.CallID)
	assert.Equal(t, CallStatusAbandoned, c.Status)
	c, _, _ = repo.GetCall(ctx, "t1", bound.CallID)
	assert.Equal(t, CallStatusConnected, c.Status)

	// Late conversation start on an abandoned call does not bind.
	_, ok, err := r.BindConversation(ctx, stale.CallID, "conv-late")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBridgeURI_PreservesExistingQuery(t *testing.T) {
	got := bridgeURI("wss://bridge.example/ws?region=eu", "a b")
	assert.True(t, strings.HasPrefix(got, "wss://bridge.example/ws?"))
	assert.Contains(t, got, "agent_id=a+b")
	assert.Contains(t, got, "region=eu")
}
