package view

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wpparchive/internal/bus"
	"github.com/matheus3301/wpparchive/internal/channel"
	"github.com/matheus3301/wpparchive/internal/jobs"
	"github.com/matheus3301/wpparchive/internal/model"
	"github.com/matheus3301/wpparchive/internal/notify"
	"github.com/matheus3301/wpparchive/internal/recovery"
	"github.com/matheus3301/wpparchive/internal/status"
	"go.uber.org/zap"
)

type fakeBackend struct {
	mu       sync.Mutex
	probe    model.SessionProbe
	probeErr error
	chats    []model.ChatSummary
	stats    model.Stats
	messages map[string][]model.MessageRecord
	fetch    model.FetchResult

	// gate blocks ListMessages for the chat id until closed.
	gate map[string]chan struct{}

	// chatsGate blocks ListChats, sessionGate blocks CheckSession.
	chatsGate   chan struct{}
	sessionGate chan struct{}

	// hang makes FetchMessages and InitializeLink wait for ctx to end.
	hang bool

	probes     int
	chatLoads  int
	initCalls  int
	deleteAlls int
}

func (f *fakeBackend) CheckSession(ctx context.Context) (model.SessionProbe, error) {
	f.mu.Lock()
	f.probes++
	gate := f.sessionGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.SessionProbe{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probe, f.probeErr
}

func (f *fakeBackend) InitializeLink(ctx context.Context) error {
	f.mu.Lock()
	f.initCalls++
	hang := f.hang
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeBackend) ListChats(ctx context.Context) ([]model.ChatSummary, error) {
	f.mu.Lock()
	gate := f.chatsGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatLoads++
	out := make([]model.ChatSummary, len(f.chats))
	copy(out, f.chats)
	return out, nil
}

func (f *fakeBackend) Stats(ctx context.Context) (model.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats, nil
}

func (f *fakeBackend) ListMessages(ctx context.Context, chatID string, limit, offset int) ([]model.MessageRecord, error) {
	f.mu.Lock()
	gate := f.gate[chatID]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[chatID]
	if offset >= len(msgs) {
		return nil, nil
	}
	end := min(offset+limit, len(msgs))
	return append([]model.MessageRecord(nil), msgs[offset:end]...), nil
}

func (f *fakeBackend) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	return []model.SearchResult{{ChatName: "Alice", Message: model.MessageRecord{Body: query}}}, nil
}

func (f *fakeBackend) FetchMessages(ctx context.Context) (model.FetchResult, error) {
	f.mu.Lock()
	res, hang := f.fetch, f.hang
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return model.FetchResult{}, ctx.Err()
	}
	return res, nil
}

func (f *fakeBackend) Export(ctx context.Context, format string) ([]byte, error) {
	return []byte(`{}`), nil
}

func (f *fakeBackend) DeleteAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteAlls++
	return nil
}

func (f *fakeBackend) Disconnect(ctx context.Context) error    { return nil }
func (f *fakeBackend) DeleteSession(ctx context.Context) error { return nil }

func (f *fakeBackend) inits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls
}

func (f *fakeBackend) counts() (probes, chatLoads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes, f.chatLoads
}

type fakeChannel struct {
	mu     sync.Mutex
	joined []string
	left   []string
}

func (c *fakeChannel) Connected() bool { return true }

func (c *fakeChannel) JoinRoom(ctx context.Context, room string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = append(c.joined, room)
	return nil
}

func (c *fakeChannel) rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.joined...)
}

func (c *fakeChannel) LeaveRoom(ctx context.Context, room string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.left = append(c.left, room)
	return nil
}

type fakeMirror struct {
	mu      sync.Mutex
	chats   int
	cleared int
}

func (m *fakeMirror) MirrorChats(chats []model.ChatSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats = len(chats)
	return nil
}

func (m *fakeMirror) MirrorMessages(string, []model.MessageRecord) error { return nil }

func (m *fakeMirror) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared++
	return nil
}

type harness struct {
	bus     *bus.Bus
	ctrl    *Controller
	backend *fakeBackend
	channel *fakeChannel
	mirror  *fakeMirror
}

func newHarness(t *testing.T, backend *fakeBackend) *harness {
	t.Helper()
	b := bus.New()
	h := &harness{bus: b, backend: backend, channel: &fakeChannel{}, mirror: &fakeMirror{}}
	alerts := notify.NewCenter(b, 0)
	tracker := status.NewTracker(b, alerts, zap.NewNop())
	h.ctrl = New(Options{
		Bus:     b,
		Channel: h.channel,
		Backend: backend,
		Mirror:  h.mirror,
		Alerts:  alerts,
		Tracker: tracker,
		Recovery: recovery.New(recovery.Options{
			Backend:       backend,
			SettleDelay:   time.Millisecond,
			ProbeTimeout:  time.Second,
			LinkConnected: func() bool { return tracker.Snapshot().Link.Connected },
		}),
		Logger: zap.NewNop(),
	})
	h.ctrl.Start(context.Background())
	t.Cleanup(h.ctrl.Stop)
	return h
}

func (h *harness) publish(kind string, payload any) {
	h.bus.Publish(bus.Event{Kind: kind, Payload: payload})
}

func waitFor(t *testing.T, c *Controller, what string, cond func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := c.Snapshot()
		if cond(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last state view=%s checking=%v busy=%v chats=%d alerts=%v",
				what, s.View, s.Checking, s.Busy, len(s.Chats), s.Alerts)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func hasAlert(s State, level model.AlertLevel, substr string) bool {
	for _, a := range s.Alerts {
		if a.Level == level && strings.Contains(a.Text, substr) {
			return true
		}
	}
	return false
}

func twoChats() []model.ChatSummary {
	base := time.UnixMilli(1_700_000_000_000)
	return []model.ChatSummary{
		{ID: "1", ExternalChatID: "a@c.us", Name: "Alice", LastMessageTime: base},
		{ID: "2", ExternalChatID: "b@c.us", Name: "Bob", LastMessageTime: base.Add(time.Hour)},
	}
}

func TestRecoveryUsableSession(t *testing.T) {
	backend := &fakeBackend{
		probe: model.SessionProbe{HasSession: true, IsActive: true, Connected: true, AccountID: "+15551234"},
		chats: twoChats(),
		stats: model.Stats{TotalChats: 2, TotalMessages: 40},
	}
	h := newHarness(t, backend)

	h.publish(channel.KindConnected, nil)

	s := waitFor(t, h.ctrl, "synced view", func(s State) bool {
		return !s.Checking && s.View == model.ViewChats && s.Stats != nil && len(s.Chats) == 2
	})
	if !hasAlert(s, model.AlertSuccess, "+15551234") {
		t.Errorf("expected welcome alert with account id, got %v", s.Alerts)
	}
	if !s.Link.Connected || s.Link.AccountID != "+15551234" {
		t.Errorf("link = %+v, want connected as +15551234", s.Link)
	}
	if s.Unconfirmed {
		t.Error("synced view must not be unconfirmed")
	}
	if s.Chats[0].ExternalChatID != "b@c.us" {
		t.Errorf("chats not sorted newest first: %v", s.Chats)
	}
}

func TestRecoveryProbeFailureFallsBackToChats(t *testing.T) {
	backend := &fakeBackend{
		probeErr: context.DeadlineExceeded,
		chats: append(twoChats(), model.ChatSummary{
			ID: "3", ExternalChatID: "g@g.us", Name: "Group", IsGroup: true,
		}),
		stats: model.Stats{TotalChats: 3, TotalMessages: 9},
	}
	h := newHarness(t, backend)

	h.publish(channel.KindConnected, nil)

	s := waitFor(t, h.ctrl, "degraded view", func(s State) bool {
		return !s.Checking && s.View == model.ViewChats && s.Unconfirmed
	})
	if len(s.Chats) != 3 {
		t.Errorf("chats = %d, want 3", len(s.Chats))
	}
	if s.Stats == nil || s.Stats.TotalChats != 3 {
		t.Errorf("stats = %+v, want total_chats 3", s.Stats)
	}
	if !hasAlert(s, model.AlertWarning, "reconnect") {
		t.Errorf("expected caution alert, got %v", s.Alerts)
	}
}

func TestRecoveryNoSessionStaysInSetup(t *testing.T) {
	backend := &fakeBackend{probe: model.SessionProbe{HasSession: false}}
	h := newHarness(t, backend)

	h.publish(channel.KindConnected, nil)

	s := waitFor(t, h.ctrl, "probe applied", func(s State) bool {
		probes, _ := backend.counts()
		return probes == 1 && !s.Checking
	})
	if s.View != model.ViewSetup {
		t.Errorf("view = %s, want setup", s.View)
	}
	if len(s.Alerts) != 0 {
		t.Errorf("expected no alerts, got %v", s.Alerts)
	}
}

func TestRecoveryRunsOncePerConnect(t *testing.T) {
	backend := &fakeBackend{probe: model.SessionProbe{HasSession: false}}
	h := newHarness(t, backend)

	h.publish(channel.KindConnected, nil)
	h.publish(channel.KindConnected, nil)
	waitFor(t, h.ctrl, "first probe", func(s State) bool {
		probes, _ := backend.counts()
		return probes == 1 && !s.Checking
	})

	h.publish(channel.KindDisconnected, "lost")
	h.publish(channel.KindConnected, nil)
	waitFor(t, h.ctrl, "second probe", func(s State) bool {
		probes, _ := backend.counts()
		return probes == 2 && !s.Checking
	})
}

func TestReadyDuringSessionCheckSkipsReinitialize(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{probe: model.SessionProbe{HasSession: true}, chats: twoChats(), sessionGate: gate}
	h := newHarness(t, backend)

	h.publish(channel.KindConnected, nil)
	waitFor(t, h.ctrl, "session check in flight", func(s State) bool {
		probes, _ := backend.counts()
		return probes == 1 && s.Checking
	})
	h.publish(channel.KindReady, model.ReadyEvent{AccountID: "+1999", At: time.Now()})
	waitFor(t, h.ctrl, "ready applied", func(s State) bool { return s.Link.Connected })
	close(gate)

	s := waitFor(t, h.ctrl, "session check applied", func(s State) bool { return !s.Checking })
	if n := backend.inits(); n != 0 {
		t.Errorf("InitializeLink calls = %d, want 0 once the link is up", n)
	}
	if hasAlert(s, model.AlertInfo, "Reconnecting") {
		t.Errorf("unexpected reconnect alert: %v", s.Alerts)
	}
	if !s.Link.Connected || s.View != model.ViewChats {
		t.Errorf("link = %+v view = %s, want linked chats view", s.Link, s.View)
	}
}

func TestFetchErrorClearsBusyWithoutReload(t *testing.T) {
	backend := &fakeBackend{fetch: model.FetchResult{Status: "processing"}}
	h := newHarness(t, backend)
	ctx := context.Background()

	if err := h.ctrl.FetchAll(ctx); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	s := h.ctrl.Snapshot()
	if !s.Busy || s.Job.Status != model.JobProcessing {
		t.Fatalf("after processing response busy=%v job=%s, want busy processing", s.Busy, s.Job.Status)
	}
	if !hasAlert(s, model.AlertInfo, "You will be notified") {
		t.Errorf("expected started alert, got %v", s.Alerts)
	}
	if err := h.ctrl.FetchAll(ctx); err == nil {
		t.Error("second FetchAll while processing should fail")
	}

	h.publish(channel.KindFetchError, model.FetchFailure{Error: "Fetch failed", Details: "rate limited"})

	s = waitFor(t, h.ctrl, "busy cleared", func(s State) bool { return !s.Busy })
	if !hasAlert(s, model.AlertError, "rate limited") {
		t.Errorf("expected error alert with detail, got %v", s.Alerts)
	}
	if _, loads := backend.counts(); loads != 0 {
		t.Errorf("chat loads = %d, want no reload", loads)
	}
}

func TestFetchImmediateReloads(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{fetch: model.FetchResult{Status: "completed"}, chats: twoChats(), chatsGate: gate}
	h := newHarness(t, backend)

	if err := h.ctrl.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	s := h.ctrl.Snapshot()
	if !s.Busy || len(s.Chats) != 0 {
		t.Fatalf("before chats land busy=%v chats=%d, want busy with no chats", s.Busy, len(s.Chats))
	}
	if hasAlert(s, model.AlertSuccess, "Messages fetched successfully") {
		t.Error("success reported before the reload finished")
	}

	close(gate)
	s = waitFor(t, h.ctrl, "reloaded", func(s State) bool { return !s.Busy })
	if len(s.Chats) != 2 {
		t.Errorf("busy cleared with %d chats, want 2", len(s.Chats))
	}
	if s.Job.Status != model.JobDone {
		t.Errorf("job = %s, want done", s.Job.Status)
	}
	if !hasAlert(s, model.AlertSuccess, "Messages fetched successfully") {
		t.Errorf("expected success alert, got %v", s.Alerts)
	}

	// A completion event after the job finished is ignored.
	h.publish(channel.KindFetchComplete, model.FetchSummary{Message: "late"})
	time.Sleep(20 * time.Millisecond)
	if hasAlert(h.ctrl.Snapshot(), model.AlertSuccess, "late") {
		t.Error("completion for a finished job must be ignored")
	}
}

func TestCancelledCallerStillSettlesState(t *testing.T) {
	backend := &fakeBackend{hang: true}
	h := newHarness(t, backend)

	for i := range 20 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		fetchErr := h.ctrl.FetchAll(ctx)
		initErr := h.ctrl.InitializeLink(ctx)
		cancel()
		if errors.Is(fetchErr, jobs.ErrActive) {
			t.Fatalf("trial %d: FetchAll found the previous fetch still running", i)
		}
		if errors.Is(initErr, jobs.ErrActive) {
			t.Fatalf("trial %d: InitializeLink found the previous attempt still running", i)
		}
	}

	s := h.ctrl.Snapshot()
	if s.Busy {
		t.Errorf("busy = true after every caller gave up, job = %s", s.Job.Status)
	}
	if s.Job.Status != model.JobIdle && s.Job.Status != model.JobFailed {
		t.Errorf("job = %s, want idle or failed", s.Job.Status)
	}
}

func TestEventBurstKeepsFetchOutcome(t *testing.T) {
	backend := &fakeBackend{fetch: model.FetchResult{Status: "processing"}, chats: twoChats()}
	h := newHarness(t, backend)

	if err := h.ctrl.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	for i := range 3000 {
		h.publish(channel.KindNewMessage, model.NewMessage{
			ChatID:  "a@c.us",
			Message: model.MessageRecord{ChatExternalID: "a@c.us", Body: "burst", Timestamp: int64(i)},
		})
	}
	h.publish(channel.KindFetchError, model.FetchFailure{Error: "Fetch failed"})

	s := waitFor(t, h.ctrl, "fetch failure applied", func(s State) bool { return !s.Busy })
	if s.Job.Status != model.JobFailed {
		t.Errorf("job = %s, want failed", s.Job.Status)
	}
	if !hasAlert(s, model.AlertError, "Fetch failed") {
		t.Errorf("expected failure alert, got %v", s.Alerts)
	}
}

func TestUnauthorizedDropsCredentialOffLoop(t *testing.T) {
	b := bus.New()
	dropped := make(chan struct{})
	ctrl := New(Options{
		Bus:     b,
		Channel: &fakeChannel{},
		Backend: &fakeBackend{},
		// Tearing the channel down publishes a disconnect through the loop.
		OnUnauthorized: func() {
			b.Publish(bus.Event{Kind: channel.KindDisconnected, Payload: "credential changed"})
			close(dropped)
		},
		Logger: zap.NewNop(),
	})
	ctrl.Start(context.Background())
	t.Cleanup(ctrl.Stop)

	b.Publish(bus.Event{Kind: channel.KindUnauthorized})
	select {
	case <-dropped:
	case <-time.After(2 * time.Second):
		t.Fatal("credential handler never returned")
	}
	waitFor(t, ctrl, "session expired alert", func(s State) bool {
		return !s.ChannelConnected && hasAlert(s, model.AlertError, "Session expired")
	})
}

func TestNewMessageMergesIntoOpenChat(t *testing.T) {
	backend := &fakeBackend{
		chats: twoChats(),
		stats: model.Stats{TotalChats: 2, TotalMessages: 1},
		messages: map[string][]model.MessageRecord{
			"1": {{ChatExternalID: "a@c.us", Body: "old", Timestamp: 1}},
		},
	}
	h := newHarness(t, backend)
	ctx := context.Background()

	if err := h.ctrl.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, h.ctrl, "chats loaded", func(s State) bool { return len(s.Chats) == 2 && s.Stats != nil })
	if err := h.ctrl.SelectChat(ctx, "1"); err != nil {
		t.Fatalf("SelectChat: %v", err)
	}
	waitFor(t, h.ctrl, "messages loaded", func(s State) bool { return len(s.Messages) == 1 })

	h.publish(channel.KindNewMessage, model.NewMessage{
		ChatID:  "a@c.us",
		Message: model.MessageRecord{ChatExternalID: "a@c.us", Body: "fresh", Timestamp: 2},
	})

	s := waitFor(t, h.ctrl, "message merged", func(s State) bool { return len(s.Messages) == 2 })
	if s.Messages[0].Body != "fresh" {
		t.Errorf("newest message = %q, want fresh", s.Messages[0].Body)
	}
	if s.Chats[0].ExternalChatID != "a@c.us" {
		t.Errorf("chat with new message should sort first, got %v", s.Chats[0].ExternalChatID)
	}
	if s.Stats.TotalMessages != 2 {
		t.Errorf("total messages = %d, want 2", s.Stats.TotalMessages)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		joined := h.channel.rooms()
		if len(joined) == 1 && joined[0] == "a@c.us" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("joined rooms = %v, want [a@c.us]", joined)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStaleMessageLoadDiscarded(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{
		chats: twoChats(),
		messages: map[string][]model.MessageRecord{
			"1": {{Body: "from alice"}},
			"2": {{Body: "from bob"}},
		},
		gate: map[string]chan struct{}{"1": gate},
	}
	h := newHarness(t, backend)
	ctx := context.Background()

	if err := h.ctrl.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, h.ctrl, "chats loaded", func(s State) bool { return len(s.Chats) == 2 })

	if err := h.ctrl.SelectChat(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.SelectChat(ctx, "2"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, h.ctrl, "bob loaded", func(s State) bool { return len(s.Messages) == 1 })
	close(gate)
	time.Sleep(20 * time.Millisecond)

	s := h.ctrl.Snapshot()
	if len(s.Messages) != 1 || s.Messages[0].Body != "from bob" {
		t.Errorf("messages = %v, want only bob's", s.Messages)
	}
	if s.SelectedChat == nil || s.SelectedChat.ID != "2" {
		t.Errorf("selected = %v, want chat 2", s.SelectedChat)
	}
}

func TestSelectUnknownChat(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	err := h.ctrl.SelectChat(context.Background(), "nope")
	if !errors.Is(err, ErrUnknownChat) {
		t.Fatalf("err = %v, want ErrUnknownChat", err)
	}
}

func TestDeleteAllClearsState(t *testing.T) {
	backend := &fakeBackend{chats: twoChats(), stats: model.Stats{TotalChats: 2}}
	h := newHarness(t, backend)
	ctx := context.Background()

	if err := h.ctrl.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, h.ctrl, "chats loaded", func(s State) bool { return len(s.Chats) == 2 && s.Stats != nil })
	if err := h.ctrl.SelectChat(ctx, "2"); err != nil {
		t.Fatal(err)
	}

	if err := h.ctrl.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	s := h.ctrl.Snapshot()
	if len(s.Chats) != 0 || s.SelectedChat != nil || len(s.Messages) != 0 || s.Stats != nil {
		t.Errorf("state not cleared: %+v", s)
	}
	if !hasAlert(s, model.AlertSuccess, "All data deleted") {
		t.Errorf("expected deleted alert, got %v", s.Alerts)
	}
	h.mirror.mu.Lock()
	cleared := h.mirror.cleared
	h.mirror.mu.Unlock()
	if cleared != 1 {
		t.Errorf("mirror cleared %d times, want 1", cleared)
	}
}

func TestReadySwitchesToChats(t *testing.T) {
	backend := &fakeBackend{chats: twoChats()}
	h := newHarness(t, backend)

	h.publish(channel.KindReady, model.ReadyEvent{AccountID: "+1999", At: time.Now()})

	s := waitFor(t, h.ctrl, "chats after ready", func(s State) bool {
		return s.View == model.ViewChats && len(s.Chats) == 2
	})
	if !s.Link.Connected || s.Link.AccountID != "+1999" {
		t.Errorf("link = %+v", s.Link)
	}
}

func TestConnectErrorIsPersistentUntilConnected(t *testing.T) {
	backend := &fakeBackend{probe: model.SessionProbe{}}
	h := newHarness(t, backend)

	h.publish(channel.KindConnectError, "dial refused")
	waitFor(t, h.ctrl, "connection alert", func(s State) bool {
		return hasAlert(s, model.AlertError, "Connection error")
	})

	h.publish(channel.KindConnected, nil)
	waitFor(t, h.ctrl, "alert cleared", func(s State) bool {
		return s.ChannelConnected && !hasAlert(s, model.AlertError, "Connection error")
	})
}

func TestShortSearchClearsResults(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	ctx := context.Background()

	res, err := h.ctrl.Search(ctx, "hello", 10)
	if err != nil || len(res) != 1 {
		t.Fatalf("Search = %v, %v", res, err)
	}
	if got := h.ctrl.Snapshot().SearchResults; len(got) != 1 {
		t.Fatalf("results in view = %d, want 1", len(got))
	}

	if _, err := h.ctrl.Search(ctx, "h", 10); err != nil {
		t.Fatal(err)
	}
	if got := h.ctrl.Snapshot().SearchResults; len(got) != 0 {
		t.Errorf("short query should clear results, got %d", len(got))
	}
}

func TestVisibleResetsUnreadCounter(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	ctx := context.Background()

	h.publish(channel.KindNotification, model.Notification{SenderName: "Ana", Preview: "hi"})
	h.publish(channel.KindNotification, model.Notification{SenderName: "Ana", Preview: "again"})
	waitFor(t, h.ctrl, "unread counter", func(s State) bool { return strings.HasPrefix(s.Title, "(2)") })

	if err := h.ctrl.Visible(ctx, false); err != nil {
		t.Fatal(err)
	}
	if got := h.ctrl.Snapshot().Title; !strings.HasPrefix(got, "(2)") {
		t.Errorf("title after hiding = %q, want counter kept", got)
	}
	if err := h.ctrl.Visible(ctx, true); err != nil {
		t.Fatal(err)
	}
	if got := h.ctrl.Snapshot().Title; strings.HasPrefix(got, "(") {
		t.Errorf("title after showing = %q, want counter reset", got)
	}
}
