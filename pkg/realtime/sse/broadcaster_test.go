package sse

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
	err error
}

func (s *recordingSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.buf.Write(p)
}

func (s *recordingSink) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *recordingSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// field returns the values of every "<name>: " line, in order.
func (s *recordingSink) field(name string) []string {
	var values []string
	prefix := name + ": "
	for _, line := range strings.Split(s.String(), "\n") {
		if strings.HasPrefix(line, prefix) {
			values = append(values, strings.TrimPrefix(line, prefix))
		}
	}
	return values
}

type countRecorder struct {
	mu      sync.Mutex
	added   []int
	removed []int
}

func (r *countRecorder) SubscriberAdded(count int) {
	r.mu.Lock()
	r.added = append(r.added, count)
	r.mu.Unlock()
}

func (r *countRecorder) SubscriberRemoved(count int) {
	r.mu.Lock()
	r.removed = append(r.removed, count)
	r.mu.Unlock()
}

func (r *countRecorder) snapshot() ([]int, []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.added...), append([]int(nil), r.removed...)
}

type topicInfo struct {
	topic string
}

func newTestBroadcaster[I any](t *testing.T, cfg Config, opts ...Option) *Broadcaster[I] {
	t.Helper()
	b, err := New[I](cfg, opts...)
	if err != nil {
		t.Fatalf("new broadcaster: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func register[I any](t *testing.T, b *Broadcaster[I], lastEventID string) *recordingSink {
	t.Helper()
	sink := &recordingSink{}
	if _, err := b.Register(context.Background(), sink, lastEventID); err != nil {
		t.Fatalf("register: %v", err)
	}
	return sink
}

func TestNew_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		opts []Option
	}{
		{name: "negative capacity", cfg: Config{HistoryCapacity: -1}},
		{name: "negative interval", cfg: Config{HeartbeatInterval: -time.Second}},
		{name: "negative delay", cfg: Config{HeartbeatDelay: -time.Second}},
		{name: "nil history", cfg: DefaultConfig(), opts: []Option{WithHistory(nil)}},
		{name: "nil id generator", cfg: DefaultConfig(), opts: []Option{WithIDGenerator(nil)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New[struct{}](tt.cfg, tt.opts...)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if b != nil {
				t.Fatal("expected nil broadcaster")
			}
		})
	}
}

func TestBroadcaster_FreshSubscriberGetsNoReplay(t *testing.T) {
	b := newTestBroadcaster[struct{}](t, DefaultConfig())
	b.Send("before")

	sink := register(t, b, "")
	if got := sink.String(); got != "" {
		t.Fatalf("expected no replay, got %q", got)
	}

	b.Send("after")
	if got := sink.field("data"); !equalStrings(got, []string{"after"}) {
		t.Fatalf("expected only live data, got %v", got)
	}
}

func TestBroadcaster_ReplayScenario(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryCapacity = 3
	b := newTestBroadcaster[struct{}](t, cfg)

	for _, data := range []string{"A", "B", "C", "D"} {
		b.Send(data)
	}

	tests := []struct {
		name   string
		lastID string
		want   []string
	}{
		{name: "resume after B", lastID: "2", want: []string{"C", "D"}},
		{name: "resume after second to last", lastID: "3", want: []string{"D"}},
		{name: "resume after newest", lastID: "4", want: nil},
		{name: "evicted id", lastID: "1", want: nil},
		{name: "unknown id", lastID: "99", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := register(t, b, tt.lastID)
			if got := sink.field("data"); !equalStrings(got, tt.want) {
				t.Fatalf("expected replay %v, got %v", tt.want, got)
			}
		})
	}

	sink := register(t, b, "2")
	b.Send("E")
	if got := sink.field("data"); !equalStrings(got, []string{"C", "D", "E"}) {
		t.Fatalf("expected replay then live, got %v", got)
	}
	if got := sink.field("id"); !equalStrings(got, []string{"3", "4", "5"}) {
		t.Fatalf("expected ids 3,4,5, got %v", got)
	}
}

func TestBroadcaster_LineBreakIDReplaysFromWireID(t *testing.T) {
	b := newTestBroadcaster[struct{}](t, DefaultConfig())
	first := register(t, b, "")

	d := b.SendWithID("multi\nline", "a", "x\ny")
	b.Send("b")

	if d.ID != "x y" {
		t.Fatalf("expected cleaned id in delivery, got %q", d.ID)
	}
	wireIDs := first.field("id")
	if len(wireIDs) != 2 || wireIDs[0] != "x y" {
		t.Fatalf("expected wire id %q first, got %v", "x y", wireIDs)
	}
	if got := first.field("event"); !equalStrings(got, []string{"multi line"}) {
		t.Fatalf("expected cleaned event, got %v", got)
	}

	reconnect := register(t, b, wireIDs[0])
	if got := reconnect.field("data"); !equalStrings(got, []string{"b"}) {
		t.Fatalf("expected replay of b after %q, got %v", wireIDs[0], got)
	}

	raw := register(t, b, "x\ny")
	if got := raw.field("data"); !equalStrings(got, []string{"b"}) {
		t.Fatalf("expected raw last id to match the stored id, got %v", got)
	}
}

func TestBroadcaster_SendVariants(t *testing.T) {
	b := newTestBroadcaster[struct{}](t, DefaultConfig())
	sink := register(t, b, "")

	b.Send("plain")
	b.SendEvent("tick", "typed")
	d := b.SendWithID("tick", "explicit", "custom-1")
	if d.ID != "custom-1" {
		t.Fatalf("expected explicit id, got %q", d.ID)
	}

	want := "id: 1\ndata: plain\n\n" +
		"id: 2\nevent: tick\ndata: typed\n\n" +
		"id: custom-1\nevent: tick\ndata: explicit\n\n"
	if got := sink.String(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestBroadcaster_NoIDsWithoutGenerator(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoGenerateIDs = false
	b := newTestBroadcaster[struct{}](t, cfg)
	sink := register(t, b, "")

	if d := b.Send("x"); d.ID != "" {
		t.Fatalf("expected no id, got %q", d.ID)
	}
	if got := sink.String(); got != "data: x\n\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestBroadcaster_CustomIDGenerator(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoGenerateIDs = false
	gen := IDGeneratorFunc(func(msg *Message) string { return "evt-" + msg.Data })
	b := newTestBroadcaster[struct{}](t, cfg, WithIDGenerator(gen))

	if d := b.Send("x"); d.ID != "evt-x" {
		t.Fatalf("expected custom id, got %q", d.ID)
	}
}

func TestBroadcaster_WriteFailurePrunesSubscriber(t *testing.T) {
	recorder := &countRecorder{}
	b := newTestBroadcaster[struct{}](t, DefaultConfig(), WithObserver(recorder))

	broken := register(t, b, "")
	healthy := register(t, b, "")
	broken.fail(errors.New("broken pipe"))

	d := b.Send("first")
	if d.Delivered != 1 || d.Removed != 1 {
		t.Fatalf("expected 1 delivered and 1 removed, got %+v", d)
	}
	if got := healthy.field("data"); !equalStrings(got, []string{"first"}) {
		t.Fatalf("healthy subscriber missed the message: %v", got)
	}
	if b.Count() != 1 {
		t.Fatalf("expected 1 live subscriber, got %d", b.Count())
	}

	d = b.Send("second")
	if d.Delivered != 1 || d.Removed != 0 {
		t.Fatalf("expected pruned subscriber to be gone, got %+v", d)
	}

	added, removed := recorder.snapshot()
	if !equalInts(added, []int{1, 2}) {
		t.Fatalf("expected added [1 2], got %v", added)
	}
	if !equalInts(removed, []int{1}) {
		t.Fatalf("expected removed [1], got %v", removed)
	}
}

func TestBroadcaster_DisconnectedSubscriberClosesDone(t *testing.T) {
	b := newTestBroadcaster[struct{}](t, DefaultConfig())
	sink := &recordingSink{}
	sub, err := b.Register(context.Background(), sink, "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	sink.fail(errors.New("closed"))
	b.Send("x")

	select {
	case <-sub.Done():
	default:
		t.Fatal("expected done channel to be closed")
	}
	if sub.Connected() {
		t.Fatal("expected subscriber to be disconnected")
	}
}

func TestBroadcaster_HeartbeatSkipsIDsAndHistory(t *testing.T) {
	b := newTestBroadcaster[struct{}](t, DefaultConfig())
	existing := register(t, b, "")

	b.Send("A")
	d := b.Heartbeat(context.Background())
	if d.ID != "" || d.Delivered != 1 {
		t.Fatalf("unexpected heartbeat delivery %+v", d)
	}
	b.Send("B")

	if got := existing.String(); got != "id: 1\ndata: A\n\n: heartbeat\n\nid: 2\ndata: B\n\n" {
		t.Fatalf("unexpected stream %q", got)
	}

	late := register(t, b, "1")
	if got := late.String(); got != "id: 2\ndata: B\n\n" {
		t.Fatalf("expected heartbeat to be absent from replay, got %q", got)
	}
}

// Retry suppression is per connection: set on the first write carrying a
// retry directive and never reset.
func TestBroadcaster_RetrySentOncePerConnection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = time.Hour
	cfg.HeartbeatDelay = time.Hour
	b := newTestBroadcaster[struct{}](t, cfg)

	first := &recordingSink{}
	sub, err := b.Register(context.Background(), first, "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	b.Send("A")
	b.Heartbeat(context.Background())
	b.Send("B")

	second := register(t, b, "1")
	b.Send("C")

	if got := first.field("retry"); !equalStrings(got, []string{"3600000"}) {
		t.Fatalf("expected one retry directive, got %v", got)
	}
	if !strings.HasPrefix(first.String(), "id: 1\ndata: A\nretry: 3600000\n\n") {
		t.Fatalf("expected retry on the first message, got %q", first.String())
	}
	if !sub.RetrySent() {
		t.Fatal("expected retry flag to be set")
	}

	// The reconnecting subscriber is a new connection and gets its own directive.
	if got := second.field("retry"); !equalStrings(got, []string{"3600000"}) {
		t.Fatalf("expected one retry directive on the new connection, got %v", got)
	}
	if got := second.field("data"); !equalStrings(got, []string{"B", "C"}) {
		t.Fatalf("expected replay then live, got %v", got)
	}
}

func TestBroadcaster_SubMillisecondHeartbeatRetry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 500 * time.Microsecond
	cfg.HeartbeatDelay = time.Hour
	b := newTestBroadcaster[struct{}](t, cfg)
	sink := register(t, b, "")

	b.Send("A")
	if got := sink.field("retry"); !equalStrings(got, []string{"1"}) {
		t.Fatalf("expected retry rounded up to 1ms, got %v", got)
	}
}

func TestBroadcaster_FilteredSend(t *testing.T) {
	b := newTestBroadcaster[topicInfo](t, DefaultConfig())

	sports, news, anonymous := &recordingSink{}, &recordingSink{}, &recordingSink{}
	if _, err := b.RegisterWithInfo(context.Background(), sports, "", topicInfo{topic: "sports"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := b.RegisterWithInfo(context.Background(), news, "", topicInfo{topic: "news"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := b.Register(context.Background(), anonymous, ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	isSports := func(info topicInfo) bool { return info.topic == "sports" }
	if d := b.SendTo(isSports, "goal"); d.Delivered != 1 {
		t.Fatalf("expected 1 delivery, got %+v", d)
	}
	if d := b.SendEventTo(nil, "digest", "all"); d.Delivered != 2 {
		t.Fatalf("expected every subscriber with info, got %+v", d)
	}
	if d := b.SendWithIDTo(isSports, "score", "1-0", "s-1"); d.ID != "s-1" || d.Delivered != 1 {
		t.Fatalf("unexpected delivery %+v", d)
	}
	b.Send("everyone")

	if got := sports.field("data"); !equalStrings(got, []string{"goal", "all", "1-0", "everyone"}) {
		t.Fatalf("sports got %v", got)
	}
	if got := news.field("data"); !equalStrings(got, []string{"all", "everyone"}) {
		t.Fatalf("news got %v", got)
	}
	if got := anonymous.field("data"); !equalStrings(got, []string{"everyone"}) {
		t.Fatalf("subscriber without info got %v", got)
	}
}

func TestBroadcaster_FilteredPruningScansWholeSet(t *testing.T) {
	recorder := &countRecorder{}
	b := newTestBroadcaster[topicInfo](t, DefaultConfig(), WithObserver(recorder))

	news := &recordingSink{}
	if _, err := b.RegisterWithInfo(context.Background(), news, "", topicInfo{topic: "news"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if d := b.SendTo(func(topicInfo) bool { return true }, "x"); d.Delivered != 1 {
		t.Fatalf("unexpected delivery %+v", d)
	}

	// A dead subscriber outside the filter is still pruned by the sweep.
	news.fail(errors.New("gone"))
	sub := b.Subscribers()[0]
	sub.write(&Message{Data: "ping"})
	d := b.SendTo(func(info topicInfo) bool { return info.topic == "sports" }, "y")
	if d.Delivered != 0 || d.Removed != 1 {
		t.Fatalf("expected prune without delivery, got %+v", d)
	}
	if _, removed := recorder.snapshot(); !equalInts(removed, []int{0}) {
		t.Fatalf("expected removed [0], got %v", removed)
	}
}

func TestBroadcaster_FilteredReplayRespectsAudience(t *testing.T) {
	b := newTestBroadcaster[topicInfo](t, DefaultConfig())

	b.Send("shared")
	b.SendTo(func(info topicInfo) bool { return info.topic == "sports" }, "goal")
	b.Send("closing")

	sports, news, anonymous := &recordingSink{}, &recordingSink{}, &recordingSink{}
	if _, err := b.RegisterWithInfo(context.Background(), sports, "1", topicInfo{topic: "sports"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := b.RegisterWithInfo(context.Background(), news, "1", topicInfo{topic: "news"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := b.Register(context.Background(), anonymous, "1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if got := sports.field("data"); !equalStrings(got, []string{"goal", "closing"}) {
		t.Fatalf("sports replay %v", got)
	}
	if got := news.field("data"); !equalStrings(got, []string{"closing"}) {
		t.Fatalf("news replay %v", got)
	}
	if got := anonymous.field("data"); !equalStrings(got, []string{"closing"}) {
		t.Fatalf("anonymous replay %v", got)
	}
}

type gateSink struct {
	recordingSink
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *gateSink) Write(p []byte) (int, error) {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.recordingSink.Write(p)
}

func TestBroadcaster_LiveSendsWaitForReplay(t *testing.T) {
	b := newTestBroadcaster[struct{}](t, DefaultConfig())
	b.Send("A")
	b.Send("B")
	b.Send("C")

	sink := &gateSink{entered: make(chan struct{}), release: make(chan struct{})}
	registered := make(chan error, 1)
	go func() {
		_, err := b.Register(context.Background(), sink, "1")
		registered <- err
	}()

	select {
	case <-sink.entered:
	case <-time.After(time.Second):
		t.Fatal("replay did not start")
	}

	// The replay is blocked in the sink; broadcasts must not wait for it.
	sent := make(chan Delivery, 1)
	go func() { sent <- b.Send("D") }()
	select {
	case d := <-sent:
		if d.Delivered != 1 {
			t.Fatalf("expected the replaying subscriber to be counted, got %+v", d)
		}
	case <-time.After(time.Second):
		t.Fatal("send blocked on a replaying subscriber")
	}

	close(sink.release)
	if err := <-registered; err != nil {
		t.Fatalf("register: %v", err)
	}
	b.Send("E")

	if got := sink.field("data"); !equalStrings(got, []string{"B", "C", "D", "E"}) {
		t.Fatalf("expected replay before live, got %v", got)
	}
}

func TestBroadcaster_HeartbeatLoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.HeartbeatDelay = 5 * time.Millisecond
	b := newTestBroadcaster[struct{}](t, cfg)
	sink := register(t, b, "")

	deadline := time.Now().Add(time.Second)
	for strings.Count(sink.String(), ": heartbeat\n\n") < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for heartbeats, body=%q", sink.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(sink.field("id")) != 0 {
		t.Fatalf("heartbeats must not carry ids: %q", sink.String())
	}
}

func TestBroadcaster_Close(t *testing.T) {
	recorder := &countRecorder{}
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 10 * time.Millisecond
	b, err := New[struct{}](cfg, WithObserver(recorder))
	if err != nil {
		t.Fatalf("new broadcaster: %v", err)
	}

	sub, err := b.Register(context.Background(), &recordingSink{}, "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	select {
	case <-sub.Done():
	default:
		t.Fatal("expected subscriber to be disconnected on close")
	}
	if _, err := b.Register(context.Background(), &recordingSink{}, ""); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if d := b.Send("late"); d.Delivered != 0 {
		t.Fatalf("expected no delivery after close, got %+v", d)
	}
	if _, removed := recorder.snapshot(); !equalInts(removed, []int{0}) {
		t.Fatalf("expected removed [0], got %v", removed)
	}
}

func TestBroadcaster_CloseFromHeartbeatObserver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 5 * time.Millisecond
	cfg.HeartbeatDelay = 5 * time.Millisecond
	b, err := New[struct{}](cfg)
	if err != nil {
		t.Fatalf("new broadcaster: %v", err)
	}
	closed := make(chan error, 1)
	b.Observe(ObserverFuncs{Removed: func(int) { closed <- b.Close() }})

	sink := register(t, b, "")
	sink.fail(errors.New("gone"))

	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("close: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("heartbeat never pruned the failed subscriber")
	}
	if !b.Closed() {
		t.Fatal("expected broadcaster to be closed")
	}

	exited := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(exited)
	}()
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("heartbeat goroutine did not exit after close from its observer")
	}
}

func TestBroadcaster_RegisterNilSink(t *testing.T) {
	b := newTestBroadcaster[struct{}](t, DefaultConfig())
	if _, err := b.Register(context.Background(), nil, ""); !errors.Is(err, ErrNilSink) {
		t.Fatalf("expected ErrNilSink, got %v", err)
	}
}

func TestObserverFuncs(t *testing.T) {
	var got []int
	b := newTestBroadcaster[struct{}](t, DefaultConfig())
	b.Observe(CountObserver(func(count int) { got = append(got, count) }))
	b.Observe(ObserverFuncs{})
	b.Observe(nil)

	sink := register(t, b, "")
	register(t, b, "")
	sink.fail(errors.New("gone"))
	b.Send("x")

	if !equalInts(got, []int{1, 2, 1}) {
		t.Fatalf("expected counts [1 2 1], got %v", got)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
