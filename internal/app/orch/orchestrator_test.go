package orch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/Call/internal/app"
	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/core/mocks"
	"github.com/dkeye/Call/internal/domain"
)

type fakeConn struct {
	id core.ConnID

	mu     sync.Mutex
	frames []map[string]any
	full   bool
	closed bool

	// onSend, if set, runs after each delivered frame.
	onSend func(map[string]any)
}

func (c *fakeConn) ID() core.ConnID { return c.id }

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return core.ErrBackpressure
	}
	var m map[string]any
	if err := json.Unmarshal(f, &m); err != nil {
		return err
	}
	c.frames = append(c.frames, m)
	hook := c.onSend
	c.mu.Unlock()
	if hook != nil {
		hook(m)
	}
	c.mu.Lock()
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) sent() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.frames...)
}

func (c *fakeConn) last(t *testing.T) map[string]any {
	t.Helper()
	fs := c.sent()
	if len(fs) == 0 {
		t.Fatalf("%s: no frames sent", c.id)
	}
	return fs[len(fs)-1]
}

func (c *fakeConn) count(id string) int {
	n := 0
	for _, f := range c.sent() {
		if f["id"] == id {
			n++
		}
	}
	return n
}

func frame(t *testing.T, v map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func newTestOrch(engine core.MediaEngine) *Orchestrator {
	return &Orchestrator{
		Registry:  app.NewRegistry(),
		Pipelines: app.NewPipelines(engine),
		Policy:    app.SimplePolicy{},
	}
}

func register(t *testing.T, o *Orchestrator, name string) *fakeConn {
	t.Helper()
	c := &fakeConn{id: core.ConnID("conn-" + name)}
	o.OnMessage(context.Background(), c, frame(t, map[string]any{"id": "register", "name": name}))
	if got := c.last(t)["response"]; got != "accepted" {
		t.Fatalf("register %s: response=%v", name, got)
	}
	return c
}

func state(t *testing.T, o *Orchestrator, name string) domain.CallState {
	t.Helper()
	s, ok := o.Registry.ByName(domain.Username(name))
	if !ok {
		t.Fatalf("%s not registered", name)
	}
	return s.State()
}

func callFrame(t *testing.T, from, to, offer string) []byte {
	return frame(t, map[string]any{"id": "call", "from": from, "to": to, "sdpOffer": offer})
}

func candidateFrame(t *testing.T, c string) []byte {
	return frame(t, map[string]any{"id": "onIceCandidate", "candidate": map[string]any{
		"candidate": c, "sdpMid": "0", "sdpMLineIndex": 0,
	}})
}

func iceCandidate(c string) domain.ICECandidate {
	return domain.ICECandidate{Candidate: c, SDPMid: "0"}
}

func TestRegister_Rejections(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := newTestOrch(mocks.NewMockMediaEngine(ctrl))
	ctx := context.Background()

	alice := register(t, o, "alice")

	dup := &fakeConn{id: "dup"}
	o.OnMessage(ctx, dup, frame(t, map[string]any{"id": "register", "name": "alice"}))
	if got := dup.last(t)["response"]; got != "rejected: user 'alice' already registered" {
		t.Fatalf("duplicate: response=%v", got)
	}

	blank := &fakeConn{id: "blank"}
	o.OnMessage(ctx, blank, frame(t, map[string]any{"id": "register", "name": "   "}))
	if got := blank.last(t)["response"]; got != "rejected: empty user name" {
		t.Fatalf("blank: response=%v", got)
	}

	o.OnMessage(ctx, alice, frame(t, map[string]any{"id": "register", "name": "bob"}))
	if got := alice.last(t)["response"]; got != "rejected: connection already registered as 'alice'" {
		t.Fatalf("re-register: response=%v", got)
	}
	if o.Registry.Len() != 1 {
		t.Fatalf("registry len=%d, want 1", o.Registry.Len())
	}
}

func TestCall_Rejections(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := newTestOrch(mocks.NewMockMediaEngine(ctrl))
	ctx := context.Background()

	alice := register(t, o, "alice")
	bob := register(t, o, "bob")
	carol := register(t, o, "carol")

	o.OnMessage(ctx, alice, callFrame(t, "alice", "  nobody ", "offer"))
	if got := alice.last(t)["response"]; got != "rejected: user 'nobody' is not registered" {
		t.Fatalf("nonexistent: response=%v", got)
	}
	if _, ok := state(t, o, "alice").(domain.Idle); !ok {
		t.Fatalf("caller left idle after failed call")
	}

	o.OnMessage(ctx, alice, callFrame(t, "alice", "alice", "offer"))
	if got := alice.last(t)["response"]; got != "rejected: cannot call yourself" {
		t.Fatalf("self: response=%v", got)
	}

	o.OnMessage(ctx, alice, callFrame(t, "alice", "bob", "offer"))
	if got := bob.last(t)["id"]; got != "incomingCall" {
		t.Fatalf("bob got %v, want incomingCall", got)
	}

	o.OnMessage(ctx, carol, callFrame(t, "carol", "bob", "offer"))
	if got := carol.last(t)["response"]; got != "rejected: user 'bob' is busy" {
		t.Fatalf("busy: response=%v", got)
	}
	if _, ok := state(t, o, "carol").(domain.Idle); !ok {
		t.Fatalf("carol left idle after busy rejection")
	}

	o.OnMessage(ctx, alice, callFrame(t, "alice", "carol", "offer"))
	if got := alice.last(t)["response"]; got != "rejected: already in a call" {
		t.Fatalf("already in call: response=%v", got)
	}
}

func TestCall_Declined(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockMediaEngine(ctrl)
	engine.EXPECT().AllocatePipeline(gomock.Any()).Times(0)
	o := newTestOrch(engine)
	ctx := context.Background()

	alice := register(t, o, "alice")
	bob := register(t, o, "bob")

	o.OnMessage(ctx, alice, callFrame(t, "alice", "bob", "offerA"))
	if got := bob.last(t)["from"]; got != "alice" {
		t.Fatalf("incomingCall from=%v", got)
	}
	o.OnMessage(ctx, bob, frame(t, map[string]any{"id": "incomingCallResponse", "from": "alice", "callResponse": "reject"}))

	if got := alice.last(t); got["id"] != "callResponse" || got["response"] != "rejected" {
		t.Fatalf("alice got %v", got)
	}
	if _, ok := state(t, o, "alice").(domain.Idle); !ok {
		t.Fatalf("caller not idle after decline")
	}
	if _, ok := state(t, o, "bob").(domain.BeingCalled); !ok {
		t.Fatalf("callee state changed by decline")
	}
	if o.Pipelines.Len() != 0 {
		t.Fatalf("pipelines=%d after decline", o.Pipelines.Len())
	}
}

func TestCall_EndToEnd(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockMediaEngine(ctrl)
	pl := mocks.NewMockPipeline(ctrl)
	pl.EXPECT().ID().Return(domain.PipelineID("p1")).AnyTimes()
	engine.EXPECT().AllocatePipeline(gomock.Any()).Return(pl, nil)

	var calleeCb func(domain.ICECandidate)
	gomock.InOrder(
		pl.EXPECT().AddRemoteCandidate(core.RoleCallee, iceCandidate("c1")).Return(nil),
		pl.EXPECT().AddRemoteCandidate(core.RoleCallee, iceCandidate("c2")).Return(nil),
		pl.EXPECT().AddRemoteCandidate(core.RoleCallee, iceCandidate("c3")).Return(nil),
		pl.EXPECT().OnICECandidate(core.RoleCallee, gomock.Any()).Do(func(_ core.EndpointRole, fn func(domain.ICECandidate)) {
			calleeCb = fn
		}),
		pl.EXPECT().OnICECandidate(core.RoleCaller, gomock.Any()),
		pl.EXPECT().AnswerForCallee("offerB").Return("answerB", nil),
		pl.EXPECT().BeginGathering(core.RoleCallee).Return(nil),
		pl.EXPECT().AnswerForCaller("offerA").Return("answerA", nil),
		pl.EXPECT().BeginGathering(core.RoleCaller).Return(nil),
		pl.EXPECT().AddRemoteCandidate(core.RoleCaller, iceCandidate("c9")).Return(nil),
		pl.EXPECT().Release().Return(nil).Times(1),
	)

	o := newTestOrch(engine)
	ctx := context.Background()
	alice := register(t, o, "alice")
	bob := register(t, o, "bob")

	o.OnMessage(ctx, alice, callFrame(t, "alice", "bob", "offerA"))
	for _, c := range []string{"c1", "c2", "c3"} {
		o.OnMessage(ctx, bob, candidateFrame(t, c))
	}
	o.OnMessage(ctx, bob, frame(t, map[string]any{
		"id": "incomingCallResponse", "from": "alice", "callResponse": "accept", "sdpOffer": "offerB",
	}))

	if got := bob.last(t); got["id"] != "startCommunication" || got["sdpAnswer"] != "answerB" {
		t.Fatalf("bob got %v", got)
	}
	if got := alice.last(t); got["response"] != "accepted" || got["sdpAnswer"] != "answerA" {
		t.Fatalf("alice got %v", got)
	}
	if st, ok := state(t, o, "alice").(domain.InCall); !ok || st.Peer != "bob" || st.Pipeline != "p1" {
		t.Fatalf("alice state=%#v", state(t, o, "alice"))
	}

	calleeCb(iceCandidate("local"))
	if got := bob.last(t); got["id"] != "iceCandidate" {
		t.Fatalf("bob got %v, want iceCandidate", got)
	}

	o.OnMessage(ctx, alice, candidateFrame(t, "c9"))

	o.OnMessage(ctx, alice, frame(t, map[string]any{"id": "stop"}))
	o.OnMessage(ctx, alice, frame(t, map[string]any{"id": "stop"}))
	o.OnMessage(ctx, bob, frame(t, map[string]any{"id": "stop"}))

	if n := bob.count("stopCommunication"); n != 1 {
		t.Fatalf("bob stopCommunication=%d, want 1", n)
	}
	if n := alice.count("stopCommunication"); n != 0 {
		t.Fatalf("alice stopCommunication=%d, want 0", n)
	}
	for _, name := range []string{"alice", "bob"} {
		if _, ok := state(t, o, name).(domain.Idle); !ok {
			t.Fatalf("%s not idle after stop", name)
		}
	}
	if o.Pipelines.Len() != 0 {
		t.Fatalf("pipelines=%d after stop", o.Pipelines.Len())
	}
	if o.Registry.Len() != 2 {
		t.Fatalf("stop dropped a registration")
	}
}

func TestAccept_AllocationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockMediaEngine(ctrl)
	engine.EXPECT().AllocatePipeline(gomock.Any()).Return(nil, errors.New("media server down"))

	o := newTestOrch(engine)
	ctx := context.Background()
	alice := register(t, o, "alice")
	bob := register(t, o, "bob")

	o.OnMessage(ctx, alice, callFrame(t, "alice", "bob", "offerA"))
	o.OnMessage(ctx, bob, frame(t, map[string]any{
		"id": "incomingCallResponse", "from": "alice", "callResponse": "accept", "sdpOffer": "offerB",
	}))

	got := alice.last(t)
	if got["response"] != "rejected" || !strings.Contains(got["message"].(string), "media server down") {
		t.Fatalf("alice got %v", got)
	}
	if bob.last(t)["id"] != "stopCommunication" {
		t.Fatalf("bob got %v", bob.last(t))
	}
	for _, id := range []core.ConnID{alice.id, bob.id} {
		if _, ok := o.Pipelines.Get(id); ok {
			t.Fatalf("tracker still holds %s", id)
		}
	}
	for _, name := range []string{"alice", "bob"} {
		if _, ok := state(t, o, name).(domain.Idle); !ok {
			t.Fatalf("%s not idle after rollback", name)
		}
	}
}

func TestAccept_AnswerFailureRollsBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockMediaEngine(ctrl)
	pl := mocks.NewMockPipeline(ctrl)
	pl.EXPECT().ID().Return(domain.PipelineID("p1")).AnyTimes()
	engine.EXPECT().AllocatePipeline(gomock.Any()).Return(pl, nil)
	pl.EXPECT().OnICECandidate(gomock.Any(), gomock.Any()).Times(2)
	pl.EXPECT().AnswerForCallee("offerB").Return("", errors.New("bad sdp"))
	pl.EXPECT().Release().Return(nil).Times(1)

	o := newTestOrch(engine)
	ctx := context.Background()
	alice := register(t, o, "alice")
	bob := register(t, o, "bob")

	o.OnMessage(ctx, alice, callFrame(t, "alice", "bob", "offerA"))
	o.OnMessage(ctx, bob, frame(t, map[string]any{
		"id": "incomingCallResponse", "from": "alice", "callResponse": "accept", "sdpOffer": "offerB",
	}))

	if got := alice.last(t)["response"]; got != "rejected" {
		t.Fatalf("alice response=%v", got)
	}
	if bob.count("startCommunication") != 0 || bob.last(t)["id"] != "stopCommunication" {
		t.Fatalf("bob frames=%v", bob.sent())
	}
	if o.Pipelines.Len() != 0 {
		t.Fatalf("pipelines=%d after rollback", o.Pipelines.Len())
	}
	s, _ := o.Registry.ByName("bob")
	if _, ok := s.Endpoint(); ok {
		t.Fatalf("bob still bound to failed endpoint")
	}
}

func TestOnMessage_DropsBadInput(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := newTestOrch(mocks.NewMockMediaEngine(ctrl))
	ctx := context.Background()

	stranger := &fakeConn{id: "stranger"}
	o.OnMessage(ctx, stranger, callFrame(t, "x", "y", "offer"))
	if n := len(stranger.sent()); n != 0 {
		t.Fatalf("unregistered connection got %d frames", n)
	}

	alice := register(t, o, "alice")
	before := len(alice.sent())
	for _, raw := range []string{
		`not json`,
		`{"name":"alice"}`,
		`{"id":"call","to":"bob"}`,
		`{"id":"onIceCandidate"}`,
		`{"id":"incomingCallResponse","callResponse":"accept","from":"bob"}`,
		`{"id":"dance"}`,
	} {
		o.OnMessage(ctx, alice, []byte(raw))
	}
	if n := len(alice.sent()); n != before {
		t.Fatalf("malformed input produced %d frames", n-before)
	}
	if _, ok := state(t, o, "alice").(domain.Idle); !ok {
		t.Fatalf("malformed input changed state")
	}
}

type panicPolicy struct{}

func (panicPolicy) OnBackPressure(*core.Session) app.BackpressureAction {
	panic("policy exploded")
}

func TestOnMessage_RecoversPanic(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := newTestOrch(mocks.NewMockMediaEngine(ctrl))
	ctx := context.Background()

	alice := register(t, o, "alice")
	bob := register(t, o, "bob")
	o.Policy = panicPolicy{}
	bob.mu.Lock()
	bob.full = true
	bob.mu.Unlock()

	o.OnMessage(ctx, alice, callFrame(t, "alice", "bob", "offerA"))

	register(t, o, "carol")

	o.Policy = app.SimplePolicy{}
	bob.mu.Lock()
	bob.full = false
	bob.mu.Unlock()
	o.OnMessage(ctx, alice, frame(t, map[string]any{"id": "stop"}))
	if _, ok := state(t, o, "alice").(domain.Idle); !ok {
		t.Fatalf("alice not idle after stop")
	}
	if bob.last(t)["id"] != "stopCommunication" {
		t.Fatalf("bob got %v", bob.last(t))
	}
}

func TestAccept_EnginePanicRollsBack(t *testing.T) {
	cases := []struct {
		name  string
		setup func(engine *mocks.MockMediaEngine, pl *mocks.MockPipeline)
	}{
		{
			name: "allocate",
			setup: func(engine *mocks.MockMediaEngine, _ *mocks.MockPipeline) {
				engine.EXPECT().AllocatePipeline(gomock.Any()).DoAndReturn(func(context.Context) (core.Pipeline, error) {
					panic("engine exploded")
				})
			},
		},
		{
			name: "answer",
			setup: func(engine *mocks.MockMediaEngine, pl *mocks.MockPipeline) {
				pl.EXPECT().ID().Return(domain.PipelineID("p1")).AnyTimes()
				engine.EXPECT().AllocatePipeline(gomock.Any()).Return(pl, nil)
				pl.EXPECT().OnICECandidate(gomock.Any(), gomock.Any()).Times(2)
				pl.EXPECT().AnswerForCallee("offerB").DoAndReturn(func(string) (string, error) {
					panic("engine exploded")
				})
				pl.EXPECT().Release().Return(nil).Times(1)
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			engine := mocks.NewMockMediaEngine(ctrl)
			tc.setup(engine, mocks.NewMockPipeline(ctrl))

			o := newTestOrch(engine)
			ctx := context.Background()
			alice := register(t, o, "alice")
			bob := register(t, o, "bob")

			o.OnMessage(ctx, alice, callFrame(t, "alice", "bob", "offerA"))
			o.OnMessage(ctx, bob, frame(t, map[string]any{
				"id": "incomingCallResponse", "from": "alice", "callResponse": "accept", "sdpOffer": "offerB",
			}))

			got := alice.last(t)
			if got["id"] != "callResponse" || got["response"] != "rejected" {
				t.Fatalf("alice got %v", got)
			}
			if msg, _ := got["message"].(string); !strings.Contains(msg, "engine exploded") {
				t.Fatalf("alice message=%q", msg)
			}
			if bob.last(t)["id"] != "stopCommunication" {
				t.Fatalf("bob got %v", bob.last(t))
			}
			if o.Pipelines.Len() != 0 {
				t.Fatalf("pipelines=%d after rollback", o.Pipelines.Len())
			}
			for _, name := range []string{"alice", "bob"} {
				if _, ok := state(t, o, name).(domain.Idle); !ok {
					t.Fatalf("%s not idle after rollback", name)
				}
			}
		})
	}
}

func buffered(t *testing.T, o *Orchestrator, name string) []domain.ICECandidate {
	t.Helper()
	s, ok := o.Registry.ByName(domain.Username(name))
	if !ok {
		t.Fatalf("%s not registered", name)
	}
	return s.BufferedCandidates()
}

func TestStop_ClearsBufferedCandidates(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockMediaEngine(ctrl)
	pl := mocks.NewMockPipeline(ctrl)
	pl.EXPECT().ID().Return(domain.PipelineID("p2")).AnyTimes()

	o := newTestOrch(engine)
	ctx := context.Background()
	alice := register(t, o, "alice")
	bob := register(t, o, "bob")
	carol := register(t, o, "carol")

	o.OnMessage(ctx, alice, callFrame(t, "alice", "bob", "offerA"))
	o.OnMessage(ctx, alice, candidateFrame(t, "old-call"))
	o.OnMessage(ctx, bob, frame(t, map[string]any{"id": "stop"}))
	if got := buffered(t, o, "alice"); len(got) != 0 {
		t.Fatalf("alice buffered after peer stop=%v", got)
	}

	o.OnMessage(ctx, alice, callFrame(t, "alice", "carol", "offerA"))
	o.OnMessage(ctx, alice, candidateFrame(t, "declined-call"))
	o.OnMessage(ctx, carol, frame(t, map[string]any{"id": "incomingCallResponse", "from": "alice", "callResponse": "reject"}))
	if got := buffered(t, o, "alice"); len(got) != 0 {
		t.Fatalf("alice buffered after decline=%v", got)
	}
	o.OnMessage(ctx, carol, frame(t, map[string]any{"id": "stop"}))

	// Only the new call's candidate may reach the new pipeline.
	engine.EXPECT().AllocatePipeline(gomock.Any()).Return(pl, nil)
	pl.EXPECT().AddRemoteCandidate(core.RoleCaller, iceCandidate("fresh")).Return(nil)
	pl.EXPECT().OnICECandidate(gomock.Any(), gomock.Any()).Times(2)
	pl.EXPECT().AnswerForCallee("offerC").Return("answerC", nil)
	pl.EXPECT().BeginGathering(gomock.Any()).Return(nil).Times(2)
	pl.EXPECT().AnswerForCaller("offerA").Return("answerA", nil)

	o.OnMessage(ctx, alice, callFrame(t, "alice", "carol", "offerA"))
	o.OnMessage(ctx, alice, candidateFrame(t, "fresh"))
	o.OnMessage(ctx, carol, frame(t, map[string]any{
		"id": "incomingCallResponse", "from": "alice", "callResponse": "accept", "sdpOffer": "offerC",
	}))
	if got := alice.last(t); got["response"] != "accepted" {
		t.Fatalf("alice got %v", got)
	}
}

func TestAccept_RollbackClearsBufferedCandidates(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockMediaEngine(ctrl)
	engine.EXPECT().AllocatePipeline(gomock.Any()).Return(nil, errors.New("media server down"))

	o := newTestOrch(engine)
	ctx := context.Background()
	alice := register(t, o, "alice")
	bob := register(t, o, "bob")

	o.OnMessage(ctx, alice, callFrame(t, "alice", "bob", "offerA"))
	o.OnMessage(ctx, alice, candidateFrame(t, "a1"))
	o.OnMessage(ctx, bob, candidateFrame(t, "b1"))
	o.OnMessage(ctx, bob, frame(t, map[string]any{
		"id": "incomingCallResponse", "from": "alice", "callResponse": "accept", "sdpOffer": "offerB",
	}))

	for _, name := range []string{"alice", "bob"} {
		if got := buffered(t, o, name); len(got) != 0 {
			t.Fatalf("%s buffered after rollback=%v", name, got)
		}
	}
}

func TestCall_DeclineWithoutStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := newTestOrch(mocks.NewMockMediaEngine(ctrl))
	ctx := context.Background()

	alice := register(t, o, "alice")
	bob := register(t, o, "bob")
	carol := register(t, o, "carol")
	decline := frame(t, map[string]any{"id": "incomingCallResponse", "from": "alice", "callResponse": "reject"})

	o.OnMessage(ctx, alice, callFrame(t, "alice", "bob", "offerA"))
	o.OnMessage(ctx, bob, decline)

	o.OnMessage(ctx, carol, callFrame(t, "carol", "bob", "offerC"))
	if got := bob.last(t); got["id"] != "incomingCall" || got["from"] != "carol" {
		t.Fatalf("bob got %v, want incomingCall from carol", got)
	}
	o.OnMessage(ctx, carol, frame(t, map[string]any{"id": "stop"}))

	o.OnMessage(ctx, alice, callFrame(t, "alice", "bob", "offerA"))
	o.OnMessage(ctx, bob, decline)

	o.OnMessage(ctx, bob, callFrame(t, "bob", "carol", "offerB"))
	if got := carol.last(t); got["id"] != "incomingCall" || got["from"] != "bob" {
		t.Fatalf("carol got %v, want incomingCall from bob", got)
	}
	if st, ok := state(t, o, "bob").(domain.Calling); !ok || st.Peer != "carol" {
		t.Fatalf("bob state=%#v", state(t, o, "bob"))
	}
}

func TestStop_KeepsStateSetByConcurrentCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := newTestOrch(mocks.NewMockMediaEngine(ctrl))
	ctx := context.Background()

	alice := register(t, o, "alice")
	bob := register(t, o, "bob")
	carol := register(t, o, "carol")
	aliceSession, _ := o.Registry.ByName("alice")

	o.OnMessage(ctx, alice, callFrame(t, "alice", "bob", "offerA"))

	// While alice's stop notifies bob, alice is reset by another path and
	// carol rings her.
	var once sync.Once
	bob.mu.Lock()
	bob.onSend = func(m map[string]any) {
		if m["id"] != "stopCommunication" {
			return
		}
		once.Do(func() {
			aliceSession.Reset()
			o.OnMessage(ctx, carol, callFrame(t, "carol", "alice", "offerC"))
		})
	}
	bob.mu.Unlock()

	o.OnMessage(ctx, alice, frame(t, map[string]any{"id": "stop"}))

	if st, ok := state(t, o, "alice").(domain.BeingCalled); !ok || st.Peer != "carol" {
		t.Fatalf("alice state=%#v, want being called by carol", state(t, o, "alice"))
	}
	if st, ok := state(t, o, "carol").(domain.Calling); !ok || st.Peer != "alice" {
		t.Fatalf("carol state=%#v", state(t, o, "carol"))
	}
	if got := alice.last(t); got["id"] != "incomingCall" || got["from"] != "carol" {
		t.Fatalf("alice got %v", got)
	}
}

func TestOnClosed_TearsDownCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := newTestOrch(mocks.NewMockMediaEngine(ctrl))
	ctx := context.Background()

	alice := register(t, o, "alice")
	bob := register(t, o, "bob")
	o.OnMessage(ctx, alice, callFrame(t, "alice", "bob", "offerA"))

	o.OnClosed(ctx, alice)

	if bob.last(t)["id"] != "stopCommunication" {
		t.Fatalf("bob got %v", bob.last(t))
	}
	if _, ok := state(t, o, "bob").(domain.Idle); !ok {
		t.Fatalf("bob not idle after caller left")
	}
	if o.Registry.Exists("alice") {
		t.Fatalf("alice still registered after close")
	}
	register(t, o, "alice")
}

func TestSend_BackpressureKicks(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := newTestOrch(mocks.NewMockMediaEngine(ctrl))
	ctx := context.Background()

	alice := register(t, o, "alice")
	bob := register(t, o, "bob")
	bob.mu.Lock()
	bob.full = true
	bob.mu.Unlock()

	o.OnMessage(ctx, alice, callFrame(t, "alice", "bob", "offerA"))

	bob.mu.Lock()
	defer bob.mu.Unlock()
	if !bob.closed {
		t.Fatalf("slow connection was not closed")
	}
}
