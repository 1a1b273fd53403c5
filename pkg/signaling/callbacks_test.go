package signaling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewayrtc/core/internal/testfakes"
)

func newCallbacksTestRuntime() (*Runtime, *testfakes.FakeTransport) {
	transport := testfakes.NewFakeTransport("fake")
	rt := NewRuntime(RuntimeOptions{
		Info: ServerInfo{Name: "test"},
		ICE:  testfakes.NewFakeICE(),
		SDP:  testfakes.NewFakeSDP(),
	})
	rt.RegisterTransport(transport)
	return rt, transport
}

type callbackHandleRef struct{ h *Handle }

func (r callbackHandleRef) signalingHandle() *Handle { return r.h }

func TestPushEventSendsThroughOriginTransport(t *testing.T) {
	rt, transport := newCallbacksTestRuntime()
	defer rt.Stop()

	s, err := rt.Registry.Create(0, TransportOrigin{Transport: "fake", Instance: "c1"})
	require.NoError(t, err)
	h := newHandle(1, "", s)
	s.addHandle(h)

	code := rt.Callbacks().PushEvent(context.Background(), callbackHandleRef{h}, "tx1", []byte(`{"echo":true}`), nil)
	assert.Equal(t, CodeOK, code)
	require.Equal(t, 1, transport.SentCount())
}

func TestPushEventReturnsHandleNotFoundForUnrelatedRef(t *testing.T) {
	rt, _ := newCallbacksTestRuntime()
	defer rt.Stop()

	code := rt.Callbacks().PushEvent(context.Background(), nil, "tx1", []byte(`{}`), nil)
	assert.Equal(t, CodeHandleNotFound, code)
}

func TestProcessOutboundJSEPSetsUpAgentForOffer(t *testing.T) {
	rt, _ := newCallbacksTestRuntime()
	defer rt.Stop()

	s, err := rt.Registry.Create(0, TransportOrigin{Transport: "fake", Instance: "c1"})
	require.NoError(t, err)
	h := newHandle(1, "", s)
	s.addHandle(h)

	sdp, err := rt.processOutboundJSEP(context.Background(), h, &JSEPEnvelope{Type: "offer", SDP: "v=0\r\n"})
	require.NoError(t, err)
	assert.Equal(t, "v=0\r\n", sdp)
	assert.NotNil(t, h.getAgent())
	local, _ := h.SDPs()
	assert.Equal(t, "v=0\r\n", local)
}

func TestAwaitGatheringCompleteReturnsWhenDone(t *testing.T) {
	rt, _ := newCallbacksTestRuntime()
	defer rt.Stop()

	s, err := rt.Registry.Create(0, TransportOrigin{Transport: "fake", Instance: "c1"})
	require.NoError(t, err)
	h := newHandle(1, "", s)
	s.addHandle(h)

	done := make(chan struct{})
	go func() {
		rt.awaitGatheringComplete(context.Background(), h, &struct{}{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("awaitGatheringComplete did not return for an already-complete fake agent")
	}
}

func TestAwaitGatheringCompleteAbortsOnStopFlag(t *testing.T) {
	rt, _ := newCallbacksTestRuntime()
	defer rt.Stop()
	rt.ICE = &stallingICE{}

	s, err := rt.Registry.Create(0, TransportOrigin{Transport: "fake", Instance: "c1"})
	require.NoError(t, err)
	h := newHandle(1, "", s)
	s.addHandle(h)
	h.setFlag(FlagStop)

	done := make(chan struct{})
	go func() {
		rt.awaitGatheringComplete(context.Background(), h, &struct{}{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("awaitGatheringComplete did not abort on FlagStop")
	}
}

type stallingICE struct{ testfakes.FakeICE }

func (*stallingICE) GatheringComplete(agent ICEAgentRef) (bool, bool) { return false, true }

func TestICEConnectedSetsReadyAndInvokesSetupMedia(t *testing.T) {
	rt, _ := newCallbacksTestRuntime()
	defer rt.Stop()

	s, err := rt.Registry.Create(0, TransportOrigin{Transport: "fake", Instance: "c1"})
	require.NoError(t, err)
	h := newHandle(1, "", s)
	s.addHandle(h)
	h.setFlag(FlagStart)
	plugin := testfakes.NewFakePlugin("plugin.test")
	ref, err := plugin.CreateSession(context.Background(), h)
	require.NoError(t, err)
	h.attachPlugin(plugin, ref)

	rt.ICECallbacks().Connected(context.Background(), h)

	assert.True(t, h.hasFlag(FlagReady))
	assert.False(t, h.hasFlag(FlagStart))
	assert.Equal(t, 1, plugin.MediaSetup)
}

func TestICEAllCandidatesReceivedSetsAllTricklesAndStart(t *testing.T) {
	rt, _ := newCallbacksTestRuntime()
	defer rt.Stop()

	s, err := rt.Registry.Create(0, TransportOrigin{Transport: "fake", Instance: "c1"})
	require.NoError(t, err)
	h := newHandle(1, "", s)
	s.addHandle(h)

	rt.ICECallbacks().AllCandidatesReceived(h)

	assert.True(t, h.hasFlag(FlagAllTrickles))
	assert.True(t, h.hasFlag(FlagStart))
}

func TestProcessOutboundJSEPAnswerDrainsBufferedTrickles(t *testing.T) {
	rt, _ := newCallbacksTestRuntime()
	defer rt.Stop()

	s, err := rt.Registry.Create(0, TransportOrigin{Transport: "fake", Instance: "c1"})
	require.NoError(t, err)
	h := newHandle(1, "", s)
	s.addHandle(h)

	// Client sends an offer; the plugin will answer via push_event, so the
	// agent is set up here the way processInboundJSEP would set it up for
	// an offer received over the wire.
	_, err = rt.processOutboundJSEP(context.Background(), h, &JSEPEnvelope{Type: "offer", SDP: "v=0\r\n"})
	require.NoError(t, err)

	h.bufferTrickle(PendingTrickle{TransactionID: "t1", CandidateOrArray: []byte(`{"candidate":"..."}`), ReceivedAt: time.Now()})

	_, err = rt.processOutboundJSEP(context.Background(), h, &JSEPEnvelope{Type: "answer", SDP: "v=0\r\n"})
	require.NoError(t, err)

	fake := rt.ICE.(*testfakes.FakeICE)
	assert.Len(t, fake.Fed, 1)
	assert.True(t, h.hasFlag(FlagTrickle))
}

func TestClosePCDestroysHandleOnTimerLoop(t *testing.T) {
	rt, _ := newCallbacksTestRuntime()
	defer rt.Stop()

	s, err := rt.Registry.Create(0, TransportOrigin{Transport: "fake", Instance: "c1"})
	require.NoError(t, err)
	h := newHandle(1, "", s)
	s.addHandle(h)
	plugin := testfakes.NewFakePlugin("plugin.test")
	ref, err := plugin.CreateSession(context.Background(), h)
	require.NoError(t, err)
	h.attachPlugin(plugin, ref)

	rt.Callbacks().ClosePC(callbackHandleRef{h})

	require.Eventually(t, func() bool {
		return plugin.Destroyed == 1
	}, time.Second, 5*time.Millisecond)
}
