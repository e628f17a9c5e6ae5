package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"babyguardian-vitals/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type frame struct {
	event string
	data  string
}

// recordingSink 记录收到的事件
type recordingSink struct {
	mu     sync.Mutex
	frames []frame
	fail   error
	block  chan struct{}
}

func (s *recordingSink) Send(event string, payload []byte) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.frames = append(s.frames, frame{event: event, data: string(payload)})
	return nil
}

func (s *recordingSink) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		out = append(out, f.event)
	}
	return out
}

func (s *recordingSink) framesCopy() []frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]frame(nil), s.frames...)
}

type staticStatus map[string]bool

func (s staticStatus) AllStatuses() map[string]bool {
	out := make(map[string]bool, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func newTestHub() *Hub {
	return New(Options{QueueSize: 8, PingInterval: 10 * time.Millisecond}, nil, zap.NewNop())
}

func TestSubscribe_SendsInitialStatusForAcceptedDevices(t *testing.T) {
	h := newTestHub()
	h.SetStatusSource(staticStatus{"dev-a": true, "dev-b": false, "dev-c": true})

	sink := &recordingSink{}
	sub := h.Subscribe(sink, AcceptDevices("dev-a", "DEV-B"))
	defer h.Unsubscribe(sub)

	require.Eventually(t, func() bool { return len(sink.events()) == 2 }, time.Second, 5*time.Millisecond)

	frames := sink.framesCopy()
	var first, second models.InitialStatusPayload
	require.NoError(t, json.Unmarshal([]byte(frames[0].data), &first))
	require.NoError(t, json.Unmarshal([]byte(frames[1].data), &second))

	assert.Equal(t, models.EventInitialStatus, frames[0].event)
	assert.Equal(t, models.PushTypeInitialStatus, first.Type)
	assert.Equal(t, "dev-a", first.DeviceID)
	assert.True(t, first.Connected)
	assert.Equal(t, "dev-b", second.DeviceID)
	assert.False(t, second.Connected)
}

func TestBroadcast_RespectsFilter(t *testing.T) {
	h := newTestHub()

	onlyA := &recordingSink{}
	all := &recordingSink{}
	subA := h.Subscribe(onlyA, AcceptDevices("dev-a"))
	subAll := h.Subscribe(all, nil)
	defer h.Unsubscribe(subA)
	defer h.Unsubscribe(subAll)

	h.Broadcast("dev-b", models.EventVitals, map[string]string{"deviceId": "dev-b"})
	h.Broadcast("dev-a", models.EventAlert, map[string]string{"deviceId": "dev-a"})

	require.Eventually(t, func() bool { return len(all.events()) == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(onlyA.events()) == 1 }, time.Second, 5*time.Millisecond)

	for _, f := range onlyA.framesCopy() {
		assert.NotContains(t, f.data, "dev-b")
	}
	assert.Equal(t, []string{models.EventAlert}, onlyA.events())
}

func TestBroadcastUnfiltered_ReachesEveryone(t *testing.T) {
	h := newTestHub()
	a, b := &recordingSink{}, &recordingSink{}
	h.Subscribe(a, AcceptDevices("dev-a"))
	h.Subscribe(b, AcceptDevices("dev-b"))

	h.BroadcastUnfiltered(models.EventPing, models.PingPayload{Type: models.PushTypePing})

	require.Eventually(t, func() bool {
		return len(a.events()) == 1 && len(b.events()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSendFailureRemovesSubscriber(t *testing.T) {
	h := newTestHub()
	sink := &recordingSink{fail: errors.New("broken pipe")}
	sub := h.Subscribe(sink, nil)
	require.Equal(t, 1, h.Count())

	h.Broadcast("dev-a", models.EventVitals, []byte(`{}`))

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscriber not removed after send failure")
	}
	assert.Equal(t, 0, h.Count())
	assert.Equal(t, ReasonSendError, sub.Reason())
}

func TestQueueFullRemovesSubscriberWithoutBlocking(t *testing.T) {
	h := New(Options{QueueSize: 1}, nil, zap.NewNop())
	block := make(chan struct{})
	sink := &recordingSink{block: block}
	sub := h.Subscribe(sink, nil)
	defer close(block)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Broadcast("dev-a", models.EventVitals, []byte(`{}`))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
	assert.Equal(t, 0, h.Count())
	assert.Equal(t, ReasonQueueFull, sub.Reason())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	h := newTestHub()
	sub := h.Subscribe(&recordingSink{}, nil)

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	h.Unsubscribe(nil)

	<-sub.Done()
	assert.Equal(t, 0, h.Count())
	assert.Equal(t, ReasonUnsubscribe, sub.Reason())
}

func TestRun_PingsAndClosesOnCancel(t *testing.T) {
	h := newTestHub()
	sink := &recordingSink{}
	sub := h.Subscribe(sink, AcceptDevices("nothing"))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		for _, e := range sink.events() {
			if e == models.EventPing {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-stopped
	<-sub.Done()
	assert.Equal(t, ReasonShutdown, sub.Reason())

	late := h.Subscribe(&recordingSink{}, nil)
	select {
	case <-late.Done():
	case <-time.After(time.Second):
		t.Fatal("subscriber registered after shutdown never finished")
	}
	assert.Equal(t, ReasonShutdown, late.Reason())
	assert.Zero(t, h.Count())
}

func TestConcurrentSubscribeAndBroadcast(t *testing.T) {
	h := New(Options{QueueSize: 1024}, nil, zap.NewNop())
	h.SetStatusSource(staticStatus{"dev-a": true})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := h.Subscribe(&recordingSink{}, nil)
			h.Unsubscribe(sub)
		}()
		go func() {
			defer wg.Done()
			h.Broadcast("dev-a", models.EventVitals, []byte(`{}`))
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, h.Count())
}
