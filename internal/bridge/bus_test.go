package bridge

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"netrelay/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type collector struct {
	mu  sync.Mutex
	got []string
}

func (c *collector) handle(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, p)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.got...)
}

func TestEmitDeliversInOrder(t *testing.T) {
	b := New("window-1", logger.NewNop(), 1024)
	defer b.Close()

	var c collector
	b.Subscribe("http-request", c.handle)

	want := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		p := strconv.Itoa(i)
		want = append(want, p)
		b.Emit("http-request", p)
	}

	require.Eventually(t, func() bool { return len(c.snapshot()) == len(want) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, c.snapshot())
}

func TestChannelsAreIsolated(t *testing.T) {
	b := New("window-1", nil, 0)
	defer b.Close()

	var a, other collector
	b.Subscribe("a", a.handle)
	b.Subscribe("b", other.handle)

	b.Emit("a", "1")
	b.Emit("c", "ignored")

	require.Eventually(t, func() bool { return len(a.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, other.snapshot())
}

func TestEmitWithoutSubscriberIsNoop(t *testing.T) {
	b := New("window-1", nil, 0)
	defer b.Close()
	b.Emit("http-request", "lost")
	assert.Equal(t, 0, b.Subscribers("http-request"))
}

func TestEmitNeverBlocksAndDropsWhenFull(t *testing.T) {
	b := New("window-1", nil, 2)
	defer b.Close()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	b.Subscribe("ch", func(string) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	b.Emit("ch", "first")
	<-started

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Emit("ch", "x")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a slow subscriber")
	}
	assert.Equal(t, int64(8), b.Dropped())
	close(release)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New("window-1", nil, 0)
	defer b.Close()

	var c collector
	sub := b.Subscribe("ch", c.handle)
	b.Emit("ch", "before")
	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	sub.Unsubscribe()
	assert.False(t, sub.Active())
	assert.Equal(t, 0, b.Subscribers("ch"))

	b.Emit("ch", "after")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"before"}, c.snapshot())

	sub.Unsubscribe()
}

func TestUnsubscribeWaitsForInflightHandler(t *testing.T) {
	b := New("window-1", nil, 0)
	defer b.Close()

	entered := make(chan struct{})
	var mu sync.Mutex
	finished := false
	sub := b.Subscribe("ch", func(string) {
		close(entered)
		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		finished = true
		mu.Unlock()
	})
	b.Emit("ch", "x")
	<-entered
	sub.Unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, finished)
}

func TestQueuedPayloadsDiscardedAfterUnsubscribe(t *testing.T) {
	b := New("window-1", nil, 16)
	defer b.Close()

	release := make(chan struct{})
	entered := make(chan struct{})
	var c collector
	sub := b.Subscribe("ch", func(p string) {
		if p == "block" {
			close(entered)
			<-release
		}
		c.handle(p)
	})
	b.Emit("ch", "block")
	for i := 0; i < 5; i++ {
		b.Emit("ch", "queued")
	}

	<-entered
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	sub.Unsubscribe()

	assert.Equal(t, []string{"block"}, c.snapshot())
}

func TestCloseStopsEverything(t *testing.T) {
	b := New("window-1", nil, 0)
	var c collector
	s1 := b.Subscribe("a", c.handle)
	s2 := b.Subscribe("b", c.handle)
	b.Close()
	b.Close()

	assert.False(t, s1.Active())
	assert.False(t, s2.Active())
	b.Emit("a", "x")

	late := b.Subscribe("a", c.handle)
	assert.False(t, late.Active())
	late.Unsubscribe()
	assert.Empty(t, c.snapshot())
}

func TestHandlerPanicKeepsSubscription(t *testing.T) {
	b := New("window-1", nil, 0)
	defer b.Close()

	var c collector
	b.Subscribe("ch", func(p string) {
		if p == "bad" {
			panic("boom")
		}
		c.handle(p)
	})
	b.Emit("ch", "bad")
	b.Emit("ch", "good")
	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"good"}, c.snapshot())
}
