package serial

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-mcusim/pkg/config"
)

func TestRing_FIFO(t *testing.T) {
	r := NewRing(3)
	for _, b := range []byte("abc") {
		require.True(t, r.TryPush(b))
	}
	assert.False(t, r.TryPush('d'))
	assert.Equal(t, 3, r.Len())

	b, ok := r.Peek()
	require.True(t, ok)
	assert.Equal(t, byte('a'), b)

	var got []byte
	for {
		b, ok := r.TryPop()
		if !ok {
			break
		}
		got = append(got, b)
		r.TryPush('x')
		if len(got) == 5 {
			break
		}
	}
	assert.Equal(t, "abcxx", string(got))
}

func TestRing_Backpressure(t *testing.T) {
	r := NewRing(2)
	ctx := context.Background()
	const total = 200

	var got []byte
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range total {
			b, err := r.Pop(ctx)
			if err != nil {
				return
			}
			got = append(got, b)
		}
	}()

	for i := range total {
		require.NoError(t, r.Push(ctx, byte(i)))
		assert.LessOrEqual(t, r.Len(), r.Cap())
	}
	<-done

	require.Len(t, got, total)
	for i, b := range got {
		assert.Equal(t, byte(i), b)
	}
}

func TestRing_Cancellation(t *testing.T) {
	r := NewRing(1)
	require.True(t, r.TryPush(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Push(ctx, 2), context.DeadlineExceeded)

	empty := NewRing(1)
	_, err := empty.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, err = empty.PeekWait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, r.WaitEmpty(ctx), context.DeadlineExceeded)
}

func TestRing_ClearWakesWaiters(t *testing.T) {
	drain, full := NewRing(1), NewRing(1)
	require.True(t, drain.TryPush(1))
	require.True(t, full.TryPush(1))

	errs := make(chan error, 2)
	go func() { errs <- drain.WaitEmpty(context.Background()) }()
	go func() { errs <- full.Push(context.Background(), 2) }()

	time.Sleep(10 * time.Millisecond)
	drain.Clear()
	full.Clear()

	for range 2 {
		select {
		case err := <-errs:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("waiter not woken")
		}
	}
}

// runClock advances simulated time by step every millisecond until the
// test ends.
func runClock(t *testing.T, u *UART, start, step time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		now := start
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now += step
				u.Update(now)
			}
		}
	}()
}

type sink struct {
	mu  sync.Mutex
	got []byte
}

func (s *sink) put(b byte) {
	s.mu.Lock()
	s.got = append(s.got, b)
	s.mu.Unlock()
}

func (s *sink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.got)
}

func TestUART_PacedBySimulationTime(t *testing.T) {
	out := &sink{}
	u := NewUART(OnArduinoSend(out.put))
	u.Begin(9600)
	t.Cleanup(u.Stop)

	for _, b := range []byte("hi") {
		require.True(t, u.TryWrite(b))
	}

	// one byte takes 8/9600 s, about 833us
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, out.String())
	assert.False(t, u.Drained())

	u.Update(900 * time.Microsecond)
	assert.Eventually(t, func() bool { return out.String() == "h" }, time.Second, time.Millisecond)

	runClock(t, u, 900*time.Microsecond, 100*time.Microsecond)
	assert.Eventually(t, func() bool { return out.String() == "hi" }, time.Second, time.Millisecond)
	assert.Eventually(t, u.Drained, time.Second, time.Millisecond)
}

func TestUART_BaudClamped(t *testing.T) {
	u := NewUART()
	u.Begin(1)
	assert.Equal(t, 300, u.Baud())
	u.Begin(10_000_000)
	assert.Equal(t, 2_000_000, u.Baud())
	u.Stop()
	assert.False(t, u.Running())
}

func TestUART_WriteBeforeBeginIsDropped(t *testing.T) {
	u := NewUART()
	assert.True(t, u.TryWrite('x'))
	require.NoError(t, u.Write(context.Background(), 'y'))
	assert.True(t, u.Drained())
	assert.NoError(t, u.Flush(context.Background()))
}

func TestUART_WriteBlocksWhenFull(t *testing.T) {
	cfg := config.Default().Serial
	cfg.BufferSize = 2
	out := &sink{}
	u := NewUART(WithConfig(cfg), OnArduinoSend(out.put))
	u.Begin(115200)
	t.Cleanup(u.Stop)

	require.True(t, u.TryWrite('a'))
	require.True(t, u.TryWrite('b'))
	assert.False(t, u.TryWrite('c'))

	written := make(chan error, 1)
	go func() { written <- u.Write(context.Background(), 'c') }()

	select {
	case <-written:
		t.Fatal("write did not block on a full ring")
	case <-time.After(20 * time.Millisecond):
	}

	runClock(t, u, 0, time.Millisecond)
	select {
	case err := <-written:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("write never unblocked")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, u.Flush(ctx))
	assert.Equal(t, "abc", out.String())
}

func TestUART_EndStopsAndClearsInput(t *testing.T) {
	u := NewUART()
	u.Begin(9600)
	require.NoError(t, u.WriteToArduino(context.Background(), 'z'))
	require.True(t, u.TryWrite('a'))
	runClock(t, u, 0, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, u.End(ctx))
	assert.False(t, u.Running())
	assert.Equal(t, 0, u.Available())
	assert.Equal(t, -1, u.Read())
}

func TestUART_Receive(t *testing.T) {
	cfg := config.Default().Serial
	cfg.BufferSize = 2
	u := NewUART(WithConfig(cfg))

	require.NoError(t, u.WriteToArduino(context.Background(), 'o'))
	require.True(t, u.TryWriteToArduino('k'))
	assert.False(t, u.TryWriteToArduino('!'))

	assert.Equal(t, 2, u.Available())
	assert.Equal(t, int('o'), u.Peek())
	assert.Equal(t, int('o'), u.Read())
	assert.Equal(t, int('k'), u.Read())
	assert.Equal(t, -1, u.Peek())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.True(t, u.TryWriteToArduino('a'))
	require.True(t, u.TryWriteToArduino('b'))
	assert.ErrorIs(t, u.WriteToArduino(ctx, 'c'), context.DeadlineExceeded)

	u.Reset()
	assert.Equal(t, 0, u.Available())
}
