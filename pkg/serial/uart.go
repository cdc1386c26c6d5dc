package serial

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/edp1096/toy-mcusim/pkg/config"
)

// UART carries bytes between the firmware and the host. The transmit ring
// holds bytes written by the firmware; a pacing goroutine releases one every
// eight bit times of simulation time (fed by Update) to OnArduinoSend. The
// receive ring holds bytes written by the host for the firmware to read.
type UART struct {
	tx      *Ring
	rx      *Ring
	minBaud int
	maxBaud int
	logger  *slog.Logger

	mu      sync.Mutex
	onSend  func(b byte)
	baud    int
	now     time.Duration
	next    time.Duration
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	clock   chan struct{}
}

type Option func(*UART)

func WithLogger(l *slog.Logger) Option {
	return func(u *UART) { u.logger = l }
}

// WithConfig sizes the rings and the baud range.
func WithConfig(cfg config.Serial) Option {
	return func(u *UART) {
		u.tx = NewRing(cfg.BufferSize)
		u.rx = NewRing(cfg.BufferSize)
		u.minBaud, u.maxBaud = cfg.MinBaud, cfg.MaxBaud
	}
}

// OnArduinoSend sets the receiver of transmitted bytes. It runs on the
// pacing goroutine.
func OnArduinoSend(fn func(b byte)) Option {
	return func(u *UART) { u.onSend = fn }
}

func NewUART(opts ...Option) *UART {
	u := &UART{clock: make(chan struct{}, 1)}
	WithConfig(config.Default().Serial)(u)
	for _, opt := range opts {
		opt(u)
	}
	if u.logger == nil {
		u.logger = slog.Default()
	}
	return u
}

func (u *UART) SetOnArduinoSend(fn func(b byte)) {
	u.mu.Lock()
	u.onSend = fn
	u.mu.Unlock()
}

// Begin sets the baud rate, clamped to the supported range, and starts the
// transmitter. Calling it again only changes the rate.
func (u *UART) Begin(baud int) {
	baud = min(max(baud, u.minBaud), u.maxBaud)

	u.mu.Lock()
	defer u.mu.Unlock()
	u.baud = baud
	if u.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	u.cancel = cancel
	u.running = true
	u.wg.Add(1)
	go u.pump(ctx)
	u.logger.Debug("serial started", "baud", baud)
}

// byteTime is eight bit times at the current rate.
func (u *UART) byteTime() time.Duration {
	return 8 * time.Second / time.Duration(u.baud)
}

func (u *UART) pump(ctx context.Context) {
	defer u.wg.Done()
	for {
		b, err := u.tx.PeekWait(ctx)
		if err != nil {
			return
		}

		u.mu.Lock()
		due := max(u.next, u.now) + u.byteTime()
		u.mu.Unlock()

		if !u.waitUntil(ctx, due) {
			return
		}

		u.mu.Lock()
		u.next = due
		fn := u.onSend
		u.mu.Unlock()

		u.tx.TryPop()
		if fn != nil {
			fn(b)
		}
	}
}

func (u *UART) waitUntil(ctx context.Context, due time.Duration) bool {
	for {
		u.mu.Lock()
		now := u.now
		u.mu.Unlock()
		if now >= due {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-u.clock:
		}
	}
}

// Update advances the UART's view of simulation time.
func (u *UART) Update(t time.Duration) {
	u.mu.Lock()
	u.now = t
	u.mu.Unlock()
	notify(u.clock)
}

func (u *UART) Running() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.running
}

func (u *UART) Baud() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.baud
}

// Write queues b for transmission, waiting while the transmit ring is full.
// Bytes written before Begin are dropped.
func (u *UART) Write(ctx context.Context, b byte) error {
	if !u.Running() {
		return nil
	}
	return u.tx.Push(ctx, b)
}

// TryWrite is Write without waiting; false means the ring is full.
func (u *UART) TryWrite(b byte) bool {
	if !u.Running() {
		return true
	}
	return u.tx.TryPush(b)
}

// Flush waits until every queued byte has been transmitted.
func (u *UART) Flush(ctx context.Context) error {
	if !u.Running() {
		return nil
	}
	return u.tx.WaitEmpty(ctx)
}

// End flushes, stops the transmitter and discards unread input.
func (u *UART) End(ctx context.Context) error {
	if err := u.Flush(ctx); err != nil {
		return err
	}
	u.Stop()
	u.rx.Clear()
	return nil
}

// Stop halts the transmitter at once, discarding queued output.
func (u *UART) Stop() {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return
	}
	u.running = false
	cancel := u.cancel
	u.mu.Unlock()

	cancel()
	u.wg.Wait()
	u.tx.Clear()
	u.logger.Debug("serial stopped")
}

// Reset stops the transmitter and empties both rings.
func (u *UART) Reset() {
	u.Stop()
	u.tx.Clear()
	u.rx.Clear()
	u.mu.Lock()
	u.next = 0
	u.mu.Unlock()
}

// Drained reports whether every written byte has been transmitted.
func (u *UART) Drained() bool { return u.tx.Len() == 0 }

// WriteToArduino queues b for the firmware, waiting while the receive ring
// is full.
func (u *UART) WriteToArduino(ctx context.Context, b byte) error {
	return u.rx.Push(ctx, b)
}

// TryWriteToArduino is WriteToArduino without waiting.
func (u *UART) TryWriteToArduino(b byte) bool { return u.rx.TryPush(b) }

func (u *UART) Available() int { return u.rx.Len() }

// Peek returns the next received byte without consuming it, or -1.
func (u *UART) Peek() int {
	if b, ok := u.rx.Peek(); ok {
		return int(b)
	}
	return -1
}

// Read consumes the next received byte, or returns -1.
func (u *UART) Read() int {
	if b, ok := u.rx.TryPop(); ok {
		return int(b)
	}
	return -1
}
