package firmware

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-mcusim/pkg/config"
)

// Program is an Arduino-style sketch written in Go.
type Program struct {
	Setup func(fw *Firmware)
	Loop  func(fw *Firmware)
}

// Sketch is the reference Engine. The program runs on its own goroutine,
// but control is handed back and forth over unbuffered channels so only one
// side runs at a time. Every host call costs CallCost and every pass through
// Loop costs LoopCost of simulated time; once the budget given to Advance
// is spent the sketch parks until the next Advance.
type Sketch struct {
	program  Program
	callCost time.Duration
	loopCost time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	hosts   map[string]HostFunc
	sigs    map[string]string
	entry   string
	running bool
	co      *coroutine
}

var _ Engine = (*Sketch)(nil)

type SketchOption func(*Sketch)

func WithCosts(call, loop time.Duration) SketchOption {
	return func(s *Sketch) {
		s.callCost = call
		s.loopCost = loop
	}
}

func WithLogger(l *slog.Logger) SketchOption {
	return func(s *Sketch) { s.logger = l }
}

func NewSketch(program Program, opts ...SketchOption) *Sketch {
	cfg := config.Default().Chip
	s := &Sketch{
		program:  program,
		callCost: cfg.CallCost,
		loopCost: cfg.LoopCost,
		hosts:    make(map[string]HostFunc),
		sigs:     make(map[string]string),
		entry:    "main",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Register binds fn to the function named in signature.
func (s *Sketch) Register(signature string, fn HostFunc) error {
	name, err := ParseSignature(signature)
	if err != nil {
		return err
	}
	if fn == nil {
		return errors.Errorf("nil host function for %q", signature)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hosts[name]; ok {
		return errors.Wrapf(ErrDuplicate, "%s", name)
	}
	s.hosts[name] = fn
	s.sigs[name] = signature
	return nil
}

// Signatures lists the registered prototypes by function name.
func (s *Sketch) Signatures() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.sigs))
	for k, v := range s.sigs {
		out[k] = v
	}
	return out
}

func (s *Sketch) body(entry string) (func(fw *Firmware), error) {
	setup, loop := s.program.Setup, s.program.Loop
	forever := func(fw *Firmware) {
		for {
			if loop != nil {
				loop(fw)
			}
			fw.co.charge(s.loopCost)
		}
	}

	switch entry {
	case "main":
		return func(fw *Firmware) {
			if setup != nil {
				setup(fw)
			}
			forever(fw)
		}, nil
	case "setup":
		return func(fw *Firmware) {
			if setup != nil {
				setup(fw)
			}
		}, nil
	case "loop":
		return forever, nil
	}
	return nil, errors.Wrapf(ErrUnknownEntry, "%q", entry)
}

// Run starts the program at the current entry point ("main" unless Reset
// chose another).
func (s *Sketch) Run() error {
	if s.running {
		return nil
	}
	if err := s.start(s.entry); err != nil {
		return err
	}
	s.running = true
	return nil
}

// Reset abandons the running program and restarts it at entry on the next
// Advance. Before Run it only selects the entry point.
func (s *Sketch) Reset(entry string) error {
	if _, err := s.body(entry); err != nil {
		return err
	}
	s.entry = entry
	if !s.running {
		return nil
	}
	s.logger.Debug("firmware reset", "entry", entry)
	return s.start(entry)
}

func (s *Sketch) start(entry string) error {
	body, err := s.body(entry)
	if err != nil {
		return err
	}
	s.stop()

	s.mu.Lock()
	hosts := make(map[string]HostFunc, len(s.hosts))
	for k, v := range s.hosts {
		hosts[k] = v
	}
	s.mu.Unlock()

	co := newCoroutine()
	fw := &Firmware{co: co, hosts: hosts, callCost: s.callCost}
	fw.Serial = &SerialPort{fw: fw}
	s.co = co
	go co.run(func() { body(fw) })
	return nil
}

// Advance lets the program run for budget of simulated time or until it
// yields. A panic inside the program halts it and is returned once; later
// calls return nil until Reset.
func (s *Sketch) Advance(budget time.Duration) error {
	if !s.running || s.co == nil {
		return ErrNotRunning
	}
	co := s.co
	if co.finished {
		return nil
	}

	co.resume <- budget
	err := <-co.yield
	if err != nil {
		s.logger.Warn("firmware halted", "error", err)
	}
	return err
}

// Halted reports whether the program has returned or crashed.
func (s *Sketch) Halted() bool {
	return s.co != nil && s.co.finished
}

// Close stops the program goroutine.
func (s *Sketch) Close() error {
	s.stop()
	s.running = false
	return nil
}

func (s *Sketch) stop() {
	if s.co != nil {
		s.co.abort()
		s.co = nil
	}
}

var errAborted = errors.New("firmware aborted")

type coroutine struct {
	resume   chan time.Duration
	yield    chan error
	quit     chan struct{}
	done     chan struct{}
	budget   time.Duration
	finished bool
}

func newCoroutine() *coroutine {
	return &coroutine{
		resume: make(chan time.Duration),
		yield:  make(chan error),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (co *coroutine) run(body func()) {
	defer close(co.done)
	defer func() {
		r := recover()
		if r == errAborted {
			return
		}
		var err error
		if r != nil {
			err = errors.Errorf("firmware panic: %v", r)
		}
		co.finished = true
		co.yield <- err
	}()

	co.wait()
	body()
}

// wait blocks until the engine grants a new budget.
func (co *coroutine) wait() {
	select {
	case b := <-co.resume:
		co.budget += b
	case <-co.quit:
		panic(errAborted)
	}
}

// park hands control back to the engine.
func (co *coroutine) park() {
	co.yield <- nil
	co.wait()
}

func (co *coroutine) charge(cost time.Duration) {
	co.budget -= cost
	if co.budget <= 0 {
		co.park()
	}
}

// yieldNow gives up the rest of the current budget.
func (co *coroutine) yieldNow() {
	co.budget = 0
	co.park()
}

func (co *coroutine) abort() {
	close(co.quit)
	<-co.done
}

// Firmware is the handle a Program uses to reach its chip.
type Firmware struct {
	Serial *SerialPort

	co       *coroutine
	hosts    map[string]HostFunc
	callCost time.Duration
}

// Invoke calls a registered host function. Calling an unknown function
// crashes the program.
func (f *Firmware) Invoke(name string, args ...Value) Value {
	fn, ok := f.hosts[name]
	if !ok {
		panic(fmt.Sprintf("undefined host function %s", name))
	}
	call := &Call{Name: name, Args: args, yield: f.co.yieldNow}
	fn(call)
	f.co.charge(f.callCost)
	return call.ret
}

// Yield gives up the rest of the current tick.
func (f *Firmware) Yield() { f.co.yieldNow() }
