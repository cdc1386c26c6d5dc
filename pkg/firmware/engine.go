// Package firmware defines how a chip talks to the program it runs, and
// provides a reference engine that executes Go sketches cooperatively with
// the simulation clock.
package firmware

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
)

var (
	ErrBadSignature = errors.New("malformed host function signature")
	ErrDuplicate    = errors.New("host function already registered")
	ErrNotRunning   = errors.New("engine not running")
	ErrUnknownEntry = errors.New("unknown entry point")
)

// Engine executes firmware in slices of simulated time. Host functions are
// the only way firmware reaches the chip.
type Engine interface {
	Register(signature string, fn HostFunc) error
	Reset(entry string) error
	Run() error
	Advance(budget time.Duration) error
}

type HostFunc func(call *Call)

// Value is one argument passed from firmware to a host function.
type Value struct {
	Int   int64
	Str   string
	IsStr bool
}

func IntValue(v int64) Value  { return Value{Int: v} }
func StrValue(s string) Value { return Value{Str: s, IsStr: true} }

func (v Value) String() string {
	if v.IsStr {
		return v.Str
	}
	return strconv.FormatInt(v.Int, 10)
}

// Call is the frame of one host function invocation.
type Call struct {
	Name string
	Args []Value

	ret   Value
	yield func()
}

func (c *Call) NumArgs() int { return len(c.Args) }

// Int returns argument i, or 0 if it is missing or a string.
func (c *Call) Int(i int) int64 {
	if i < 0 || i >= len(c.Args) || c.Args[i].IsStr {
		return 0
	}
	return c.Args[i].Int
}

func (c *Call) Str(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i].String()
}

func (c *Call) IsStr(i int) bool {
	return i >= 0 && i < len(c.Args) && c.Args[i].IsStr
}

// Push sets the return value seen by the firmware.
func (c *Call) Push(v int64) { c.ret = IntValue(v) }

// Yield suspends the firmware until the next Advance.
func (c *Call) Yield() {
	if c.yield != nil {
		c.yield()
	}
}

func (c *Call) Return() Value { return c.ret }

// NewCall builds a frame for invoking fn outside an engine. Yield is a no-op.
func NewCall(name string, args ...Value) *Call {
	return &Call{Name: name, Args: args}
}

// ParseSignature extracts the function name from a C-style prototype such
// as "int digitalRead(int pin)". A return type is required; names may be
// dotted ("Serial.print").
func ParseSignature(signature string) (string, error) {
	open := strings.IndexByte(signature, '(')
	if open < 0 || !strings.HasSuffix(strings.TrimSpace(signature), ")") {
		return "", errors.Wrapf(ErrBadSignature, "%q", signature)
	}

	head := strings.Fields(signature[:open])
	if len(head) < 2 {
		return "", errors.Wrapf(ErrBadSignature, "%q", signature)
	}
	name := head[len(head)-1]
	name = strings.TrimLeft(name, "*")
	if name == "" || !validName(name) {
		return "", errors.Wrapf(ErrBadSignature, "%q", signature)
	}
	return name, nil
}

func validName(name string) bool {
	for _, part := range strings.Split(name, ".") {
		if part == "" || unicode.IsDigit(rune(part[0])) {
			return false
		}
		for _, r := range part {
			if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				return false
			}
		}
	}
	return true
}
