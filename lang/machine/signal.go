package machine

import "fmt"

// Signal is the result code a fiber suspends or terminates with (§4.7).
// continue/call/pcall all report back one of these, paired with a value.
type Signal uint8

const (
	SignalOK Signal = iota
	SignalError
	SignalDebug
	SignalYield
	SignalUser0
	SignalUser1
	SignalUser2
	SignalUser3
	SignalUser4
	SignalUser5
	SignalUser6
	SignalUser7
	SignalUser8
	SignalUser9
	SignalInterrupt

	numSignals
)

var signalNames = [numSignals]string{
	SignalOK:        "ok",
	SignalError:     "error",
	SignalDebug:     "debug",
	SignalYield:     "yield",
	SignalUser0:     "user0",
	SignalUser1:     "user1",
	SignalUser2:     "user2",
	SignalUser3:     "user3",
	SignalUser4:     "user4",
	SignalUser5:     "user5",
	SignalUser6:     "user6",
	SignalUser7:     "user7",
	SignalUser8:     "user8",
	SignalUser9:     "user9",
	SignalInterrupt: "interrupt",
}

func (s Signal) String() string {
	if s < numSignals {
		return signalNames[s]
	}
	return fmt.Sprintf("signal(%d)", uint8(s))
}

// IsUser reports whether s is one of USER0..USER9.
func (s Signal) IsUser() bool { return s >= SignalUser0 && s <= SignalUser9 }

// SignalMask selects which child signals a fiber intercepts (consumes,
// treating them as an ordinary resume value) versus propagates to its own
// parent (§3 "flag bits for signal mask", §4.7).
type SignalMask uint16

func maskBit(s Signal) SignalMask { return 1 << SignalMask(s) }

// Intercepts reports whether mask is configured to consume signal s rather
// than propagate it.
func (mask SignalMask) Intercepts(s Signal) bool { return mask&maskBit(s) != 0 }

// WithIntercept returns mask with s added to the set of intercepted signals.
func (mask SignalMask) WithIntercept(s Signal) SignalMask { return mask | maskBit(s) }

// DefaultMask intercepts YIELD and all USERn signals (the ordinary
// resume/produce protocol) but propagates ERROR, DEBUG and INTERRUPT to the
// parent fiber by default.
var DefaultMask = maskBit(SignalYield) |
	maskBit(SignalUser0) | maskBit(SignalUser1) | maskBit(SignalUser2) |
	maskBit(SignalUser3) | maskBit(SignalUser4) | maskBit(SignalUser5) |
	maskBit(SignalUser6) | maskBit(SignalUser7) | maskBit(SignalUser8) |
	maskBit(SignalUser9)

// A MachineError is a panic payload produced by the interpreter or by
// NativeFunction code calling VM.Panic/VM.Panicf; it becomes the value of an
// ERROR signal (§4.7, §7).
type MachineError struct {
	Kind    ErrorKind
	Value   Value  // the raised value, when panic(value) was called with a sarrazin Value
	Message string
}

func (e *MachineError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Value != nil {
		return e.Value.String()
	}
	return e.Kind.String()
}

// ErrorKind classifies why an ERROR signal was raised (§7 "Error kinds").
type ErrorKind uint8

const (
	ErrArity ErrorKind = iota
	ErrType
	ErrRange
	ErrArithmetic
	ErrStackOverflow
	ErrBadBytecode
	ErrUser
	ErrRecursionLimit
	ErrSandbox
)

var errorKindNames = [...]string{
	ErrArity:          "arity mismatch",
	ErrType:           "type mismatch",
	ErrRange:          "range error",
	ErrArithmetic:     "arithmetic error",
	ErrStackOverflow:  "stack overflow",
	ErrBadBytecode:    "bad bytecode",
	ErrUser:           "user error",
	ErrRecursionLimit: "recursion limit exceeded",
	ErrSandbox:        "sandbox violation",
}

func (k ErrorKind) String() string {
	if int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return "unknown error"
}

// tryState is one entry in the protected-call chain installed at every
// interpreter entrance (§4.7 "every entrance into the interpreter installs a
// try-state"). panic(value) unwinds via Go panic/recover to the nearest one.
type tryState struct {
	fiber *Fiber
}

// protect runs fn (the dispatch loop) with a fresh try-state: a
// *MachineError panic raised inside fn, directly or via a nested
// interpreter call, is caught and converted to an (SignalError, value)
// result instead of escaping to the Go caller (§4.7 "every entrance into
// the interpreter installs a try-state... panic longjmps to the nearest
// try-state").
func protect(fiber *Fiber, fn func() (Signal, Value)) (sig Signal, result Value) {
	defer func() {
		if r := recover(); r != nil {
			me, ok := r.(*MachineError)
			if !ok {
				panic(r) // not ours: a genuine Go bug, let it escape
			}
			sig = SignalError
			if me.Value != nil {
				result = me.Value
			} else {
				result = errString(me.Error())
			}
			fiber.lastSignal = SignalError
			fiber.lastValue = result
		}
	}()
	return fn()
}

// errString boxes a plain Go error message (from a container operation that
// returns an error rather than panicking) as the Value that accompanies an
// ERROR signal. It builds a detached *String directly rather than through
// VM.NewString because the error path must work even where no live *VM
// reference is threaded through (e.g. inside gc finalizers); unlike ordinary
// strings it is therefore not linked into any VM's GC list, which is
// harmless since it has no outgoing references for collection to miss.
func errString(msg string) Value {
	return &String{data: []byte(msg), hash: djb2Mix(0x811c9dc5, []byte(msg))}
}
