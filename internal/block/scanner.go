package block

import (
	"errors"
	"iter"

	"redun-go/internal/digest"
)

// State classifies a block found by a Scanner.
type State int

const (
	// Intact blocks carry a digest that matches their payload.
	Intact State = iota + 1
	// Invalid blocks parsed cleanly but their digest does not match.
	Invalid
	// Incomplete marks a declared block that runs past the end of the buffer.
	Incomplete
)

func (s State) String() string {
	switch s {
	case Intact:
		return "intact"
	case Invalid:
		return "invalid"
	case Incomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// Result is one step of a scan.
type Result struct {
	State State

	// Offset is the position of the block within the scanned buffer. For an
	// Incomplete result it is where a writer has to resume.
	Offset int

	// Block is nil for Incomplete results.
	Block *Block

	// Err holds the space shortfall of an Incomplete result.
	Err *InsufficientSpaceError
}

// Scanner walks a buffer block by block. It is forward-only and ends for
// good after an empty buffer or an Incomplete result.
type Scanner struct {
	buf    []byte
	offset int
	hasher digest.Hasher
	done   bool
}

// NewScanner returns a Scanner over buf.
func NewScanner(buf []byte, hasher digest.Hasher) *Scanner {
	return &Scanner{buf: buf, hasher: hasher}
}

// Next returns the next block. ok is false once the scan has ended.
func (s *Scanner) Next() (r Result, ok bool) {
	if s.done || len(s.buf) == 0 {
		s.done = true
		return Result{}, false
	}

	offset := s.offset
	b, err := Parse(&s.buf, s.hasher)
	if err != nil {
		var space *InsufficientSpaceError
		if !errors.As(err, &space) {
			panic(err) // Parse only fails for lack of space
		}
		s.done = true
		return Result{State: Incomplete, Offset: offset, Err: space}, true
	}
	s.offset += b.Size()

	if b.VerifyHash() {
		return Result{State: Intact, Offset: offset, Block: b}, true
	}
	return Result{State: Invalid, Offset: offset, Block: b}, true
}

// Remaining is the unscanned tail of the buffer.
func (s *Scanner) Remaining() []byte {
	return s.buf
}

// Scan returns a sequence over the blocks in buf.
func Scan(buf []byte, hasher digest.Hasher) iter.Seq[Result] {
	return func(yield func(Result) bool) {
		s := NewScanner(buf, hasher)
		for {
			r, ok := s.Next()
			if !ok || !yield(r) {
				return
			}
		}
	}
}

// Counts tallies scan results by state.
type Counts struct {
	Intact     int
	Invalid    int
	Incomplete int
}

// Add records one result.
func (c *Counts) Add(s State) {
	switch s {
	case Intact:
		c.Intact++
	case Invalid:
		c.Invalid++
	case Incomplete:
		c.Incomplete++
	}
}

// Clean reports whether every block was intact.
func (c Counts) Clean() bool {
	return c.Invalid == 0 && c.Incomplete == 0
}
