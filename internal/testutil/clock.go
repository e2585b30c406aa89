package testutil

import (
	"strconv"
	"sync/atomic"
	"time"
)

// StubClock always reports the same instant, so catalog timestamps in
// tests are exact.
type StubClock struct {
	now time.Time
}

// FixedClock returns a StubClock at 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return &StubClock{now: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)}
}

func (c *StubClock) Now() time.Time { return c.now }

// StubIDGenerator hands out ids in sequence: "id-1", "id-2", ... Put asks
// for the generation name before the data set id, so the first data set
// of a test has its segments under "id-1.r/" and the id "id-2".
type StubIDGenerator struct {
	n atomic.Int64
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	return "id-" + strconv.FormatInt(g.n.Add(1), 10)
}
