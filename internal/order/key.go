package order

import (
	"strconv"
	"sync/atomic"
)

// Key builds an idempotency key of the form "<caller>-<seq>".
func Key(callerID string, seq int64) string {
	return callerID + "-" + strconv.FormatInt(seq, 10)
}

// KeySequence hands out monotonically increasing keys for one caller.
type KeySequence struct {
	caller string
	next   atomic.Int64
}

// NewKeySequence returns a sequence whose first key uses start.
func NewKeySequence(callerID string, start int64) *KeySequence {
	s := &KeySequence{caller: callerID}
	s.next.Store(start)
	return s
}

// Next returns the next key in the sequence.
func (s *KeySequence) Next() string {
	seq := s.next.Add(1) - 1
	return Key(s.caller, seq)
}
