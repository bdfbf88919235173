// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package auction

import "sync/atomic"

// ContextSource supplies the execution-context tokens rounds are anchored
// to. Rights won in one context are only honored while the token of the
// context immediately preceding the current one still matches the round's
// anchor.
type ContextSource interface {
	// Current returns the token of the executing context.
	Current() uint64
	// Previous returns the token of the context immediately preceding the
	// current one.
	Previous() uint64
}

// SequenceSource is a monotonically advancing ContextSource driven by the
// host: each Advance models entering a new execution context.
type SequenceSource struct {
	seq atomic.Uint64
}

// NewSequenceSource starts at context 1 so Previous is well-defined.
func NewSequenceSource() *SequenceSource {
	s := &SequenceSource{}
	s.seq.Store(1)
	return s
}

// Advance moves to the next execution context and returns its token.
func (s *SequenceSource) Advance() uint64 {
	return s.seq.Add(1)
}

func (s *SequenceSource) Current() uint64 { return s.seq.Load() }

func (s *SequenceSource) Previous() uint64 { return s.seq.Load() - 1 }
