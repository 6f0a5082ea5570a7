package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Sequence generates meaningful ids such as "TT-MT-001". Each planning run owns its own
// sequence so that runs stay reproducible and can execute in parallel.
type Sequence struct {
	mu       sync.Mutex
	counters map[string]int
}

func NewSequence() *Sequence {
	return &Sequence{counters: make(map[string]int)}
}

// Next returns the next id for the prefix/department pair.
func (sequence *Sequence) Next(prefix, department string) string {
	key := strings.ToUpper(prefix)
	if department != "" {
		key += "-" + strings.ToUpper(department)
	}

	sequence.mu.Lock()
	defer sequence.mu.Unlock()
	sequence.counters[key]++
	return fmt.Sprintf("%s-%03d", key, sequence.counters[key])
}

type sequenceKey struct{}

func WithSequence(ctx context.Context, sequence *Sequence) context.Context {
	return context.WithValue(ctx, sequenceKey{}, sequence)
}

// SequenceFrom returns the sequence carried by ctx, or a fresh one when there is none.
func SequenceFrom(ctx context.Context) *Sequence {
	if ctx != nil {
		if sequence, ok := ctx.Value(sequenceKey{}).(*Sequence); ok && sequence != nil {
			return sequence
		}
	}
	return NewSequence()
}
