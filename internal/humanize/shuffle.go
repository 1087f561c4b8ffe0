package humanize

import "math/rand"

// ShuffleContacts returns a shuffled copy of contacts (Fisher-Yates).
// The input slice is never modified; nil input returns nil.
func ShuffleContacts[T any](contacts []T) []T {
	return shuffleWith(contacts, rand.Intn)
}

func (e *Engine) shuffleIndex(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Intn(n)
}

// Shuffle is ShuffleContacts driven by the engine's random source
func Shuffle[T any](e *Engine, contacts []T) []T {
	return shuffleWith(contacts, e.shuffleIndex)
}

func shuffleWith[T any](contacts []T, intn func(int) int) []T {
	if contacts == nil {
		return nil
	}
	out := make([]T, len(contacts))
	copy(out, contacts)
	for i := len(out) - 1; i > 0; i-- {
		j := intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
