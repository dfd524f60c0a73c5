package decoy

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
)

// NameOptions configures decoy name generation.
type NameOptions struct {
	Adjectives []string
	Nouns      []string
	Suffix     string
	// Unique appends a four-hex-digit random tag before the suffix.
	Unique bool
	// Source seeds the generator; nil uses a randomly seeded PCG.
	Source rand.Source
}

// Namer composes decoy base names from word lists.
type Namer struct {
	mu         sync.Mutex
	rng        *rand.Rand
	adjectives []string
	nouns      []string
	suffix     string
	unique     bool
}

// NewNamer validates opts and returns a Namer.
func NewNamer(opts NameOptions) (*Namer, error) {
	if len(opts.Adjectives) == 0 || len(opts.Nouns) == 0 {
		return nil, errors.New("decoy vocabulary must include adjectives and nouns")
	}
	if strings.TrimSpace(opts.Suffix) == "" {
		return nil, errors.New("decoy suffix must be set")
	}
	src := opts.Source
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Namer{
		rng:        rand.New(src),
		adjectives: append([]string(nil), opts.Adjectives...),
		nouns:      append([]string(nil), opts.Nouns...),
		suffix:     opts.Suffix,
		unique:     opts.Unique,
	}, nil
}

// Next returns a new base name without extension.
func (n *Namer) Next() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	adjective := n.adjectives[n.rng.IntN(len(n.adjectives))]
	noun := n.nouns[n.rng.IntN(len(n.nouns))]
	if n.unique {
		return fmt.Sprintf("%s_%s_%04x_%s", adjective, noun, n.rng.IntN(1<<16), n.suffix)
	}
	return adjective + "_" + noun + "_" + n.suffix
}

// Combinations returns how many distinct names Next can produce.
func (n *Namer) Combinations() int {
	total := len(n.adjectives) * len(n.nouns)
	if n.unique {
		total *= 1 << 16
	}
	return total
}
