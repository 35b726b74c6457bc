package decision

import (
	"gotraverse/nat"
	"gotraverse/technique"

	"github.com/rs/zerolog/log"
)

// Strategy is the entry point for callers: give it a situation, get back the techniques to try, in order.
// A Strategy only reads its registry and table, so one instance can be shared by any number of goroutines.
type Strategy struct {
	registry *technique.Registry
	table    *Table
	rank     Ranking
}

type Option func(*Strategy)

// WithRanking replaces ByPreference.
func WithRanking(rank Ranking) Option {
	return func(s *Strategy) {
		s.rank = rank
	}
}

// NewStrategy - table should be built from reg. A nil table is built here, and that table belongs
// to this strategy only: two strategies created with nil tables are never Equal. Pass Table() of the
// first one to the second to share it.
func NewStrategy(reg *technique.Registry, table *Table, opts ...Option) *Strategy {
	if table == nil {
		table = Build(reg)
	} else if !table.BuiltFrom(reg) {
		log.Warn().Msg("Decision table was built from a different registry, lookups and fallback may disagree")
	}
	s := &Strategy{registry: reg, table: table, rank: ByPreference}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Candidates returns the unordered techniques for situation. When the table has nothing for it,
// every registered technique is a candidate and fallback is true.
func (s *Strategy) Candidates(situation nat.Situation) (candidates []technique.Technique, fallback bool) {
	candidates = s.table.Lookup(situation)
	if len(candidates) > 0 {
		return candidates, false
	}
	return s.registry.Techniques(), true
}

// TechniquesFor returns the techniques to attempt for situation, most preferred first.
// The result is only empty when the registry is empty.
func (s *Strategy) TechniquesFor(situation nat.Situation) []technique.Technique {
	candidates, fallback := s.Candidates(situation)
	if fallback {
		log.Debug().Msgf("No rule covers %s, falling back to all %d techniques", situation, len(candidates))
	}
	Sort(candidates, s.rank)
	return candidates
}

// Equal is true when both strategies read the same registry and table.
func (s *Strategy) Equal(o *Strategy) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.registry == o.registry && s.table == o.table
}

func (s *Strategy) Registry() *technique.Registry {
	return s.registry
}

func (s *Strategy) Table() *Table {
	return s.table
}
