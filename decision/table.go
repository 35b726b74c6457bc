/*
Package decision picks traversal techniques for a NAT situation.

Build compiles every technique's declared rules into a Table. A Strategy looks a situation up in
the table, falls back to every registered technique when nothing matches, and ranks the result.
*/
package decision

import (
	"sort"

	"gotraverse/nat"
	"gotraverse/technique"

	"github.com/rs/zerolog/log"
)

// Table maps a concrete situation to the techniques that declared they can traverse it.
// It is a flat lookup. Nothing modifies it once Build returns.
type Table struct {
	source *technique.Registry
	table  map[nat.Situation][]technique.Technique
}

// Build expands every rule in reg and records the technique against each concrete situation.
// Reading the rules seals reg.
func Build(reg *technique.Registry) *Table {
	t := &Table{source: reg, table: make(map[nat.Situation][]technique.Technique)}
	ruleCount := 0
	for _, set := range reg.Rules() {
		name := set.Technique.Metadata().Name
		for _, rule := range set.Situations {
			ruleCount++
			expanded := rule.Expand()
			for _, s := range expanded {
				t.store(s, set.Technique)
			}
			log.Debug().Msgf("Rule %s for %s expanded to %d situations", rule, name, len(expanded))
		}
	}
	log.Debug().Msgf("Decision table built. Rules = %d, Situations = %d", ruleCount, len(t.table))
	return t
}

// store appends tech unless it is already there. Overlapping rules of one technique are common.
func (t *Table) store(s nat.Situation, tech technique.Technique) {
	name := tech.Metadata().Name
	for _, existing := range t.table[s] {
		if existing.Metadata().Name == name {
			return
		}
	}
	t.table[s] = append(t.table[s], tech)
}

// BuiltFrom reports whether Build was called with reg.
func (t *Table) BuiltFrom(reg *technique.Registry) bool {
	return t.source == reg
}

// Lookup returns the techniques declared for exactly s, in registration order.
// A situation no rule produced, including nat.UnknownSituation, returns an empty result.
func (t *Table) Lookup(s nat.Situation) []technique.Technique {
	entry := t.table[s]
	out := make([]technique.Technique, len(entry))
	copy(out, entry)
	return out
}

func (t *Table) Check(s nat.Situation) (ok bool) {
	_, ok = t.table[s]
	return
}

// Len is the number of concrete situations with at least one technique.
func (t *Table) Len() int {
	return len(t.table)
}

// Situations returns every key, sorted.
func (t *Table) Situations() []nat.Situation {
	out := make([]nat.Situation, 0, len(t.table))
	for s := range t.table {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Equal reports whether both tables answer every lookup with the same technique names in the same order.
func (t *Table) Equal(o *Table) bool {
	if len(t.table) != len(o.table) {
		return false
	}
	for s, entry := range t.table {
		other, ok := o.table[s]
		if !ok || len(other) != len(entry) {
			return false
		}
		for i := range entry {
			if entry[i].Metadata().Name != other[i].Metadata().Name {
				return false
			}
		}
	}
	return true
}
