package decision

import (
	"sort"
	"strings"

	"gotraverse/technique"
)

// Ranking orders two techniques: negative if a should be tried before b, positive if after.
//
// A Ranking is a preference, not an equivalence. Two different techniques only compare as 0 when
// their names are equal, so never use a Ranking to decide whether two techniques are the same.
type Ranking func(a, b technique.Metadata) int

// ByPreference prefers direct connections, then the smaller worst case setup time
// (technique.Unbounded last), then the name.
var ByPreference Ranking = byPreference

func byPreference(a, b technique.Metadata) int {
	if a.Direct != b.Direct {
		if a.Direct {
			return -1
		}
		return 1
	}
	if a.MaxSetupTime != b.MaxSetupTime {
		if a.MaxSetupTime < b.MaxSetupTime {
			return -1
		}
		return 1
	}
	return strings.Compare(a.Name, b.Name)
}

// Sort orders ts in place, most preferred first.
func Sort(ts []technique.Technique, rank Ranking) {
	type ranked struct {
		tech technique.Technique
		meta technique.Metadata
	}
	entries := make([]ranked, len(ts))
	for i, t := range ts {
		entries[i] = ranked{tech: t, meta: t.Metadata()}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return rank(entries[i].meta, entries[j].meta) < 0
	})
	for i, e := range entries {
		ts[i] = e.tech
	}
}
