/*
Package technique holds the catalog of NAT traversal techniques and what each one declares about itself.

The package never opens a socket. A Technique only reports its Metadata: whether the resulting
connection is direct, how many message round trips setup costs and which NAT situations it can traverse.
*/
package technique

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gotraverse/nat"

	"gopkg.in/yaml.v3"
)

var (
	ErrNoName        = errors.New("technique has no name")
	ErrNegativeCost  = errors.New("setup time can not be negative")
	ErrCostRange     = errors.New("min setup time is larger than max setup time")
	ErrUnknownInRule = errors.New("rule contains an unknown field")
	ErrCostTooLarge  = errors.New("finite setup time must be smaller than unbounded")
	ErrInvalidRule   = errors.New("rule field is neither a concrete realization nor dont_care")
)

// Cost counts protocol message round trips needed to set up a connection.
type Cost int

// Unbounded - setup cost is not predictable (hole punching). Larger than every finite Cost.
const Unbounded Cost = math.MaxInt32

func (c Cost) String() string {
	if c == Unbounded {
		return "unbounded"
	}
	return strconv.Itoa(int(c))
}

// ParseCost accepts a non-negative integer below Unbounded, "unbounded" or "infinite".
func ParseCost(s string) (Cost, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "unbounded", "infinite", "inf":
		return Unbounded, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad setup time %q: %w", s, err)
	}
	if n < 0 {
		return 0, ErrNegativeCost
	}
	if n >= int(Unbounded) {
		return 0, fmt.Errorf("%d: %w", n, ErrCostTooLarge)
	}
	return Cost(n), nil
}

func (c *Cost) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseCost(value.Value)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Metadata is static information about a technique.
type Metadata struct {
	// Name is unique within a registry, and breaks ranking ties.
	Name string
	// Direct - no third party forwards traffic once the connection is up.
	Direct bool
	// Best and worst case message round trips.
	MinSetupTime Cost
	MaxSetupTime Cost
	// Rules are the declared situations, wildcards not yet expanded.
	Rules []nat.Situation
}

func (m Metadata) Validate() error {
	if m.Name == "" {
		return ErrNoName
	}
	if m.MinSetupTime < 0 || m.MaxSetupTime < 0 {
		return fmt.Errorf("%s: %w", m.Name, ErrNegativeCost)
	}
	if m.MinSetupTime > Unbounded || m.MaxSetupTime > Unbounded {
		return fmt.Errorf("%s: %w", m.Name, ErrCostTooLarge)
	}
	if m.MinSetupTime > m.MaxSetupTime {
		return fmt.Errorf("%s: %w (%s > %s)", m.Name, ErrCostRange, m.MinSetupTime, m.MaxSetupTime)
	}
	for _, rule := range m.Rules {
		for _, f := range rule.Fields() {
			switch {
			case f == nat.Unknown:
				return fmt.Errorf("%s: %w: %s", m.Name, ErrUnknownInRule, rule)
			case !f.Concrete() && f != nat.DontCare:
				return fmt.Errorf("%s: %w: %d", m.Name, ErrInvalidRule, int(f))
			}
		}
	}
	return nil
}

// TraversedSituations expands every rule into the concrete situations it covers.
func (m Metadata) TraversedSituations() map[nat.Situation]struct{} {
	out := make(map[nat.Situation]struct{})
	for _, rule := range m.Rules {
		for _, s := range rule.Expand() {
			out[s] = struct{}{}
		}
	}
	return out
}

func (m Metadata) String() string {
	kind := "relayed"
	if m.Direct {
		kind = "direct"
	}
	return fmt.Sprintf("%s (%s, setup %s-%s, %d rules)", m.Name, kind, m.MinSetupTime, m.MaxSetupTime, len(m.Rules))
}

// Technique is implemented by anything that can be registered. Implementations that actually
// establish connections live outside this module and only need to describe themselves.
type Technique interface {
	Metadata() Metadata
}

type static struct {
	meta Metadata
}

func (s *static) Metadata() Metadata {
	meta := s.meta
	meta.Rules = append([]nat.Situation(nil), s.meta.Rules...)
	return meta
}

func (s *static) String() string {
	return s.meta.Name
}

// New returns a Technique that only carries metadata. The rules slice is copied.
func New(meta Metadata) Technique {
	rules := make([]nat.Situation, len(meta.Rules))
	copy(rules, meta.Rules)
	meta.Rules = rules
	return &static{meta: meta}
}

// Names is handy for logging and tests.
func Names(ts []Technique) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Metadata().Name
	}
	return out
}
