/*
Package nat describes the NAT behaviour of a pair of endpoints.

A Situation is four FeatureRealization values: the mapping and filtering behaviour of
the local (client) NAT and of the remote (service) NAT. Situations are comparable, so
they are used directly as map keys by the decision table.
*/
package nat

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownRealization  = errors.New("unknown feature realization")
	ErrFieldCount          = errors.New("situation needs exactly 4 fields")
	ErrWildcardInSituation = errors.New("dont_care is only allowed in rules")
	ErrUnknownInRule       = errors.New("unknown is not allowed in rules")
)

// FeatureRealization classifies one mapping or filtering property of a NAT (RFC 4787).
type FeatureRealization int

const (
	// Unknown - property could not be determined. Zero value, so an unset Situation is the unknown situation.
	Unknown FeatureRealization = iota
	EndpointIndependent
	AddressDependent
	AddressAndPortDependent
	ConnectionDependent
	// NotRealized - no NAT present for this property.
	NotRealized
	// DontCare - wildcard, only valid when declaring which situations a technique traverses.
	DontCare
)

var realizationNames = map[FeatureRealization]string{
	Unknown:                 "unknown",
	EndpointIndependent:     "endpoint_independent",
	AddressDependent:        "address_dependent",
	AddressAndPortDependent: "address_and_port_dependent",
	ConnectionDependent:     "connection_dependent",
	NotRealized:             "not_realized",
	DontCare:                "dont_care",
}

var concreteRealizations = []FeatureRealization{
	EndpointIndependent,
	AddressDependent,
	AddressAndPortDependent,
	ConnectionDependent,
	NotRealized,
}

// ConcreteRealizations returns every value a wildcard field expands to.
func ConcreteRealizations() []FeatureRealization {
	out := make([]FeatureRealization, len(concreteRealizations))
	copy(out, concreteRealizations)
	return out
}

func (f FeatureRealization) String() string {
	if name, ok := realizationNames[f]; ok {
		return name
	}
	return fmt.Sprintf("FeatureRealization(%d)", int(f))
}

// Concrete is true for values that can be observed on a real NAT.
func (f FeatureRealization) Concrete() bool {
	return f >= EndpointIndependent && f <= NotRealized
}

// ParseFeatureRealization is case insensitive. "DONT_CARE", "dont_care" and " Dont_Care " are all the same.
func ParseFeatureRealization(s string) (FeatureRealization, error) {
	token := strings.ToLower(strings.TrimSpace(s))
	for f, name := range realizationNames {
		if name == token {
			return f, nil
		}
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnknownRealization, s)
}

// Behavior is the NAT characterisation of one endpoint.
type Behavior struct {
	Mapping   FeatureRealization
	Filtering FeatureRealization
}

func (b Behavior) String() string {
	return fmt.Sprintf("%s/%s", b.Mapping, b.Filtering)
}

// Situation is a (client, service) pair of behaviours.
type Situation struct {
	Client  Behavior
	Service Behavior
}

// UnknownSituation is what a caller holds when NAT classification failed. No rule ever produces it.
var UnknownSituation = Situation{}

// SituationFromFields builds a Situation from client mapping, client filtering, service mapping, service filtering.
func SituationFromFields(f [4]FeatureRealization) Situation {
	return Situation{
		Client:  Behavior{Mapping: f[0], Filtering: f[1]},
		Service: Behavior{Mapping: f[2], Filtering: f[3]},
	}
}

// Fields returns the four properties in rule order.
func (s Situation) Fields() [4]FeatureRealization {
	return [4]FeatureRealization{s.Client.Mapping, s.Client.Filtering, s.Service.Mapping, s.Service.Filtering}
}

func (s Situation) HasWildcard() bool {
	for _, f := range s.Fields() {
		if f == DontCare {
			return true
		}
	}
	return false
}

// Concrete is true when every field is an observable value (no wildcard, nothing unknown).
func (s Situation) Concrete() bool {
	for _, f := range s.Fields() {
		if !f.Concrete() {
			return false
		}
	}
	return true
}

// Reverse - the same situation as seen from the service side.
func (s Situation) Reverse() Situation {
	return Situation{Client: s.Service, Service: s.Client}
}

// Expand substitutes every DontCare field with each concrete realization and returns
// the resulting product. The order is deterministic: fields are expanded left to right,
// values in ConcreteRealizations order.
func (s Situation) Expand() []Situation {
	fields := s.Fields()
	out := [][4]FeatureRealization{{}}
	for i, f := range fields {
		values := []FeatureRealization{f}
		if f == DontCare {
			values = concreteRealizations
		}
		next := make([][4]FeatureRealization, 0, len(out)*len(values))
		for _, partial := range out {
			for _, v := range values {
				partial[i] = v
				next = append(next, partial)
			}
		}
		out = next
	}

	situations := make([]Situation, len(out))
	for i, f := range out {
		situations[i] = SituationFromFields(f)
	}
	return situations
}

// String renders the rule line format, e.g. "endpoint_independent,not_realized,address_dependent,dont_care".
func (s Situation) String() string {
	fields := s.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.String()
	}
	return strings.Join(names, ",")
}

// Less orders situations field by field. Only used to print tables in a stable order.
func (s Situation) Less(o Situation) bool {
	a, b := s.Fields(), o.Fields()
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
