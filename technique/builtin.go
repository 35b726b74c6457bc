package technique

import (
	"embed"

	"gotraverse/nat"
)

//go:embed rules/*.rules
var bundledRules embed.FS

// Names of the built in techniques.
const (
	DirectConnectionName = "DirectConnection"
	ReversalName         = "Reversal"
	HolePunchingName     = "HolePunching"
	RelayingName         = "Relaying"
)

// bundled loads one of the embedded rule files. They are part of the binary, so a bad one is a programming error.
func bundled(name string) []nat.Situation {
	f, err := bundledRules.Open("rules/" + name)
	if err != nil {
		panic(err)
	}
	defer f.Close()
	rules, err := nat.ParseRules(f)
	if err != nil {
		panic("rules/" + name + ": " + err.Error())
	}
	return rules
}

// DirectConnection - the client connects straight to the service.
func DirectConnection() Technique {
	return New(Metadata{
		Name:         DirectConnectionName,
		Direct:       true,
		MinSetupTime: 1,
		MaxSetupTime: 3,
		Rules:        bundled("direct_connection.rules"),
	})
}

// Reversal - the client asks the service, through the mediator, to connect back.
func Reversal() Technique {
	return New(Metadata{
		Name:         ReversalName,
		Direct:       true,
		MinSetupTime: 2,
		MaxSetupTime: 3,
		Rules:        bundled("reversal.rules"),
	})
}

// HolePunching - both sides send at each other's mapped endpoint until the filters open.
// How long that takes depends on timing and retries, so the worst case is unbounded.
func HolePunching() Technique {
	return New(Metadata{
		Name:         HolePunchingName,
		Direct:       true,
		MinSetupTime: 4,
		MaxSetupTime: Unbounded,
		Rules:        bundled("hole_punching.rules"),
	})
}

// Relaying - traffic is forwarded by a relay both peers can reach.
func Relaying() Technique {
	return New(Metadata{
		Name:         RelayingName,
		Direct:       false,
		MinSetupTime: 5,
		MaxSetupTime: 7,
		Rules:        bundled("relaying.rules"),
	})
}

// Builtin returns the four stock techniques in registration order.
func Builtin() []Technique {
	return []Technique{DirectConnection(), Reversal(), HolePunching(), Relaying()}
}

// DefaultRegistry is a fresh registry with the built in techniques. Every call returns a new one.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		panic(err)
	}
	return r
}
