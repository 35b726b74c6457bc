/*
Package classify works out one endpoint's NAT behaviour from probe observations.

A Result holds what was seen: mapping probes (local endpoint, destination, the endpoint the NAT
mapped us to) and filtering probes (which sources managed to get a reply back to us). Analyze turns
that into flags, and Analysis.Behavior into a nat.Behavior that can go into a nat.Situation.
Sending the probes is somebody else's job. Capture can rebuild a Result from recorded STUN traffic.
*/
package classify

import (
	"bytes"
	"fmt"
	"net"
	"strings"

	"gotraverse/nat"
)

// Result is the raw, uninterpreted result of probing.
type Result struct {
	MappingProbes   []*MappingProbe
	FilteringProbes []*FilteringProbe
}

// MappingProbe is the outcome of a single mapping discovery attempt.
type MappingProbe struct {
	// The local address we probed from.
	Local *net.UDPAddr
	// The public address the NAT assigned. nil on timeout.
	Mapped *net.UDPAddr
	// The server we probed.
	Remote *net.UDPAddr
	Timeout bool
}

// FilteringProbe records who got through to Local after we sent to Remote.
type FilteringProbe struct {
	Local    *net.UDPAddr
	Remote   *net.UDPAddr
	Received []*net.UDPAddr
}

func (p MappingProbe) String() string {
	if p.Timeout {
		return fmt.Sprintf("%s -> ??? -> %s (timeout)", p.Local, p.Remote)
	}
	return fmt.Sprintf("%s -> %s -> %s", p.Local, p.Mapped, p.Remote)
}

func (r *Result) String() string {
	if len(r.MappingProbes) == 0 && len(r.FilteringProbes) == 0 {
		return "No data (did the probe fail?)"
	}

	var b bytes.Buffer
	b.WriteString("Mapping probes:\n")
	for _, probe := range r.MappingProbes {
		fmt.Fprintf(&b, "  %s\n", probe)
	}
	b.WriteString("Filtering probes:\n")
	for _, probe := range r.FilteringProbes {
		if probe == nil {
			continue
		}
		fmt.Fprintf(&b, "  %s -> %s, replies from %d addrs\n", probe.Local, probe.Remote, len(probe.Received))
		for _, addr := range probe.Received {
			fmt.Fprintf(&b, "    %s\n", addr)
		}
	}
	return b.String()
}

// Analysis is what the probes say about the NAT.
type Analysis struct {
	// No mapping probe got an answer.
	NoMappingData bool
	// No filtering probe received anything.
	NoFilteringData bool
	// Every mapped address equals the local address.
	MappingNotTranslated bool
	// Assigned public ip:port depends on the destination IP.
	MappingVariesByDestIP bool
	// Assigned public ip:port depends on the destination port.
	MappingVariesByDestPort bool
	// Two probes to the exact same destination got different mappings.
	MappingVariesPerConnection bool
	// Replies arrived from an IP we never sent to.
	FilterAcceptsOtherIP bool
	// Replies arrived from a port we never sent to, on an IP we did send to.
	FilterAcceptsOtherPort bool
}

func (r *Result) Analyze() *Analysis {
	a := &Analysis{
		NoMappingData:   true,
		NoFilteringData: true,
	}
	r.analyzeMapping(a)
	r.analyzeFiltering(a)
	return a
}

func (r *Result) analyzeMapping(a *Analysis) {
	translated := false
	// Probes are only comparable when they share the local endpoint.
	byLocal := map[string][]*MappingProbe{}
	for _, probe := range r.MappingProbes {
		// incomplete probes say nothing, same as a timeout
		if probe == nil || probe.Timeout || probe.Mapped == nil || probe.Local == nil || probe.Remote == nil {
			continue
		}
		a.NoMappingData = false
		if !sameAddr(probe.Local, probe.Mapped) {
			translated = true
		}
		key := probe.Local.String()
		byLocal[key] = append(byLocal[key], probe)
	}
	a.MappingNotTranslated = !a.NoMappingData && !translated

	for _, probes := range byLocal {
		for i := 0; i < len(probes); i++ {
			for j := i + 1; j < len(probes); j++ {
				p, q := probes[i], probes[j]
				if sameAddr(p.Mapped, q.Mapped) {
					continue
				}
				switch {
				case sameAddr(p.Remote, q.Remote):
					a.MappingVariesPerConnection = true
				case p.Remote.IP.Equal(q.Remote.IP):
					a.MappingVariesByDestPort = true
				default:
					a.MappingVariesByDestIP = true
				}
			}
		}
	}
}

func (r *Result) analyzeFiltering(a *Analysis) {
	for _, probe := range r.FilteringProbes {
		if probe == nil || probe.Remote == nil {
			continue
		}
		for _, recv := range probe.Received {
			if recv == nil {
				continue
			}
			a.NoFilteringData = false
			switch {
			case !recv.IP.Equal(probe.Remote.IP):
				a.FilterAcceptsOtherIP = true
			case recv.Port != probe.Remote.Port:
				a.FilterAcceptsOtherPort = true
			}
		}
	}
}

func sameAddr(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}

// Mapping - RFC 4787 mapping behaviour.
func (a *Analysis) Mapping() nat.FeatureRealization {
	switch {
	case a.NoMappingData:
		return nat.Unknown
	case a.MappingNotTranslated:
		return nat.NotRealized
	case a.MappingVariesPerConnection:
		return nat.ConnectionDependent
	case a.MappingVariesByDestPort:
		return nat.AddressAndPortDependent
	case a.MappingVariesByDestIP:
		return nat.AddressDependent
	default:
		return nat.EndpointIndependent
	}
}

// Filtering - RFC 4787 filtering behaviour. A reply only from the exact address we sent to is
// all a plain probe can show, so that reads as address and port dependent.
func (a *Analysis) Filtering() nat.FeatureRealization {
	switch {
	case a.NoFilteringData:
		return nat.Unknown
	case a.FilterAcceptsOtherIP && a.MappingNotTranslated:
		return nat.NotRealized
	case a.FilterAcceptsOtherIP:
		return nat.EndpointIndependent
	case a.FilterAcceptsOtherPort:
		return nat.AddressDependent
	default:
		return nat.AddressAndPortDependent
	}
}

func (a *Analysis) Behavior() nat.Behavior {
	return nat.Behavior{Mapping: a.Mapping(), Filtering: a.Filtering()}
}

func (a *Analysis) Narrative() string {
	if a.NoMappingData && a.NoFilteringData {
		return "Probing got no useful data at all. Either the probe servers are down, or extremely strict UDP filtering is in place on your LAN."
	}
	ret := []string{}

	switch a.Mapping() {
	case nat.Unknown:
		ret = append(ret, "No mapping probe got an answer, mapping behaviour is unknown.")
	case nat.NotRealized:
		ret = append(ret, "Public address equals the local address, there is no NAT mapping.")
	case nat.ConnectionDependent:
		ret = append(ret, `NAT allocates a new ip:port even for repeated traffic to the same destination.
  Only relaying will get through this.`)
	case nat.AddressAndPortDependent:
		ret = append(ret, `NAT allocates a new ip:port for every unique 5-tuple (protocol, source ip, source port, destination ip, destination port).
  This makes NAT traversal more difficult.`)
	case nat.AddressDependent:
		ret = append(ret, `NAT allocates a new ip:port for every unique IP 4-tuple (protocol, source ip, source port, destination ip).
  This makes NAT traversal more difficult.`)
	default:
		ret = append(ret, `NAT allocates a new ip:port for every unique 3-tuple (protocol, source ip, source port).
  This is best practice for NAT devices.`)
	}

	switch a.Filtering() {
	case nat.Unknown:
		ret = append(ret, "Nothing was received, filtering behaviour is unknown.")
	case nat.NotRealized:
		ret = append(ret, "Inbound traffic from any source reaches the local address, there is no filtering.")
	case nat.EndpointIndependent:
		ret = append(ret, `Firewall allows inbound traffic from any source, with no prerequisites.
  This is best practice for "traversal-friendly" NAT devices.`)
	case nat.AddressDependent:
		ret = append(ret, `Firewall requires outbound traffic to an ip before allowing inbound traffic from that ip, but the ports don't have to match.
  This makes NAT traversal more difficult.`)
	default:
		ret = append(ret, `Firewall requires outbound traffic to an ip:port before allowing inbound traffic from that ip:port.
  This is common practice for NAT gateways.
  This makes NAT traversal more difficult.`)
	}

	return strings.Join(ret, "\n")
}
