package classify

import (
	"bytes"
	"net"
	"testing"
	"time"

	"gotraverse/common"
	"gotraverse/nat"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pion/stun"
	"github.com/stretchr/testify/require"
)

var (
	local     = &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 40000}
	public    = &net.UDPAddr{IP: net.IPv4(203, 0, 113, 7), Port: 61000}
	server1   = &net.UDPAddr{IP: net.IPv4(198, 51, 100, 1), Port: 3478}
	server1b  = &net.UDPAddr{IP: net.IPv4(198, 51, 100, 1), Port: 3479}
	server2   = &net.UDPAddr{IP: net.IPv4(198, 51, 100, 2), Port: 3478}
	otherPort = &net.UDPAddr{IP: net.IPv4(203, 0, 113, 7), Port: 61001}
)

func mappingResult(probes ...*MappingProbe) *Result {
	return &Result{MappingProbes: probes}
}

func TestMappingEndpointIndependent(t *testing.T) {
	r := mappingResult(
		&MappingProbe{Local: local, Mapped: public, Remote: server1},
		&MappingProbe{Local: local, Mapped: public, Remote: server1b},
		&MappingProbe{Local: local, Mapped: public, Remote: server2},
	)
	require.Equal(t, nat.EndpointIndependent, r.Analyze().Mapping())
}

func TestMappingAddressDependent(t *testing.T) {
	r := mappingResult(
		&MappingProbe{Local: local, Mapped: public, Remote: server1},
		&MappingProbe{Local: local, Mapped: public, Remote: server1b},
		&MappingProbe{Local: local, Mapped: otherPort, Remote: server2},
	)
	a := r.Analyze()
	require.True(t, a.MappingVariesByDestIP)
	require.False(t, a.MappingVariesByDestPort)
	require.Equal(t, nat.AddressDependent, a.Mapping())
}

func TestMappingAddressAndPortDependent(t *testing.T) {
	r := mappingResult(
		&MappingProbe{Local: local, Mapped: public, Remote: server1},
		&MappingProbe{Local: local, Mapped: otherPort, Remote: server1b},
	)
	require.Equal(t, nat.AddressAndPortDependent, r.Analyze().Mapping())
}

func TestMappingConnectionDependent(t *testing.T) {
	r := mappingResult(
		&MappingProbe{Local: local, Mapped: public, Remote: server1},
		&MappingProbe{Local: local, Mapped: otherPort, Remote: server1},
	)
	require.Equal(t, nat.ConnectionDependent, r.Analyze().Mapping())
}

func TestMappingNotRealized(t *testing.T) {
	r := mappingResult(
		&MappingProbe{Local: public, Mapped: public, Remote: server1},
		&MappingProbe{Local: public, Mapped: public, Remote: server2},
	)
	require.Equal(t, nat.NotRealized, r.Analyze().Mapping())
}

func TestMappingTimeoutsOnly(t *testing.T) {
	r := mappingResult(&MappingProbe{Local: local, Remote: server1, Timeout: true})
	a := r.Analyze()
	require.True(t, a.NoMappingData)
	require.Equal(t, nat.Behavior{Mapping: nat.Unknown, Filtering: nat.Unknown}, a.Behavior())
	require.Contains(t, a.Narrative(), "no useful data")
}

func TestMappingOnlyComparesSameLocal(t *testing.T) {
	otherLocal := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 40001}
	r := mappingResult(
		&MappingProbe{Local: local, Mapped: public, Remote: server1},
		&MappingProbe{Local: otherLocal, Mapped: otherPort, Remote: server2},
	)
	require.Equal(t, nat.EndpointIndependent, r.Analyze().Mapping())
}

func TestAnalyzeSkipsIncompleteProbes(t *testing.T) {
	r := &Result{
		MappingProbes: []*MappingProbe{
			{Mapped: public, Remote: server1},
			{Local: local, Mapped: public},
			nil,
			{Local: local, Mapped: public, Remote: server2},
		},
		FilteringProbes: []*FilteringProbe{
			{Local: local, Received: []*net.UDPAddr{server2}},
			{Local: local, Remote: server1, Received: []*net.UDPAddr{nil}},
		},
	}
	var a *Analysis
	require.NotPanics(t, func() { a = r.Analyze() })
	require.Equal(t, nat.EndpointIndependent, a.Mapping())
	require.True(t, a.NoFilteringData)
	require.Equal(t, nat.Unknown, a.Filtering())
}

func TestFiltering(t *testing.T) {
	probe := func(received ...*net.UDPAddr) *Result {
		return &Result{
			MappingProbes:   []*MappingProbe{{Local: local, Mapped: public, Remote: server1}},
			FilteringProbes: []*FilteringProbe{{Local: local, Remote: server1, Received: received}},
		}
	}
	require.Equal(t, nat.Unknown, probe().Analyze().Filtering())
	require.Equal(t, nat.AddressAndPortDependent, probe(server1).Analyze().Filtering())
	require.Equal(t, nat.AddressDependent, probe(server1, server1b).Analyze().Filtering())
	require.Equal(t, nat.EndpointIndependent, probe(server1, server2).Analyze().Filtering())

	open := &Result{
		MappingProbes:   []*MappingProbe{{Local: public, Mapped: public, Remote: server1}},
		FilteringProbes: []*FilteringProbe{{Local: public, Remote: server1, Received: []*net.UDPAddr{server2}}},
	}
	require.Equal(t, nat.Behavior{Mapping: nat.NotRealized, Filtering: nat.NotRealized}, open.Analyze().Behavior())
}

func bindingRequest(t *testing.T) *stun.Message {
	msg, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	require.Nil(t, err)
	return msg
}

func bindingResponse(t *testing.T, req *stun.Message, mapped *net.UDPAddr) *stun.Message {
	msg, err := stun.Build(stun.NewTransactionIDSetter(req.TransactionID), stun.BindingSuccess,
		&stun.XORMappedAddress{IP: mapped.IP.To4(), Port: mapped.Port})
	require.Nil(t, err)
	return msg
}

// packets for a full cone NAT: both servers see the same mapping, and the alternate server gets through.
func fullConeExchange(t *testing.T) []gopacket.Packet {
	req1 := bindingRequest(t)
	req2 := bindingRequest(t)
	return []gopacket.Packet{
		common.CreatePacketUDP(t, local, server1, req1.Raw),
		common.CreatePacketUDP(t, local, server1, req1.Raw), // retransmit
		common.CreatePacketUDP(t, server1, local, bindingResponse(t, req1, public).Raw),
		common.CreatePacketUDP(t, server2, local, bindingResponse(t, req1, public).Raw),
		common.CreatePacketUDP(t, local, server2, req2.Raw),
		common.CreatePacketUDP(t, server2, local, bindingResponse(t, req2, public).Raw),
		common.CreatePacketUDP(t, local, server1, []byte("not stun at all")),
	}
}

func TestCapture(t *testing.T) {
	c := NewCapture()
	stunCount := 0
	for _, pkt := range fullConeExchange(t) {
		if c.Add(pkt) {
			stunCount++
		}
	}
	require.Equal(t, 6, stunCount)

	r := c.Result()
	require.Len(t, r.MappingProbes, 2)
	require.Len(t, r.FilteringProbes, 2)
	require.False(t, r.MappingProbes[0].Timeout)
	require.True(t, r.MappingProbes[0].Mapped.IP.Equal(public.IP))
	require.Equal(t, public.Port, r.MappingProbes[0].Mapped.Port)
	require.Len(t, r.FilteringProbes[0].Received, 2)

	a := r.Analyze()
	require.Equal(t, nat.Behavior{Mapping: nat.EndpointIndependent, Filtering: nat.EndpointIndependent}, a.Behavior())
	require.Contains(t, r.String(), "Mapping probes")
}

func TestCaptureTimeout(t *testing.T) {
	c := NewCapture()
	req := bindingRequest(t)
	require.True(t, c.Add(common.CreatePacketUDP(t, local, server1, req.Raw)))
	// a response nobody asked for
	require.False(t, c.Add(common.CreatePacketUDP(t, server2, local, bindingResponse(t, bindingRequest(t), public).Raw)))

	r := c.Result()
	require.Len(t, r.MappingProbes, 1)
	require.True(t, r.MappingProbes[0].Timeout)
	require.Equal(t, nat.Unknown, r.Analyze().Mapping())
}

func TestReadPcap(t *testing.T) {
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.Nil(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	now := time.Now()
	for i, pkt := range fullConeExchange(t) {
		data := pkt.Data()
		ci := gopacket.CaptureInfo{Timestamp: now.Add(time.Duration(i) * time.Millisecond), CaptureLength: len(data), Length: len(data)}
		require.Nil(t, w.WritePacket(ci, data))
	}

	r, err := ReadPcap(&buf)
	require.Nil(t, err)
	require.Len(t, r.MappingProbes, 2)
	require.Equal(t, nat.Behavior{Mapping: nat.EndpointIndependent, Filtering: nat.EndpointIndependent}, r.Analyze().Behavior())

	_, err = ReadPcap(bytes.NewReader([]byte("definitely not a pcap file")))
	require.NotNil(t, err)
}
