package common

import (
	"errors"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

var (
	// FixLengths is required, otherwise UDP lengths are left at zero.
	Options = gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	ErrNotUDP = errors.New("not a UDP packet")

	srcMACTest = net.HardwareAddr{0x00, 0x0F, 0xAA, 0xFA, 0xAA, 0x00}
	dstMACTest = net.HardwareAddr{0x00, 0x0D, 0xBD, 0xBD, 0x00, 0xBD}
)

func GetIP(flow gopacket.NetworkLayer) (net.IP, net.IP) {
	f := flow.NetworkFlow()
	return net.IP(f.Src().Raw()), net.IP(f.Dst().Raw())
}

// UDPEndpoints returns source and destination of a UDP packet, plus its payload.
func UDPEndpoints(pkt gopacket.Packet) (src, dst *net.UDPAddr, payload []byte, err error) {
	network := pkt.NetworkLayer()
	udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if network == nil || !ok {
		return nil, nil, nil, ErrNotUDP
	}
	srcIP, dstIP := GetIP(network)
	src = &net.UDPAddr{IP: srcIP, Port: int(udp.SrcPort)}
	dst = &net.UDPAddr{IP: dstIP, Port: int(udp.DstPort)}
	return src, dst, udp.Payload, nil
}

// SerializeUDP builds ethernet/ipv4/udp bytes around payload.
func SerializeUDP(src, dst *net.UDPAddr, payload []byte) ([]byte, error) {
	ethernetLayer := &layers.Ethernet{
		SrcMAC:       srcMACTest,
		DstMAC:       dstMACTest,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ipLayer := &layers.IPv4{
		SrcIP:    src.IP.To4(),
		DstIP:    dst.IP.To4(),
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
	}
	udpLayer := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port),
		DstPort: layers.UDPPort(dst.Port),
	}
	if err := udpLayer.SetNetworkLayerForChecksum(ipLayer); err != nil {
		return nil, err
	}
	buffer := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buffer, Options,
		ethernetLayer,
		ipLayer,
		udpLayer,
		gopacket.Payload(payload),
	)
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// CreatePacketUDP is SerializeUDP for tests, decoded back into a gopacket.Packet.
func CreatePacketUDP(t require.TestingT, src, dst *net.UDPAddr, payload []byte) (packet gopacket.Packet) {
	buf, err := SerializeUDP(src, dst, payload)
	require.Nil(t, err)
	return gopacket.NewPacket(buf, layers.LayerTypeEthernet, gopacket.Default)
}
