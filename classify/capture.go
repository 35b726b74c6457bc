package classify

import (
	"errors"
	"fmt"
	"io"
	"net"

	"gotraverse/common"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
	"github.com/pion/stun"
	"github.com/rs/zerolog/log"
)

var ErrNoMappedAddress = errors.New("STUN response has no mapped address")

type transaction struct {
	local    *net.UDPAddr
	remote   *net.UDPAddr
	mapped   *net.UDPAddr
	received []*net.UDPAddr
}

// Capture rebuilds probe results from STUN binding traffic recorded on the probing host.
// Requests are matched with responses by transaction ID. The first response carries the mapped
// address. Every response, including ones sent from a server's alternate address after a
// CHANGE-REQUEST, shows what the NAT's filter let through.
type Capture struct {
	transactions map[[stun.TransactionIDSize]byte]*transaction
	order        []*transaction
}

func NewCapture() *Capture {
	return &Capture{transactions: make(map[[stun.TransactionIDSize]byte]*transaction)}
}

// Add feeds one packet. It returns false for anything that is not a STUN binding request or response.
func (c *Capture) Add(pkt gopacket.Packet) bool {
	src, dst, payload, err := common.UDPEndpoints(pkt)
	if err != nil || !stun.IsMessage(payload) {
		return false
	}

	msg := &stun.Message{Raw: append([]byte{}, payload...)}
	if err := msg.Decode(); err != nil {
		log.Debug().Err(err).Msgf("Dropping undecodable STUN packet %s -> %s", src, dst)
		return false
	}

	switch msg.Type {
	case stun.BindingRequest:
		if _, ok := c.transactions[msg.TransactionID]; ok {
			// retransmission
			return true
		}
		tx := &transaction{local: src, remote: dst}
		c.transactions[msg.TransactionID] = tx
		c.order = append(c.order, tx)
		return true
	case stun.BindingSuccess:
		tx, ok := c.transactions[msg.TransactionID]
		if !ok {
			log.Debug().Msgf("STUN response %s -> %s without a request, ignoring", src, dst)
			return false
		}
		tx.received = append(tx.received, src)
		if tx.mapped == nil {
			mapped, err := mappedAddress(msg)
			if err != nil {
				log.Debug().Err(err).Msgf("STUN response %s -> %s", src, dst)
				return true
			}
			tx.mapped = mapped
		}
		return true
	}
	return false
}

// mappedAddress prefers XOR-MAPPED-ADDRESS and falls back to MAPPED-ADDRESS.
func mappedAddress(msg *stun.Message) (*net.UDPAddr, error) {
	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(msg); err == nil {
		return &net.UDPAddr{IP: xorAddr.IP, Port: xorAddr.Port}, nil
	}
	var mapped stun.MappedAddress
	if err := mapped.GetFrom(msg); err == nil {
		return &net.UDPAddr{IP: mapped.IP, Port: mapped.Port}, nil
	}
	return nil, ErrNoMappedAddress
}

// Result returns one mapping and one filtering probe per request seen, in capture order.
func (c *Capture) Result() *Result {
	r := &Result{}
	for _, tx := range c.order {
		r.MappingProbes = append(r.MappingProbes, &MappingProbe{
			Local:   tx.local,
			Mapped:  tx.mapped,
			Remote:  tx.remote,
			Timeout: tx.mapped == nil,
		})
		received := make([]*net.UDPAddr, len(tx.received))
		copy(received, tx.received)
		r.FilteringProbes = append(r.FilteringProbes, &FilteringProbe{
			Local:    tx.local,
			Remote:   tx.remote,
			Received: received,
		})
	}
	return r
}

// ReadPcap runs every packet of a pcap file through a Capture.
func ReadPcap(r io.Reader) (*Result, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading pcap header: %w", err)
	}
	c := NewCapture()
	source := gopacket.NewPacketSource(reader, reader.LinkType())
	total, stunCount := 0, 0
	for {
		pkt, err := source.NextPacket()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("reading packet %d: %w", total+1, err)
		}
		total++
		if c.Add(pkt) {
			stunCount++
		}
	}
	log.Debug().Msgf("Read %d packets, %d STUN binding messages, %d transactions", total, stunCount, len(c.order))
	return c.Result(), nil
}
