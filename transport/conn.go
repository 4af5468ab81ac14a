// Package transport is the ICMPv6 adapter under the RPL control plane: it
// owns the raw socket, joins the all-RPL-nodes group and shuttles type-155
// datagrams between the wire and the registered handlers.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv6"
	"gvisor.dev/gvisor/pkg/tcpip/header"

	"github.com/lowpan/rpl/wire"
)

// Message is one received RPL control message.
type Message struct {
	From      netip.Addr
	Code      wire.Code
	Payload   []byte
	Multicast bool // destination was a multicast group
}

// Handler consumes one received message.
type Handler func(Message)

// Conn is an ICMPv6 socket scoped to RPL traffic. All emissions are
// link-local with hop limit 255; anything that is not ICMPv6 type 155 is
// filtered out before it reaches a handler.
type Conn struct {
	c        *icmp.PacketConn
	pc       *ipv6.PacketConn
	ifi      *net.Interface
	handlers [6]Handler
}

// Listen opens the ICMPv6 socket on the named interface and joins the
// link-local all-RPL-nodes group.
func Listen(ifaceName string) (*Conn, error) {
	ifi, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("transport: interface %s: %w", ifaceName, err)
	}

	c, err := icmp.ListenPacket("ip6:ipv6-icmp", "::")
	if err != nil {
		return nil, fmt.Errorf("transport: listen: %w", err)
	}

	pc := c.IPv6PacketConn()
	if err := pc.SetControlMessage(ipv6.FlagDst, true); err != nil {
		c.Close()
		return nil, fmt.Errorf("transport: control messages: %w", err)
	}
	// All RPL control traffic travels with hop limit 255.
	if err := pc.SetHopLimit(255); err != nil {
		c.Close()
		return nil, err
	}
	if err := pc.SetMulticastHopLimit(255); err != nil {
		c.Close()
		return nil, err
	}
	if err := pc.SetMulticastInterface(ifi); err != nil {
		c.Close()
		return nil, err
	}

	group := &net.IPAddr{IP: wire.AllRPLNodes.AsSlice()}
	if err := pc.JoinGroup(ifi, group); err != nil {
		c.Close()
		return nil, fmt.Errorf("transport: join %s: %w", wire.AllRPLNodes, err)
	}

	var f ipv6.ICMPFilter
	f.SetAll(true)
	f.Accept(ipv6.ICMPType(wire.ICMPType))
	if err := pc.SetICMPFilter(&f); err != nil {
		c.Close()
		return nil, err
	}

	return &Conn{c: c, pc: pc, ifi: ifi}, nil
}

// Register binds the handler for one message code. The six RPL codes cover
// DIS, DIO, DAO, DAO-ACK, DCO and DCO-ACK.
func (t *Conn) Register(code wire.Code, h Handler) {
	if int(code) < len(t.handlers) {
		t.handlers[code] = h
	}
}

// Send transmits one RPL control message. The kernel computes the ICMPv6
// checksum for us on this socket type.
func (t *Conn) Send(dst netip.Addr, code wire.Code, payload []byte) error {
	msg := make(header.ICMPv6, header.ICMPv6HeaderSize+len(payload))
	msg.SetType(header.ICMPv6Type(wire.ICMPType))
	msg.SetCode(header.ICMPv6Code(code))
	copy(msg[header.ICMPv6HeaderSize:], payload)

	addr := &net.IPAddr{IP: dst.AsSlice()}
	if dst.IsLinkLocalUnicast() || dst.IsLinkLocalMulticast() {
		addr.Zone = t.ifi.Name
	}
	_, err := t.pc.WriteTo(msg, nil, addr)
	return err
}

// Serve reads messages until the context is cancelled, dispatching each to
// its registered handler.
func (t *Conn) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		t.c.Close()
	}()

	buf := make([]byte, 1500)
	for {
		n, cm, src, err := t.pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("transport: read: %w", err)
		}
		if n < header.ICMPv6HeaderSize {
			continue
		}

		msg := header.ICMPv6(buf[:n])
		if uint8(msg.Type()) != wire.ICMPType {
			continue
		}
		code := wire.Code(msg.Code())
		if int(code) >= len(t.handlers) || t.handlers[code] == nil {
			continue
		}

		from, ok := addrOf(src)
		if !ok {
			continue
		}
		multicast := cm != nil && cm.Dst != nil && cm.Dst.IsMulticast()

		payload := make([]byte, n-header.ICMPv6HeaderSize)
		copy(payload, buf[header.ICMPv6HeaderSize:n])

		t.handlers[code](Message{
			From:      from,
			Code:      code,
			Payload:   payload,
			Multicast: multicast,
		})
	}
}

// Close releases the socket.
func (t *Conn) Close() error {
	return t.c.Close()
}

func addrOf(a net.Addr) (netip.Addr, bool) {
	ipa, ok := a.(*net.IPAddr)
	if !ok {
		return netip.Addr{}, false
	}
	addr, ok := netip.AddrFromSlice(ipa.IP)
	if !ok {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
