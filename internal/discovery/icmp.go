package discovery

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/net/icmp"
)

var echoPayload = []byte("netmonitor-ping")

// ICMPPinger sends one ICMP echo request per check.
// It uses a raw socket when privileged and falls back to an unprivileged
// datagram ICMP socket (Linux ping_group_range, macOS).
type ICMPPinger struct {
	network string
	id      uint16
	seq     atomic.Uint32
}

// NewICMPPinger fails when neither kind of ICMP socket can be opened.
func NewICMPPinger() (*ICMPPinger, error) {
	var lastErr error
	for _, network := range []string{"ip4:icmp", "udp4"} {
		c, err := icmp.ListenPacket(network, "0.0.0.0")
		if err != nil {
			lastErr = err
			continue
		}
		c.Close()
		return &ICMPPinger{network: network, id: uint16(os.Getpid() & 0xffff)}, nil
	}
	return nil, fmt.Errorf("open icmp socket: %w", lastErr)
}

// Ping opens its own socket, so concurrent pings never share state; the
// socket is closed on every path.
func (p *ICMPPinger) Ping(ctx context.Context, addr netip.Addr, timeout time.Duration) Reachability {
	if !addr.Is4() {
		return Reachability{State: ReachError, Err: fmt.Errorf("icmp ping: %s is not IPv4", addr)}
	}
	c, err := icmp.ListenPacket(p.network, "0.0.0.0")
	if err != nil {
		return Reachability{State: ReachError, Err: err}
	}
	defer c.Close()

	_ = c.SetDeadline(time.Now().Add(timeout))
	stop := context.AfterFunc(ctx, func() { _ = c.SetDeadline(time.Now()) })
	defer stop()

	seq := uint16(p.seq.Add(1))
	msg, err := encodeEcho(layers.ICMPv4TypeEchoRequest, p.id, seq, echoPayload)
	if err != nil {
		return Reachability{State: ReachError, Err: err}
	}

	var dst net.Addr = &net.IPAddr{IP: addr.AsSlice()}
	if p.network == "udp4" {
		dst = &net.UDPAddr{IP: addr.AsSlice()}
	}
	if _, err := c.WriteTo(msg, dst); err != nil {
		return p.classify(ctx, err)
	}

	buf := make([]byte, 1500)
	for {
		n, peer, err := c.ReadFrom(buf)
		if err != nil {
			return p.classify(ctx, err)
		}
		if !fromAddr(peer, addr) {
			continue
		}
		reply, ok := decodeEchoReply(buf[:n])
		if !ok || reply.Seq != seq {
			continue
		}
		// the kernel rewrites the id of unprivileged echo requests
		if p.network != "udp4" && reply.Id != p.id {
			continue
		}
		return Reachability{State: Reachable}
	}
}

func (p *ICMPPinger) classify(ctx context.Context, err error) Reachability {
	if ctx.Err() != nil {
		return Reachability{State: ReachError, Err: ctx.Err()}
	}
	if silent(err) {
		return Reachability{State: Unreachable}
	}
	return Reachability{State: ReachError, Err: err}
}

// encodeEcho serializes an ICMPv4 echo message with its checksum.
func encodeEcho(typ uint8, id, seq uint16, payload []byte) ([]byte, error) {
	echo := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(typ, 0),
		Id:       id,
		Seq:      seq,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, echo, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeEchoReply parses an ICMPv4 message without IP header.
func decodeEchoReply(b []byte) (*layers.ICMPv4, bool) {
	packet := gopacket.NewPacket(b, layers.LayerTypeICMPv4, gopacket.Default)
	l, ok := packet.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
	if !ok || l.TypeCode.Type() != layers.ICMPv4TypeEchoReply {
		return nil, false
	}
	return l, true
}

func fromAddr(peer net.Addr, want netip.Addr) bool {
	var ip net.IP
	switch a := peer.(type) {
	case *net.IPAddr:
		ip = a.IP
	case *net.UDPAddr:
		ip = a.IP
	default:
		return false
	}
	got, ok := netip.AddrFromSlice(ip)
	return ok && got.Unmap() == want
}
