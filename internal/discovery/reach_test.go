package discovery

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
)

func closedPort(t *testing.T) uint16 {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := uint16(l.Addr().(*net.TCPAddr).Port)
	_ = l.Close()
	time.Sleep(20 * time.Millisecond)
	return port
}

func TestTCPPinger_Listening(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	port := uint16(l.Addr().(*net.TCPAddr).Port)

	out := TCPPinger{Ports: []uint16{port}}.Ping(context.Background(), netip.MustParseAddr("127.0.0.1"), time.Second)
	if out.State != Reachable {
		t.Fatalf("got %s (%v) want reachable", out.State, out.Err)
	}
}

func TestTCPPinger_Refused(t *testing.T) {
	out := TCPPinger{Ports: []uint16{closedPort(t)}}.Ping(context.Background(), netip.MustParseAddr("127.0.0.1"), time.Second)
	if out.State != Reachable {
		t.Fatalf("got %s (%v) want reachable", out.State, out.Err)
	}
}

func TestTCPPinger_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := TCPPinger{Ports: []uint16{closedPort(t)}}.Ping(ctx, netip.MustParseAddr("127.0.0.1"), time.Second)
	if out.State != ReachError {
		t.Fatalf("got %s want error", out.State)
	}
}

func TestNewPinger(t *testing.T) {
	p, err := NewPinger("tcp", []uint16{22})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp, ok := p.(TCPPinger); !ok || len(tp.Ports) != 1 {
		t.Fatalf("got %#v", p)
	}

	if p, err := NewPinger("auto", nil); err != nil || p == nil {
		t.Fatalf("auto: got %v, %v", p, err)
	}

	if _, err := NewPinger("arp", nil); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestEchoRoundTrip(t *testing.T) {
	b, err := encodeEcho(layers.ICMPv4TypeEchoReply, 0x1234, 7, echoPayload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	reply, ok := decodeEchoReply(b)
	if !ok {
		t.Fatalf("reply not decoded")
	}
	if reply.Id != 0x1234 || reply.Seq != 7 {
		t.Fatalf("got id=%#x seq=%d", reply.Id, reply.Seq)
	}
	if string(reply.Payload) != string(echoPayload) {
		t.Fatalf("got payload %q", reply.Payload)
	}

	req, err := encodeEcho(layers.ICMPv4TypeEchoRequest, 1, 1, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, ok := decodeEchoReply(req); ok {
		t.Fatalf("echo request must not be taken for a reply")
	}
}

func TestICMPPinger_Loopback(t *testing.T) {
	p, err := NewICMPPinger()
	if err != nil {
		t.Skipf("no icmp socket available: %v", err)
	}
	out := p.Ping(context.Background(), netip.MustParseAddr("127.0.0.1"), 2*time.Second)
	if out.State != Reachable {
		t.Fatalf("got %s (%v) want reachable", out.State, out.Err)
	}
}

func TestFromAddr(t *testing.T) {
	want := netip.MustParseAddr("10.0.0.3")
	if !fromAddr(&net.IPAddr{IP: net.ParseIP("10.0.0.3")}, want) {
		t.Fatalf("IPAddr not matched")
	}
	if !fromAddr(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 3)}, want) {
		t.Fatalf("UDPAddr not matched")
	}
	if fromAddr(&net.IPAddr{IP: net.ParseIP("10.0.0.4")}, want) {
		t.Fatalf("wrong peer matched")
	}
}
