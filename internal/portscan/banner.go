package portscan

import (
	"context"
	"net"
	"strconv"
	"time"
)

const (
	// BannerRequest is written right after connecting. It is enough to make
	// HTTP servers answer; services that greet first ignore or reject it.
	BannerRequest = "HEAD / HTTP/1.0\r\n\r\n"

	// MaxBannerBytes bounds how much of the response is kept.
	MaxBannerBytes = 1024
)

// GrabBanner connects to target:port, writes BannerRequest and returns the
// bytes of the first read. A connection that yields no bytes before timeout
// returns nil without error; a failed connect is a *ConnectionError and a
// cancellation before any byte arrived returns ctx.Err().
func GrabBanner(ctx context.Context, target string, port uint16, timeout time.Duration) ([]byte, error) {
	addr := net.JoinHostPort(target, strconv.Itoa(int(port)))
	d := net.Dialer{Timeout: timeout}

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Err: err}
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(timeout))
	// unblock the read if the caller gives up first
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	// a peer that already hung up still may have sent a greeting
	_, _ = conn.Write([]byte(BannerRequest))

	buf := make([]byte, MaxBannerBytes)
	n, _ := conn.Read(buf)
	if n == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return buf[:n], nil
}
