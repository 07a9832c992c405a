// Package client speaks the authentication protocol from the caller's side.
package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"g10.app/identity/internal/credential"
	"g10.app/identity/internal/protocol"
)

// Client opens one connection per request, as the server expects.
type Client struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
}

// New returns a client for addr. A non-positive timeout defaults to 10s and
// bounds the whole exchange.
func New(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{addr: addr, timeout: timeout}
}

// Authenticate hashes secret and asks the server whether it belongs to user.
func (c *Client) Authenticate(ctx context.Context, user, secret string) (protocol.Outcome, error) {
	return c.AuthenticateDigest(ctx, user, credential.Hash(secret).String())
}

// AuthenticateDigest sends a pre-computed hex digest verbatim.
func (c *Client) AuthenticateDigest(ctx context.Context, user, digest string) (protocol.Outcome, error) {
	payload, err := protocol.Request{User: user, Pass: digest}.Encode()
	if err != nil {
		return protocol.Denied, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return protocol.Denied, fmt.Errorf("dial %s: %w", c.addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if err := protocol.WriteFrame(conn, payload); err != nil {
		return protocol.Denied, fmt.Errorf("send request: %w", err)
	}
	resp, err := protocol.ReadFrame(conn, protocol.MaxPayload)
	if err != nil {
		return protocol.Denied, fmt.Errorf("read response: %w", err)
	}
	return protocol.DecodeOutcome(resp)
}
