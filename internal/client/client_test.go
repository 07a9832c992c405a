package client

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"g10.app/identity/internal/credential"
	"g10.app/identity/internal/directory"
	"g10.app/identity/internal/obs"
	"g10.app/identity/internal/protocol"
	"g10.app/identity/internal/server"
)

func startServer(t *testing.T) string {
	t.Helper()
	d := directory.New()
	u, err := directory.NewUser(3, "Frank", 1, nil, nil, credential.Hash("f"))
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if err := d.AddUser(u); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.New(server.Config{}, d, obs.Discard()).Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func TestAuthenticate(t *testing.T) {
	c := New(startServer(t), time.Second)
	ctx := context.Background()

	cases := []struct {
		user, secret string
		want         protocol.Outcome
	}{
		{"Frank", "f", protocol.Granted},
		{"Frank", "wrong", protocol.Denied},
		{"Bob", "f", protocol.Denied},
	}
	for _, tc := range cases {
		got, err := c.Authenticate(ctx, tc.user, tc.secret)
		if err != nil {
			t.Fatalf("Authenticate(%s): %v", tc.user, err)
		}
		if got != tc.want {
			t.Fatalf("Authenticate(%s,%s)=%v want %v", tc.user, tc.secret, got, tc.want)
		}
	}
}

func TestAuthenticateDigestSentVerbatim(t *testing.T) {
	c := New(startServer(t), time.Second)
	got, err := c.AuthenticateDigest(context.Background(), "Frank", "252f10c83610ebca1a059c0bae8255eba2f95be4d1d7bcfa89d7248a82d9f11")
	if err != nil {
		t.Fatalf("AuthenticateDigest: %v", err)
	}
	if got != protocol.Denied {
		t.Fatalf("63 hex chars: got %v", got)
	}
}

func TestServerClosesWithoutResponse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			_, _ = io.ReadFull(conn, make([]byte, 8))
			conn.Close()
		}
	}()

	_, err = New(ln.Addr().String(), time.Second).Authenticate(context.Background(), "Frank", "f")
	if err == nil {
		t.Fatal("expected error when server closes without responding")
	}
}

func TestContextCancelAbortsExchange(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	hold := make(chan struct{})
	defer close(hold)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			<-hold
			conn.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = New(ln.Addr().String(), 10*time.Second).Authenticate(ctx, "Frank", "f")
	if err == nil {
		t.Fatal("expected error")
	}
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("cancel took %v", time.Since(start))
	}
}
