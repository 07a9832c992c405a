package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"g10.app/identity/internal/directory"
	"g10.app/identity/internal/obs"
)

func TestParseFlagsOverridesEnv(t *testing.T) {
	t.Setenv("IDENTITY_WORKERS", "8")
	t.Setenv("IDENTITY_ADDR", "127.0.0.1:7000")

	var stderr bytes.Buffer
	cfg, err := parseFlags([]string{"--workers", "2", "--read-timeout", "3s", "-s", "seed.yaml", "--admin-addr", ""}, &stderr)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.Workers != 2 || cfg.Addr != "127.0.0.1:7000" || cfg.ReadTimeout != 3*time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.SeedFile != "seed.yaml" || cfg.AdminAddr != "" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseFlagsValidates(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseFlags([]string{"--workers", "0"}, &stderr)
	if err == nil || !strings.Contains(err.Error(), "workers") {
		t.Fatalf("expected workers error, got %v", err)
	}
}

func TestPopulateFromSeed(t *testing.T) {
	cfg, err := parseFlags([]string{"--seed", filepath.Join("..", "..", "internal", "seed", "testdata", "acme.yaml")}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	dir, err := populate(context.Background(), cfg, obs.Discard())
	if err != nil {
		t.Fatalf("populate: %v", err)
	}
	if got := dir.Counts()[directory.KindUsers]; got != 7 {
		t.Fatalf("users = %d", got)
	}
}

func TestPopulateFailureReturnsNoDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.json")
	body := `{"users": [
		{"user_id": 1, "name": "Alice", "password": "a"},
		{"user_id": 2, "name": "Bob", "password": "a"}
	]}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := parseFlags([]string{"--seed", path}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	dir, err := populate(context.Background(), cfg, obs.Discard())
	if !errors.Is(err, directory.ErrDuplicateCredential) {
		t.Fatalf("expected ErrDuplicateCredential, got %v", err)
	}
	if dir != nil {
		t.Fatalf("partially populated directory returned: %v", dir.Counts())
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestRunStopsWithEventSubscriberAttached(t *testing.T) {
	adminAddr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"--addr", "127.0.0.1:0", "--admin-addr", adminAddr}, io.Discard)
	}()

	var resp *http.Response
	deadline := time.Now().Add(5 * time.Second)
	for {
		r, err := http.Get("http://" + adminAddr + "/v1/events")
		if err == nil {
			resp = r
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("admin server never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("events status %d", resp.StatusCode)
	}
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil || line != ": stream started\n" {
		t.Fatalf("first line = %q, %v", line, err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after cancel while a subscriber was attached")
	}
}
