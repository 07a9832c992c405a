package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"g10.app/identity/internal/credential"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"user":"Frank","pass":"00"}`)
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatal(err)
	}
	if got := binary.LittleEndian.Uint64(buf.Bytes()[:8]); got != uint64(len(payload)) {
		t.Fatalf("length prefix %d, want %d", got, len(payload))
	}
	got, err := ReadFrame(&buf, MaxPayload)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload %q, want %q", got, payload)
	}
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func TestReadFrameTooLargeDoesNotReadPayload(t *testing.T) {
	var buf bytes.Buffer
	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], 5000)
	buf.Write(hdr[:])
	buf.Write(bytes.Repeat([]byte("x"), 5000))

	cr := &countingReader{r: &buf}
	_, err := ReadFrame(cr, MaxPayload)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if cr.n != 8 {
		t.Fatalf("read %d bytes, expected only the 8 byte header", cr.n)
	}
}

func TestReadFrameShort(t *testing.T) {
	var buf bytes.Buffer
	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], 10)
	buf.Write(hdr[:])
	buf.WriteString("abc")
	if _, err := ReadFrame(&buf, MaxPayload); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got %v", err)
	}

	if _, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}), MaxPayload); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame for truncated header, got %v", err)
	}
	if _, err := ReadFrame(bytes.NewReader(nil), MaxPayload); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF for empty stream, got %v", err)
	}
}

func TestDecodeRequest(t *testing.T) {
	digest := credential.Hash("f")
	req, err := DecodeRequest([]byte(`{"user":"Frank","pass":"` + digest.String() + `"}`))
	if err != nil {
		t.Fatal(err)
	}
	if req.User != "Frank" {
		t.Fatalf("unexpected user %q", req.User)
	}
	d, err := req.Digest()
	if err != nil || d != digest {
		t.Fatalf("Digest()=%s,%v", d, err)
	}

	for _, payload := range []string{
		`not json`,
		`{"user":"Frank"}`,
		`{"pass":"00"}`,
		`{"user":1,"pass":"00"}`,
		`["user","pass"]`,
	} {
		if _, err := DecodeRequest([]byte(payload)); !errors.Is(err, ErrMalformedRequest) {
			t.Fatalf("DecodeRequest(%s): expected ErrMalformedRequest, got %v", payload, err)
		}
	}
}

func TestRequestDigestOddLength(t *testing.T) {
	req := Request{User: "Frank", Pass: credential.Hash("f").String()[:63]}
	if _, err := req.Digest(); !errors.Is(err, credential.ErrOddLength) {
		t.Fatalf("expected ErrOddLength, got %v", err)
	}
}

func TestOutcomeEncoding(t *testing.T) {
	if got := string(EncodeOutcome(Granted)); got != `"okay"` {
		t.Fatalf("Granted encodes as %s", got)
	}
	if got := string(EncodeOutcome(Denied)); got != `"not okay"` {
		t.Fatalf("Denied encodes as %s", got)
	}
	for _, o := range []Outcome{Granted, Denied} {
		back, err := DecodeOutcome(EncodeOutcome(o))
		if err != nil || back != o {
			t.Fatalf("DecodeOutcome(%v)=%v,%v", o, back, err)
		}
	}
	if _, err := DecodeOutcome([]byte(`"maybe"`)); err == nil {
		t.Fatal("expected error for unknown response")
	}
}
