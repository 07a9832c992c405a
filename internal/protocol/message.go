package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"g10.app/identity/internal/credential"
)

var (
	ErrMalformedRequest  = errors.New("protocol: malformed request")
	ErrMalformedResponse = errors.New("protocol: malformed response")
)

// Request is the authentication request payload.
type Request struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

// DecodeRequest parses a request payload. Both fields must be present and be strings.
func DecodeRequest(payload []byte) (Request, error) {
	var raw struct {
		User *string `json:"user"`
		Pass *string `json:"pass"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if raw.User == nil {
		return Request{}, fmt.Errorf("%w: missing \"user\"", ErrMalformedRequest)
	}
	if raw.Pass == nil {
		return Request{}, fmt.Errorf("%w: missing \"pass\"", ErrMalformedRequest)
	}
	return Request{User: *raw.User, Pass: *raw.Pass}, nil
}

// Encode returns the JSON payload for r.
func (r Request) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// Digest decodes the hex credential digest carried in Pass.
func (r Request) Digest() (credential.Digest, error) {
	return credential.ParseDigest(r.Pass)
}

// Outcome is the result of an authentication request.
type Outcome int

const (
	Denied Outcome = iota
	Granted
)

const (
	okay    = "okay"
	notOkay = "not okay"
)

func (o Outcome) String() string {
	if o == Granted {
		return okay
	}
	return notOkay
}

// EncodeOutcome returns the response payload: the JSON string "okay" or "not okay".
// Failure reasons are deliberately not distinguished on the wire.
func EncodeOutcome(o Outcome) []byte {
	b, _ := json.Marshal(o.String())
	return b
}

// DecodeOutcome parses a response payload. Anything but "okay" and "not okay" is an error.
func DecodeOutcome(payload []byte) (Outcome, error) {
	var s string
	if err := json.Unmarshal(payload, &s); err != nil {
		return Denied, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	switch s {
	case okay:
		return Granted, nil
	case notOkay:
		return Denied, nil
	}
	return Denied, fmt.Errorf("%w: unexpected response %q", ErrMalformedResponse, s)
}
