package httpapi

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"g10.app/identity/internal/codec"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// render negotiates between JSON and CBOR on the Accept header.
func render(w http.ResponseWriter, r *http.Request, code int, v any) {
	if !wantsCBOR(r) {
		writeJSON(w, code, v)
		return
	}
	body, err := codec.Marshal(v)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "encode cbor: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", codec.ContentType)
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func wantsCBOR(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == codec.ContentType {
			return true
		}
	}
	return false
}
