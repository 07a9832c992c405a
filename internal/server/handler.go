package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"g10.app/identity/internal/audit"
	"g10.app/identity/internal/ids"
	"g10.app/identity/internal/obs"
	"g10.app/identity/internal/protocol"
	"g10.app/identity/internal/stream"
)

// Connection results, used as the metrics label and in logs.
const (
	resultGranted     = "granted"
	resultDenied      = "denied"
	resultMalformed   = "malformed"
	resultBadDigest   = "bad_digest"
	resultTooLarge    = "too_large"
	resultShortRead   = "short_read"
	resultEmpty       = "empty"
	resultRateLimited = "rate_limited"
	resultWriteFailed = "write_failed"
)

// decision is the outcome of one request. Every branch of authenticate sets all fields.
type decision struct {
	outcome protocol.Outcome
	result  string
	reason  string
	user    string
	userID  uint64
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connID := ids.New()
	ctx = audit.WithConnID(ctx, connID)
	log := s.log.With("conn_id", connID, "remote", conn.RemoteAddr().String())

	done := obs.ConnStarted()
	result := s.serveConn(ctx, conn, log)
	done(result)

	log.Debug("conn.closed", "result", result)
}

// serveConn runs the per-connection state machine: read length, read payload,
// parse, authenticate, respond. Failures before the payload is fully read close
// the connection without a response; once a payload is in hand the client always
// gets a framed "okay" or "not okay".
func (s *Server) serveConn(ctx context.Context, conn net.Conn, log *slog.Logger) string {
	if s.limiter != nil && !s.limiter.allow(hostOf(conn.RemoteAddr())) {
		log.Warn("conn.rate_limited")
		return resultRateLimited
	}

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	payload, err := protocol.ReadFrame(conn, s.cfg.MaxPayload)
	if err != nil {
		switch {
		case errors.Is(err, protocol.ErrFrameTooLarge):
			log.Warn("conn.frame_too_large", "err", err)
			return resultTooLarge
		case errors.Is(err, io.EOF):
			return resultEmpty
		default:
			log.Warn("conn.read.fail", "err", err)
			return resultShortRead
		}
	}

	d := s.authenticate(payload)
	obs.AuthDecision(d.outcome.String())
	s.audit(ctx, conn, d, log)
	if s.events != nil {
		s.events.Publish(stream.Decision{
			ConnID:    audit.ConnIDFromContext(ctx),
			Remote:    conn.RemoteAddr().String(),
			User:      d.user,
			UserID:    d.userID,
			Outcome:   d.outcome.String(),
			Reason:    d.reason,
			Timestamp: time.Now().UTC(),
		})
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := protocol.WriteFrame(conn, protocol.EncodeOutcome(d.outcome)); err != nil {
		log.Debug("conn.write.fail", "err", err)
		return resultWriteFailed
	}
	return d.result
}

func (s *Server) authenticate(payload []byte) decision {
	req, err := protocol.DecodeRequest(payload)
	if err != nil {
		return decision{outcome: protocol.Denied, result: resultMalformed, reason: err.Error()}
	}
	digest, err := req.Digest()
	if err != nil {
		return decision{outcome: protocol.Denied, result: resultBadDigest, reason: err.Error(), user: req.User}
	}
	u, ok := s.lookup.UserByCredential(digest)
	if !ok {
		return decision{outcome: protocol.Denied, result: resultDenied, reason: "unknown credential", user: req.User}
	}
	if u.Name != req.User {
		return decision{outcome: protocol.Denied, result: resultDenied, reason: "name mismatch", user: req.User}
	}
	return decision{outcome: protocol.Granted, result: resultGranted, reason: "match", user: req.User, userID: u.ID}
}

func (s *Server) audit(ctx context.Context, conn net.Conn, d decision, log *slog.Logger) {
	fields := map[string]any{
		"remote":  conn.RemoteAddr().String(),
		"user":    d.user,
		"outcome": d.outcome.String(),
		"reason":  d.reason,
	}
	if d.outcome == protocol.Granted {
		fields["user_id"] = d.userID
	}
	if err := audit.LogEvent(ctx, s.log, "auth.decision", fields); err != nil {
		log.Error("audit.fail", "err", err)
	}
}

func hostOf(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
