// Package httpapi serves the challenge-response authentication endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nullspace/go-auth/internal/accountid"
	"nullspace/go-auth/internal/challenge"
	"nullspace/go-auth/internal/config"
	"nullspace/go-auth/internal/hexutil"
	"nullspace/go-auth/internal/ledger"
	"nullspace/go-auth/internal/metrics"
	"nullspace/go-auth/internal/platform/privacylog"
	"nullspace/go-auth/internal/platform/ratelimiter"
	"nullspace/go-auth/internal/session"
)

const DefaultListenAddr = ":8545"

type Server struct {
	httpServer *http.Server
	challenges *challenge.Service
	sessions   *session.Issuer
	limiters   map[string]*ratelimiter.WindowLimiter
	ipThrottle *ratelimiter.MapLimiter
	metrics    *metrics.Metrics
	logger     *slog.Logger

	submitter   *ledger.Submitter
	adminPubHex string
}

func NewServer(addr string, challenges *challenge.Service, sessions *session.Issuer, limits []config.RateLimit, m *metrics.Metrics, logger *slog.Logger) *Server {
	if addr == "" {
		addr = DefaultListenAddr
	}
	if logger == nil {
		logger = slog.Default()
	}
	limiters := make(map[string]*ratelimiter.WindowLimiter, len(limits))
	for _, rl := range limits {
		limiters[rl.Route] = ratelimiter.NewWindow(rl.Max, rl.Window)
	}

	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		challenges: challenges,
		sessions:   sessions,
		limiters:   limiters,
		ipThrottle: ratelimiter.New(50, 100, 10*time.Minute),
		metrics:    m,
		logger:     logger,
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/auth/challenge", s.handleChallenge)
	mux.HandleFunc("/auth/verify", s.handleVerify)
	mux.HandleFunc("/admin/submit", s.handleAdminSubmit)
	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}
	return s
}

// EnableAdmin turns on the privileged submission endpoint. Callers must hold
// a session bound to adminPubHex to use it.
func (s *Server) EnableAdmin(submitter *ledger.Submitter, adminPubHex string) {
	s.submitter = submitter
	s.adminPubHex = adminPubHex
}

func (s *Server) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type challengeRequest struct {
	PublicKey string `json:"publicKey"`
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.allow(w, r, "challenge") {
		return
	}

	var req challengeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	issued, err := s.challenges.Issue(r.Context(), strings.TrimSpace(req.PublicKey))
	if err != nil {
		if errors.Is(err, challenge.ErrInvalidPublicKey) {
			writeError(w, http.StatusBadRequest, "invalid_public_key")
			return
		}
		s.logger.Error("issue challenge failed", privacylog.SanitizeArgs("err", err.Error())...)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if s.metrics != nil {
		s.metrics.ChallengesIssued.Inc()
	}
	s.logger.Info("challenge issued",
		privacylog.SanitizeArgs("challenge_id", issued.ChallengeID, "client_ip", clientIP(r))...)
	writeJSON(w, http.StatusOK, issued)
}

type verifyRequest struct {
	ChallengeID string `json:"challengeId"`
	PublicKey   string `json:"publicKey"`
	Signature   string `json:"signature"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.allow(w, r, "verify") {
		return
	}

	var req verifyRequest
	if err := decodeBody(r, &req); err != nil {
		s.reject(w, r, "bad_body")
		return
	}

	pubHex := strings.TrimSpace(req.PublicKey)
	chBytes, err := s.challenges.Consume(r.Context(), req.ChallengeID, pubHex)
	if err != nil {
		s.logger.Error("consume challenge failed", privacylog.SanitizeArgs("err", err.Error())...)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if chBytes == nil {
		s.reject(w, r, "challenge_unknown")
		return
	}
	if s.metrics != nil {
		s.metrics.ChallengesConsumed.Inc()
	}
	if !challenge.VerifySignature(pubHex, req.Signature, hexutil.Encode(chBytes)) {
		s.reject(w, r, "signature_invalid")
		return
	}

	sess, err := s.sessions.Mint(r.Context(), pubHex)
	if err != nil {
		s.logger.Error("mint session failed", privacylog.SanitizeArgs("err", err.Error())...)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if s.metrics != nil {
		s.metrics.SessionsMinted.Inc()
	}

	pubBytes, err := hexutil.Decode(pubHex)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	acct, err := accountid.Build(pubBytes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	s.logger.Info("session minted",
		privacylog.SanitizeArgs("challenge_id", req.ChallengeID, "client_ip", clientIP(r))...)
	writeJSON(w, http.StatusOK, verifyResponse{Session: sess, AccountID: acct})
}

type verifyResponse struct {
	session.Session
	AccountID string `json:"accountId"`
}

func (s *Server) handleAdminSubmit(w http.ResponseWriter, r *http.Request) {
	if s.submitter == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.allow(w, r, "admin") {
		return
	}

	token, ok := bearerToken(r)
	if !ok {
		s.reject(w, r, "missing_bearer")
		return
	}
	serverPub, err := s.sessions.VerifyKey(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	subject, err := session.Verify(token, serverPub)
	if err != nil || subject != s.adminPubHex {
		s.reject(w, r, "not_admin")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil || len(payload) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.submitter.SubmitSigned(r.Context(), payload); err != nil {
		if s.metrics != nil {
			s.metrics.AdminSubmissions.WithLabelValues("failed").Inc()
		}
		s.logger.Error("admin submission failed", privacylog.SanitizeArgs("err", err.Error())...)
		if errors.Is(err, ledger.ErrSubmitRejected) {
			writeError(w, http.StatusBadGateway, "submit_rejected")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "ledger_unavailable")
		return
	}
	if s.metrics != nil {
		s.metrics.AdminSubmissions.WithLabelValues("ok").Inc()
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

// reject answers every failed verification the same way so callers cannot
// distinguish an unknown challenge from a bad signature.
func (s *Server) reject(w http.ResponseWriter, r *http.Request, reason string) {
	if s.metrics != nil {
		s.metrics.AuthRejected.WithLabelValues(reason).Inc()
	}
	s.logger.Info("auth rejected",
		privacylog.SanitizeArgs("reason", reason, "client_ip", clientIP(r))...)
	writeError(w, http.StatusUnauthorized, "auth_failed")
}

func (s *Server) allow(w http.ResponseWriter, r *http.Request, route string) bool {
	now := time.Now()
	ip := clientIP(r)
	if !s.ipThrottle.Allow(ip, now) {
		s.limited(w, r, route, time.Second)
		return false
	}
	if l := s.limiters[route]; l != nil {
		if ok, wait := l.Allow(route+":"+ip, now); !ok {
			s.limited(w, r, route, wait)
			return false
		}
	}
	return true
}

func (s *Server) limited(w http.ResponseWriter, r *http.Request, route string, wait time.Duration) {
	if s.metrics != nil {
		s.metrics.RateLimited.WithLabelValues(route).Inc()
	}
	s.logger.Info("rate limited",
		privacylog.SanitizeArgs("route", route, "client_ip", clientIP(r))...)
	secs := int(wait / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, "rate_limited")
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func clientIP(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(remote)
	if err != nil || strings.TrimSpace(host) == "" {
		return remote
	}
	return host
}
