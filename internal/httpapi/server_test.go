package httpapi

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"nullspace/go-auth/internal/challenge"
	"nullspace/go-auth/internal/config"
	"nullspace/go-auth/internal/hexutil"
	"nullspace/go-auth/internal/keysigner"
	"nullspace/go-auth/internal/ledger"
	"nullspace/go-auth/internal/metrics"
	"nullspace/go-auth/internal/session"
)

type memStore struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemStore() *memStore { return &memStore{m: make(map[string][]byte)} }

func (s *memStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *memStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = append([]byte(nil), value...)
	return nil
}

func (s *memStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func newTestServer(t *testing.T, limits []config.RateLimit) *Server {
	t.Helper()
	svc, err := challenge.NewService(challenge.NewMemoryStore(), challenge.DefaultTTL)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	iss, err := session.NewIssuer(keysigner.New(newMemStore()), session.DefaultTTL)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewServer("", svc, iss, limits, metrics.New(), logger)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.RemoteAddr = "192.0.2.1:50000"
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func newKeypair(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return hexutil.Encode(pub), priv
}

func TestChallengeVerifyRoundTrip(t *testing.T) {
	s := newTestServer(t, nil)
	pubHex, priv := newKeypair(t)

	rec := postJSON(t, s, "/auth/challenge", map[string]string{"publicKey": pubHex})
	if rec.Code != http.StatusOK {
		t.Fatalf("challenge status = %d, body %s", rec.Code, rec.Body.String())
	}
	var issued challenge.Issued
	if err := json.Unmarshal(rec.Body.Bytes(), &issued); err != nil {
		t.Fatalf("decode issued: %v", err)
	}

	chBytes, err := hexutil.Decode(issued.ChallengeHex)
	if err != nil {
		t.Fatalf("decode challenge hex: %v", err)
	}
	sig := ed25519.Sign(priv, challenge.CanonicalMessage(chBytes))

	rec = postJSON(t, s, "/auth/verify", map[string]string{
		"challengeId": issued.ChallengeID,
		"publicKey":   pubHex,
		"signature":   hexutil.Encode(sig),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body %s", rec.Code, rec.Body.String())
	}
	var sess session.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.Token == "" || sess.PublicKeyHex != pubHex {
		t.Fatalf("session = %+v", sess)
	}

	// The challenge is burned: replaying the same proof fails.
	rec = postJSON(t, s, "/auth/verify", map[string]string{
		"challengeId": issued.ChallengeID,
		"publicKey":   pubHex,
		"signature":   hexutil.Encode(sig),
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replay status = %d, want 401", rec.Code)
	}
}

func TestVerifyFailuresAreUniform(t *testing.T) {
	s := newTestServer(t, nil)
	pubHex, priv := newKeypair(t)
	otherHex, _ := newKeypair(t)

	issue := func() challenge.Issued {
		rec := postJSON(t, s, "/auth/challenge", map[string]string{"publicKey": pubHex})
		var issued challenge.Issued
		if err := json.Unmarshal(rec.Body.Bytes(), &issued); err != nil {
			t.Fatalf("decode issued: %v", err)
		}
		return issued
	}

	issued := issue()
	chBytes, _ := hexutil.Decode(issued.ChallengeHex)
	goodSig := hexutil.Encode(ed25519.Sign(priv, challenge.CanonicalMessage(chBytes)))

	cases := []struct {
		name string
		body map[string]string
	}{
		{"unknown challenge id", map[string]string{
			"challengeId": "b4b9fbb1-0000-0000-0000-000000000000", "publicKey": pubHex, "signature": goodSig}},
		{"wrong public key", map[string]string{
			"challengeId": issue().ChallengeID, "publicKey": otherHex, "signature": goodSig}},
		{"garbage signature", map[string]string{
			"challengeId": issue().ChallengeID, "publicKey": pubHex, "signature": "zz"}},
		{"malformed public key", map[string]string{
			"challengeId": issue().ChallengeID, "publicKey": "nothex", "signature": goodSig}},
	}
	for _, tc := range cases {
		rec := postJSON(t, s, "/auth/verify", tc.body)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", tc.name, rec.Code)
		}
		var payload map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("%s: decode body: %v", tc.name, err)
		}
		if payload["error"] != "auth_failed" {
			t.Fatalf("%s: error = %q, want uniform auth_failed", tc.name, payload["error"])
		}
	}
}

func TestChallengeRejectsInvalidPublicKey(t *testing.T) {
	s := newTestServer(t, nil)
	rec := postJSON(t, s, "/auth/challenge", map[string]string{"publicKey": "not-a-key"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRateLimitReturnsRetryAfter(t *testing.T) {
	s := newTestServer(t, []config.RateLimit{{Route: "challenge", Max: 2, Window: time.Minute}})
	pubHex, _ := newKeypair(t)

	for i := 0; i < 2; i++ {
		rec := postJSON(t, s, "/auth/challenge", map[string]string{"publicKey": pubHex})
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := postJSON(t, s, "/auth/challenge", map[string]string{"publicKey": pubHex})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
}

func TestAdminSubmitRequiresAdminSession(t *testing.T) {
	ctx := context.Background()
	var submissions [][]byte
	ledgerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/submit":
			raw, _ := io.ReadAll(r.Body)
			submissions = append(submissions, raw)
		default:
			w.Write([]byte(`{"nonce":3,"balance":0}`))
		}
	}))
	defer ledgerSrv.Close()

	seed := bytes.Repeat([]byte{7}, ed25519.SeedSize)
	signer, err := keysigner.FromSeed(seed)
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	adminPriv := ed25519.NewKeyFromSeed(seed)
	adminPub, err := signer.PublicKey(ctx)
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	adminHex := hexutil.Encode(adminPub)

	svc, err := challenge.NewService(challenge.NewMemoryStore(), challenge.DefaultTTL)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	iss, err := session.NewIssuer(signer, session.DefaultTTL)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
	s := NewServer("", svc, iss, nil, metrics.New(), logger)

	client := ledger.NewClient(ledgerSrv.URL, time.Second)
	sub, err := ledger.NewSubmitter(ctx, client, ledger.NewLocalCounter(), signer)
	if err != nil {
		t.Fatalf("NewSubmitter: %v", err)
	}
	s.EnableAdmin(sub, adminHex)

	// Authenticate as the admin key through the normal flow.
	rec := postJSON(t, s, "/auth/challenge", map[string]string{"publicKey": adminHex})
	var issued challenge.Issued
	if err := json.Unmarshal(rec.Body.Bytes(), &issued); err != nil {
		t.Fatalf("decode issued: %v", err)
	}
	chBytes, _ := hexutil.Decode(issued.ChallengeHex)
	sig := ed25519.Sign(adminPriv, challenge.CanonicalMessage(chBytes))
	rec = postJSON(t, s, "/auth/verify", map[string]string{
		"challengeId": issued.ChallengeID,
		"publicKey":   adminHex,
		"signature":   hexutil.Encode(sig),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body %s", rec.Code, rec.Body.String())
	}
	var sess session.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}

	submit := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/admin/submit", bytes.NewReader([]byte("payload")))
		req.RemoteAddr = "192.0.2.1:50000"
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		out := httptest.NewRecorder()
		s.httpServer.Handler.ServeHTTP(out, req)
		return out
	}

	if rec := submit(""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated submit status = %d", rec.Code)
	}
	if rec := submit("garbage"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token submit status = %d", rec.Code)
	}
	if rec := submit(sess.Token); rec.Code != http.StatusAccepted {
		t.Fatalf("admin submit status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(submissions) != 1 {
		t.Fatalf("ledger saw %d submissions", len(submissions))
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
