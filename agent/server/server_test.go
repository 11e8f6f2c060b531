package server

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
	orchestratorx "github.com/tanpawarit/whiteboard-agent/agent/orchestrator"
	qstashx "github.com/tanpawarit/whiteboard-agent/pkg/qstash"
)

type fakeSolver struct {
	out   orchestratorx.Outcome
	err   error
	calls int
	got   [2]string
}

func (f *fakeSolver) HandleMessage(ctx context.Context, sessionID string, text string) (orchestratorx.Outcome, error) {
	f.calls++
	f.got = [2]string{sessionID, text}
	return f.out, f.err
}

type fakeStore struct {
	entries []contractx.Entry
	cleared string
	err     error
}

func (f *fakeStore) Append(context.Context, string, contractx.Entry) (int64, error) { return 0, nil }

func (f *fakeStore) Read(ctx context.Context, sessionID string) ([]contractx.Entry, error) {
	if err := contractx.CheckSessionID(sessionID); err != nil {
		return nil, err
	}
	return f.entries, f.err
}

func (f *fakeStore) Clear(ctx context.Context, sessionID string) error {
	f.cleared = sessionID
	return f.err
}

func (f *fakeStore) Count(context.Context, string) (int, error) { return len(f.entries), nil }

func newTestServer(t *testing.T, solver Solver, store contractx.TranscriptStore, verifier *qstashx.Verifier) *httptest.Server {
	t.Helper()
	h, err := NewHandler(solver, store, verifier, Config{})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSolveEndpoint(t *testing.T) {
	t.Parallel()

	solver := &fakeSolver{out: orchestratorx.Outcome{Answer: "5", Status: orchestratorx.StatusAnswered, Turns: 2}}
	srv := newTestServer(t, solver, &fakeStore{}, nil)

	resp, err := http.Post(srv.URL+SolvePath, "application/json", strings.NewReader(`{"session_id":"s1","message":"What is 2+3?"}`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out orchestratorx.Outcome
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Answer != "5" || out.Status != orchestratorx.StatusAnswered || out.Turns != 2 {
		t.Fatalf("outcome = %#v", out)
	}
	if solver.got != [2]string{"s1", "What is 2+3?"} {
		t.Fatalf("solver got %v", solver.got)
	}
}

func TestSolveEndpointErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		body   string
		status int
	}{
		{"bad json", nil, `{`, http.StatusBadRequest},
		{"invalid session", contractx.ErrInvalidSession, `{"message":"hi"}`, http.StatusBadRequest},
		{"storage", &contractx.StorageError{Op: "append", SessionID: "s1", Err: errors.New("down")}, `{"session_id":"s1","message":"hi"}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeSolver{err: tt.err}, &fakeStore{}, nil)
			resp, err := http.Post(srv.URL+SolvePath, "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST error = %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestSolveEndpointRequiresSignatureWhenKeysSet(t *testing.T) {
	t.Parallel()

	solver := &fakeSolver{}
	srv := newTestServer(t, solver, &fakeStore{}, qstashx.NewVerifier("current", "next"))

	resp, err := http.Post(srv.URL+SolvePath, "application/json", strings.NewReader(`{"session_id":"s1","message":"hi"}`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if solver.calls != 0 {
		t.Fatal("solver must not run for unsigned requests")
	}
}

func TestSolveEndpointAcceptsSignedRequest(t *testing.T) {
	t.Parallel()

	body := `{"session_id":"s1","message":"hi"}`
	sum := sha256.Sum256([]byte(body))
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":  "Upstash",
		"exp":  time.Now().Add(time.Minute).Unix(),
		"body": base64.URLEncoding.EncodeToString(sum[:]),
	}).SignedString([]byte("next"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	solver := &fakeSolver{out: orchestratorx.Outcome{Answer: "ok", Status: orchestratorx.StatusAnswered}}
	srv := newTestServer(t, solver, &fakeStore{}, qstashx.NewVerifier("current", "next"))

	req, _ := http.NewRequest(http.MethodPost, srv.URL+SolvePath, strings.NewReader(body))
	req.Header.Set(qstashx.SignatureHeader, token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || solver.calls != 1 {
		t.Fatalf("status = %d, solver calls = %d", resp.StatusCode, solver.calls)
	}
}

func TestTranscriptAndClearEndpoints(t *testing.T) {
	t.Parallel()

	user := contractx.UserEntry("hi")
	store := &fakeStore{entries: []contractx.Entry{user}}
	srv := newTestServer(t, &fakeSolver{}, store, nil)

	resp, err := http.Get(srv.URL + "/v1/sessions/s1/transcript")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	var body struct {
		SessionID string            `json:"session_id"`
		Entries   []contractx.Entry `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if body.SessionID != "s1" || len(body.Entries) != 1 || body.Entries[0].Text() != "hi" {
		t.Fatalf("body = %#v", body)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/sessions/s1", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || store.cleared != "s1" {
		t.Fatalf("status = %d, cleared = %q", resp.StatusCode, store.cleared)
	}
}

func TestTranscriptEndpointRejectsPaddedSession(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeSolver{}, &fakeStore{}, nil)
	resp, err := http.Get(srv.URL + "/v1/sessions/%20s1/transcript")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
