package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nerzen/webmail/internal/config"
	"github.com/nerzen/webmail/internal/deliver"
	"github.com/nerzen/webmail/internal/mailbox"
	"github.com/nerzen/webmail/internal/token"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	codec, err := token.NewCodec("test-secret")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	cfg := &config.Config{}
	cfg.IMAP.DefaultHost = "imap.example.com"
	cfg.IMAP.DefaultPort = 993
	cfg.IMAP.DefaultTLS = true
	return NewServer(cfg, codec, zerolog.Nop())
}

func TestParseUIDList(t *testing.T) {
	cases := []struct {
		in      string
		want    []uint32
		wantErr bool
	}{
		{"42", []uint32{42}, false},
		{"1,2,3", []uint32{1, 2, 3}, false},
		{"1, 2 ,3", []uint32{1, 2, 3}, false},
		{"1,,2", []uint32{1, 2}, false},
		{"", nil, true},
		{"abc", nil, true},
		{"1,abc", nil, true},
	}
	for _, tc := range cases {
		got, err := parseUIDList(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseUIDList(%q) succeeded, want error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseUIDList(%q): %v", tc.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("parseUIDList(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid token", fmt.Errorf("decode: %w", token.ErrInvalidToken), http.StatusUnauthorized},
		{"auth", &mailbox.AuthError{Address: "a@b", Err: errors.New("no")}, http.StatusUnauthorized},
		{"timeout", &mailbox.TimeoutError{Addr: "h:993", Err: errors.New("slow")}, http.StatusGatewayTimeout},
		{"connect", &mailbox.ConnectError{Addr: "h:993", Err: errors.New("refused")}, http.StatusBadGateway},
		{"folder missing", &mailbox.FolderNotFoundError{Role: mailbox.RoleTrash, Path: "Trash"}, http.StatusNotFound},
		{"submission", &deliver.SubmissionError{Addr: "h:587", Err: errors.New("554")}, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, zerolog.Nop(), tc.err)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestWriteErrorPartialBulk(t *testing.T) {
	err := &mailbox.PartialBulkError{
		Op:    "delete",
		Total: 3,
		Failed: []mailbox.BulkItemError{
			{UID: 7, Reason: "gone"},
		},
	}

	rec := httptest.NewRecorder()
	writeError(rec, zerolog.Nop(), err)

	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMultiStatus)
	}
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Failed) != 1 || resp.Failed[0].UID != 7 || resp.Failed[0].Reason != "gone" {
		t.Fatalf("failed subset = %+v", resp.Failed)
	}
}

func TestWriteErrorHidesDetail(t *testing.T) {
	// The response body must never echo the underlying error, which can
	// carry hostnames and addresses.
	rec := httptest.NewRecorder()
	writeError(rec, zerolog.Nop(), &mailbox.AuthError{Address: "victim@example.com", Err: errors.New("LOGIN no")})
	if body := rec.Body.String(); strings.Contains(body, "victim@example.com") {
		t.Fatalf("response leaks the account address: %s", body)
	}
}

func TestHandlerRejectsMissingToken(t *testing.T) {
	handler := newTestServer(t).Handler()

	for _, call := range []struct{ method, path string }{
		{http.MethodGet, "/api/folders"},
		{http.MethodGet, "/api/mails"},
		{http.MethodGet, "/api/mails/1"},
		{http.MethodDelete, "/api/mails/1"},
		{http.MethodDelete, "/api/trash/empty"},
	} {
		req := httptest.NewRequest(call.method, call.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token = %d, want 401", call.method, call.path, rec.Code)
		}
	}
}

func TestHandlerRejectsGarbageToken(t *testing.T) {
	handler := newTestServer(t).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/folders", nil)
	req.Header.Set("Authorization", "not-a-real-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token = %d, want 401", rec.Code)
	}
}

func TestLoginValidation(t *testing.T) {
	handler := newTestServer(t).Handler()

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", "{"},
		{"missing password", `{"email":"a@example.com"}`},
		{"missing email", `{"password":"pw"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestLoginRequiresSomeHost(t *testing.T) {
	codec, err := token.NewCodec("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	// No default host configured and none supplied.
	srv := NewServer(&config.Config{}, codec, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"email":"a@example.com","password":"pw"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestBulkPathRejectsBadUIDs(t *testing.T) {
	handler := newTestServer(t).Handler()

	req := httptest.NewRequest(http.MethodDelete, "/api/mails/1,abc", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
