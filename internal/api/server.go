// Package api exposes the webmail operations over HTTP. Handlers are thin:
// decode the request, open a mail session from the bearer token, run one
// mailbox or delivery operation, translate the error taxonomy to a status
// code. No state survives between requests.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/nerzen/webmail/internal/config"
	"github.com/nerzen/webmail/internal/deliver"
	"github.com/nerzen/webmail/internal/mailbox"
	"github.com/nerzen/webmail/internal/token"
)

// Server wires the token codec and configuration into the HTTP handlers.
type Server struct {
	cfg   *config.Config
	codec *token.Codec
	log   zerolog.Logger
}

// NewServer builds a Server from loaded configuration and the token codec.
func NewServer(cfg *config.Config, codec *token.Codec, log zerolog.Logger) *Server {
	return &Server{cfg: cfg, codec: codec, log: log}
}

// Handler returns the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("GET /api/folders", s.handleFolders)
	mux.HandleFunc("GET /api/mails", s.handleList)
	mux.HandleFunc("GET /api/mails/{uid}", s.handleMessage)
	mux.HandleFunc("GET /api/mails/{uid}/raw", s.handleRaw)
	mux.HandleFunc("DELETE /api/mails/{uids}", s.handleDelete)
	mux.HandleFunc("POST /api/mails/{uids}/move", s.handleMove)
	mux.HandleFunc("POST /api/mails/{uids}/spam", s.handleSpam)
	mux.HandleFunc("POST /api/mails/{uids}/archive", s.handleArchive)
	mux.HandleFunc("POST /api/mails/{uid}/read", s.handleRead)
	mux.HandleFunc("POST /api/mails/{uid}/unread", s.handleUnread)
	mux.HandleFunc("POST /api/mails/{uid}/star", s.handleStar)
	mux.HandleFunc("DELETE /api/trash/empty", s.handleEmptyTrash)
	mux.HandleFunc("POST /api/send", s.handleSend)
	mux.HandleFunc("POST /api/drafts", s.handleDraft)

	return s.logRequests(mux)
}

// logRequests emits one structured line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) sessionOptions() mailbox.Options {
	return mailbox.Options{
		DialTimeout:        time.Duration(s.cfg.IMAP.DialTimeoutSec) * time.Second,
		InsecureSkipVerify: s.cfg.IMAP.InsecureSkipVerify,
		Logger:             s.log,
	}
}

// openSession decodes the bearer token and opens a fresh mail session for
// the request. The caller owns the session and must close it.
func (s *Server) openSession(ctx context.Context, r *http.Request) (*mailbox.Session, error) {
	raw := r.Header.Get("Authorization")
	if raw == "" {
		return nil, fmt.Errorf("missing session token: %w", token.ErrInvalidToken)
	}

	creds, err := s.codec.Decode(raw)
	if err != nil {
		return nil, err
	}

	return mailbox.Open(ctx, creds, s.sessionOptions())
}

// deliverOptions translates the SMTP configuration into delivery options.
func (s *Server) deliverOptions() deliver.Options {
	opts := deliver.Options{Logger: s.log}
	if s.cfg.SMTP.Host != "" {
		opts.Endpoint = &deliver.Endpoint{
			Host:        s.cfg.SMTP.Host,
			Port:        s.cfg.SMTP.Port,
			ImplicitTLS: s.cfg.SMTP.ImplicitTLS,
		}
	}
	return opts
}
