package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/nerzen/webmail/internal/compose"
	"github.com/nerzen/webmail/internal/deliver"
	"github.com/nerzen/webmail/internal/mailbox"
	"github.com/nerzen/webmail/internal/token"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Secure   *bool  `json:"secure"`
}

type loginResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

// handleLogin verifies the credentials by opening a mail session, then
// mints the opaque session token the client holds instead of the password.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed login request")
		return
	}
	if req.Email == "" || req.Password == "" {
		badRequest(w, "email and password are required")
		return
	}

	creds := token.Credentials{
		Address:     req.Email,
		Secret:      req.Password,
		Host:        req.Host,
		Port:        req.Port,
		ImplicitTLS: s.cfg.IMAP.DefaultTLS,
	}
	if creds.Host == "" {
		creds.Host = s.cfg.IMAP.DefaultHost
	}
	if creds.Port == 0 {
		creds.Port = s.cfg.IMAP.DefaultPort
	}
	if req.Secure != nil {
		creds.ImplicitTLS = *req.Secure
	}
	if creds.Host == "" {
		badRequest(w, "no mail server configured or supplied")
		return
	}

	session, err := mailbox.Open(r.Context(), creds, s.sessionOptions())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	session.Close()

	tok, err := s.codec.Encode(creds)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	s.log.Info().Str("user", creds.Address).Msg("login succeeded")
	writeJSON(w, http.StatusOK, loginResponse{Token: tok, Email: creds.Address})
}

func (s *Server) handleFolders(w http.ResponseWriter, r *http.Request) {
	session, err := s.openSession(r.Context(), r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	defer session.Close()

	folders, err := session.Folders()
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	session, err := s.openSession(r.Context(), r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	defer session.Close()

	envelopes, err := session.List(r.URL.Query().Get("folder"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelopes)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	uid, err := parseUID(r.PathValue("uid"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	session, err := s.openSession(r.Context(), r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	defer session.Close()

	msg, err := session.Fetch(r.URL.Query().Get("folder"), uid)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// handleRaw serves the message's exact stored bytes as an .eml download.
func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	uid, err := parseUID(r.PathValue("uid"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	session, err := s.openSession(r.Context(), r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	defer session.Close()

	raw, err := session.Raw(r.URL.Query().Get("folder"), uid)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	w.Header().Set("Content-Type", "message/rfc822")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%d.eml", uid)))
	w.Write(raw)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.bulkOp(w, r, "uids", func(session *mailbox.Session, folder string, uids []uint32) error {
		if len(uids) == 1 {
			return session.Delete(folder, uids[0])
		}
		return session.DeleteMany(folder, uids)
	})
}

// handleMove moves messages into the folder named by the "to" query
// parameter, a logical role or an explicit user folder path.
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	dest := r.URL.Query().Get("to")
	if dest == "" {
		badRequest(w, "missing destination folder")
		return
	}
	s.bulkOp(w, r, "uids", func(session *mailbox.Session, folder string, uids []uint32) error {
		if len(uids) == 1 {
			return session.Move(folder, uids[0], dest)
		}
		return session.MoveMany(folder, uids, dest)
	})
}

func (s *Server) handleSpam(w http.ResponseWriter, r *http.Request) {
	s.bulkOp(w, r, "uids", func(session *mailbox.Session, folder string, uids []uint32) error {
		if len(uids) == 1 {
			return session.MarkSpam(folder, uids[0])
		}
		return session.MarkSpamMany(folder, uids)
	})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	s.bulkOp(w, r, "uids", func(session *mailbox.Session, folder string, uids []uint32) error {
		if len(uids) == 1 {
			return session.Archive(folder, uids[0])
		}
		return session.ArchiveMany(folder, uids)
	})
}

// bulkOp runs a single-or-bulk mutation: the path segment carries either
// one UID or a comma-separated list.
func (s *Server) bulkOp(w http.ResponseWriter, r *http.Request, pathKey string, fn func(*mailbox.Session, string, []uint32) error) {
	uids, err := parseUIDList(r.PathValue(pathKey))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	session, err := s.openSession(r.Context(), r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	defer session.Close()

	if err := fn(session, r.URL.Query().Get("folder"), uids); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": len(uids)})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	s.flagOp(w, r, func(session *mailbox.Session, folder string, uid uint32) error {
		return session.MarkSeen(folder, uid)
	})
}

func (s *Server) handleUnread(w http.ResponseWriter, r *http.Request) {
	s.flagOp(w, r, func(session *mailbox.Session, folder string, uid uint32) error {
		return session.MarkUnread(folder, uid)
	})
}

// flagOp runs a single-message flag mutation addressed by the uid path
// segment and the folder query parameter.
func (s *Server) flagOp(w http.ResponseWriter, r *http.Request, fn func(*mailbox.Session, string, uint32) error) {
	uid, err := parseUID(r.PathValue("uid"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	session, err := s.openSession(r.Context(), r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	defer session.Close()

	if err := fn(session, r.URL.Query().Get("folder"), uid); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type starRequest struct {
	Starred bool `json:"starred"`
}

func (s *Server) handleStar(w http.ResponseWriter, r *http.Request) {
	uid, err := parseUID(r.PathValue("uid"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req starRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed star request")
		return
	}

	session, err := s.openSession(r.Context(), r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	defer session.Close()

	if err := session.Star(r.URL.Query().Get("folder"), uid, req.Starred); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleEmptyTrash(w http.ResponseWriter, r *http.Request) {
	session, err := s.openSession(r.Context(), r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	defer session.Close()

	if err := session.EmptyTrash(); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type sendRequest struct {
	To          []string         `json:"to"`
	Cc          []string         `json:"cc"`
	Bcc         []string         `json:"bcc"`
	Subject     string           `json:"subject"`
	Body        string           `json:"body"`
	HTML        string           `json:"html"`
	Attachments []sendAttachment `json:"attachments"`
}

type sendAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

func (req sendRequest) fields(from string) compose.Fields {
	f := compose.Fields{
		From:    from,
		To:      req.To,
		Cc:      req.Cc,
		Bcc:     req.Bcc,
		Subject: req.Subject,
		Text:    req.Body,
		HTML:    req.HTML,
	}
	for _, att := range req.Attachments {
		f.Attachments = append(f.Attachments, compose.Attachment{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Content:     att.Content,
		})
	}
	return f
}

// handleSend composes the message, submits it over SMTP and files a copy
// in the sent folder. A send whose Sent-folder filing fails still reports
// success; the filing failure is only logged.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	raw := r.Header.Get("Authorization")
	if raw == "" {
		writeError(w, s.log, fmt.Errorf("missing session token: %w", token.ErrInvalidToken))
		return
	}
	creds, err := s.codec.Decode(raw)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed send request")
		return
	}

	msg, err := compose.Build(req.fields(creds.Address))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	// The session exists only for the Sent-folder filing; submission does
	// not need IMAP. A session that cannot be opened degrades to a send
	// without filing rather than failing the send.
	var filer deliver.SentFiler
	session, err := mailbox.Open(r.Context(), creds, s.sessionOptions())
	if err != nil {
		s.log.Warn().Err(err).Msg("no mail session for sent filing")
	} else {
		defer session.Close()
		filer = session
	}

	if err := deliver.Send(creds, msg, filer, s.deliverOptions()); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message_id": msg.MessageID})
}

// handleDraft composes the message and files it in the drafts folder
// without submitting it.
func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	session, err := s.openSession(r.Context(), r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	defer session.Close()

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed draft request")
		return
	}

	fields := req.fields(session.Address())
	if len(fields.To) == 0 {
		// Drafts may have no recipients yet; compose requires at least one
		// for delivery, so fall back to the author.
		fields.To = []string{session.Address()}
	}
	if fields.Text == "" && fields.HTML == "" {
		fields.Text = " "
	}

	msg, err := compose.Build(fields)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := session.SaveDraft(msg.Raw()); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message_id": msg.MessageID})
}

func parseUID(s string) (uint32, error) {
	uid, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid message UID %q", s)
	}
	return uint32(uid), nil
}

func parseUIDList(s string) ([]uint32, error) {
	parts := strings.Split(s, ",")
	uids := make([]uint32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		uid, err := parseUID(p)
		if err != nil {
			return nil, err
		}
		uids = append(uids, uid)
	}
	if len(uids) == 0 {
		return nil, fmt.Errorf("no message UIDs given")
	}
	return uids, nil
}
