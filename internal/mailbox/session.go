// Package mailbox opens authenticated IMAP sessions from a credential
// bundle and exposes the folder-role and message operations the webmail
// layer is built on. A Session lives for exactly one request: opened, used
// for one logical operation, closed. Sessions are never pooled and a single
// session must not be used from more than one goroutine at a time.
package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/nerzen/webmail/internal/token"
)

const (
	defaultDialTimeout = 15 * time.Second
	logoutGracePeriod  = 2 * time.Second
)

// Options configures session establishment. The zero value is usable.
type Options struct {
	// DialTimeout bounds the whole connect+greeting+login phase. Zero means
	// the package default.
	DialTimeout time.Duration

	// InsecureSkipVerify disables server certificate verification, matching
	// deployments that front the mail server with a self-signed cert.
	InsecureSkipVerify bool

	Logger zerolog.Logger
}

func (o Options) dialTimeout() time.Duration {
	if o.DialTimeout > 0 {
		return o.DialTimeout
	}
	return defaultDialTimeout
}

// Session is an authenticated, connected IMAP handle scoped to one request.
// The underlying protocol connection carries one command at a time; callers
// must serialize operations against a single Session.
type Session struct {
	client  *imapclient.Client
	conn    net.Conn
	address string
	log     zerolog.Logger

	// folders caches the resolved role map for the session's lifetime.
	folders FolderMap
	// listing caches the raw folder listing backing the role map.
	listing []folderEntry

	selected         string
	selectedReadOnly bool
	// selectedCount is the message count the last SELECT reported.
	selectedCount uint32
}

// Open dials the mail server from the bundle, upgrades to TLS as requested,
// and authenticates. The connect, greeting and LOGIN round-trips share one
// deadline; on any failure the partially-opened connection is closed before
// the error is returned.
func Open(ctx context.Context, creds token.Credentials, opts Options) (*Session, error) {
	addr := net.JoinHostPort(creds.Host, strconv.Itoa(creds.Port))
	timeout := opts.dialTimeout()

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classifyConnectErr(addr, err)
	}

	// One deadline covers TLS handshake, server greeting and LOGIN. Cleared
	// once the session is authenticated; individual commands after that run
	// to completion or transport failure.
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		conn.Close()
		return nil, classifyConnectErr(addr, err)
	}

	tlsConfig := &tls.Config{
		ServerName:         creds.Host,
		InsecureSkipVerify: opts.InsecureSkipVerify,
	}
	clientOpts := &imapclient.Options{TLSConfig: tlsConfig}

	var client *imapclient.Client
	if creds.ImplicitTLS {
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, classifyConnectErr(addr, err)
		}
		client = imapclient.New(tlsConn, clientOpts)
	} else {
		client, err = imapclient.NewStartTLS(conn, clientOpts)
		if err != nil {
			conn.Close()
			return nil, classifyConnectErr(addr, err)
		}
	}

	if err := client.Login(creds.Address, creds.Secret).Wait(); err != nil {
		client.Close()
		return nil, classifyLoginErr(addr, creds.Address, err)
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		client.Close()
		return nil, classifyConnectErr(addr, err)
	}

	opts.Logger.Debug().Str("server", addr).Str("user", creds.Address).Msg("mail session opened")

	return &Session{
		client:  client,
		conn:    conn,
		address: creds.Address,
		log:     opts.Logger,
	}, nil
}

// Address returns the authenticated account address.
func (s *Session) Address() string { return s.address }

// Close logs the session out. A LOGOUT that the server does not answer
// within a short grace period is abandoned and the connection force-closed;
// either way the session is unusable afterwards. Safe to call more than
// once.
func (s *Session) Close() error {
	if s.client == nil {
		return nil
	}
	client := s.client
	s.client = nil

	done := make(chan error, 1)
	go func() { done <- client.Logout().Wait() }()

	select {
	case err := <-done:
		if err != nil {
			s.log.Debug().Err(err).Msg("IMAP logout failed, closing connection")
		}
	case <-time.After(logoutGracePeriod):
		s.log.Debug().Msg("IMAP logout timed out, force closing connection")
	}

	return client.Close()
}

// selectMailbox selects (or examines) the given physical path, translating
// a missing-mailbox reply into FolderNotFoundError so callers can tell a
// fallback default path that never existed from a real protocol failure.
func (s *Session) selectMailbox(path string, readOnly bool) error {
	if s.client == nil {
		return fmt.Errorf("session is closed")
	}
	if s.selected == path && s.selectedReadOnly == readOnly {
		return nil
	}

	opts := &imap.SelectOptions{ReadOnly: readOnly}
	data, err := s.client.Select(path, opts).Wait()
	if err != nil {
		if isMissingMailbox(err) {
			return &FolderNotFoundError{Role: s.roleOf(path), Path: path}
		}
		return fmt.Errorf("selecting %q: %w", path, err)
	}
	s.selected = path
	s.selectedReadOnly = readOnly
	s.selectedCount = data.NumMessages
	return nil
}

// roleOf returns the role a physical path is currently mapped to, if any.
func (s *Session) roleOf(path string) Role {
	for role, p := range s.folders {
		if p == path && role != RoleStarred {
			return role
		}
	}
	return ""
}
