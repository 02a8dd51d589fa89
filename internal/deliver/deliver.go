// Package deliver submits composed messages over SMTP and files a copy in
// the sent folder. Submission is authoritative: once the SMTP transaction
// succeeds the send has succeeded, and a failing Sent-folder append is
// logged but never turns the operation into a failure.
package deliver

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nerzen/webmail/internal/compose"
	"github.com/nerzen/webmail/internal/mailbox"
	"github.com/nerzen/webmail/internal/token"
)

const defaultSubmitTimeout = 30 * time.Second

// SubmissionError indicates the SMTP transaction failed; nothing was
// delivered and nothing was filed.
type SubmissionError struct {
	Addr string
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submitting via %s: %v", e.Addr, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// IsSubmissionError reports whether err is a SubmissionError.
func IsSubmissionError(err error) bool {
	var subErr *SubmissionError
	return errors.As(err, &subErr)
}

// Endpoint is a resolved SMTP submission endpoint.
type Endpoint struct {
	Host        string
	Port        int
	ImplicitTLS bool
}

func (e Endpoint) addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// DeriveEndpoint guesses the submission endpoint from the IMAP server the
// credentials point at: the conventional host rewrite imap→mail, port 465
// with implicit TLS when the IMAP side uses implicit TLS, otherwise 587
// with STARTTLS. Deployments where the convention does not hold configure
// an explicit endpoint instead.
func DeriveEndpoint(creds token.Credentials) Endpoint {
	host := creds.Host
	if strings.Contains(host, "imap") {
		host = strings.Replace(host, "imap", "mail", 1)
	}
	if creds.ImplicitTLS {
		return Endpoint{Host: host, Port: 465, ImplicitTLS: true}
	}
	return Endpoint{Host: host, Port: 587, ImplicitTLS: false}
}

// SentFiler files a copy of a sent message; the mailbox session satisfies
// it. It is an interface here so submission can be tested without IMAP.
type SentFiler interface {
	AppendSent(raw []byte) error
}

// Options configures delivery.
type Options struct {
	// Endpoint overrides the derived submission endpoint when set.
	Endpoint *Endpoint

	// Timeout bounds the SMTP dial. Zero means the package default.
	Timeout time.Duration

	Logger zerolog.Logger
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return defaultSubmitTimeout
}

// Send submits the message's canonical bytes over SMTP, authenticating with
// the same credentials the mail session uses, then files a copy via the
// filer. Filing is best effort; its failure is logged and swallowed.
func Send(creds token.Credentials, msg *compose.Message, filer SentFiler, opts Options) error {
	ep := DeriveEndpoint(creds)
	if opts.Endpoint != nil {
		ep = *opts.Endpoint
	}

	if err := submit(ep, creds, msg, opts.timeout(), opts.Logger); err != nil {
		return classifySubmitErr(ep.addr(), creds.Address, err)
	}

	opts.Logger.Info().
		Str("server", ep.addr()).
		Str("message_id", msg.MessageID).
		Int("recipients", len(msg.Recipients())).
		Msg("message submitted")

	if filer != nil {
		if err := filer.AppendSent(msg.Raw()); err != nil {
			opts.Logger.Warn().Err(err).
				Str("message_id", msg.MessageID).
				Msg("submitted message could not be filed to sent folder")
		}
	}
	return nil
}

// submit runs one SMTP transaction with the message's envelope.
func submit(ep Endpoint, creds token.Credentials, msg *compose.Message, timeout time.Duration, log zerolog.Logger) error {
	addr := ep.addr()

	var client *smtp.Client
	if ep.ImplicitTLS {
		tlsConfig := &tls.Config{ServerName: ep.Host}
		dialer := &net.Dialer{Timeout: timeout}
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
		if err != nil {
			return fmt.Errorf("TLS dial to %s: %w", addr, err)
		}
		client, err = smtp.NewClient(conn, ep.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("creating SMTP client: %w", err)
		}
	} else {
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			return fmt.Errorf("dial to %s: %w", addr, err)
		}
		client, err = smtp.NewClient(conn, ep.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("creating SMTP client: %w", err)
		}
		tlsConfig := &tls.Config{ServerName: ep.Host}
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return fmt.Errorf("SMTP STARTTLS: %w", err)
		}
	}
	defer client.Close()

	auth := smtp.PlainAuth("", creds.Address, creds.Secret, ep.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP auth: %w", err)
	}

	if err := client.Mail(msg.From); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	for _, rcpt := range msg.Recipients() {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("SMTP RCPT TO %s: %w", rcpt, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := writer.Write(msg.Raw()); err != nil {
		return fmt.Errorf("writing message body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing message body: %w", err)
	}

	return quitAccepted(client, log)
}

// quitAccepted ends the SMTP conversation once the server has taken
// responsibility for the message. The delivery is already irreversible at
// this point, so a failing QUIT is logged and swallowed.
func quitAccepted(client interface{ Quit() error }, log zerolog.Logger) error {
	if err := client.Quit(); err != nil {
		log.Debug().Err(err).Msg("SMTP QUIT failed after message was accepted")
	}
	return nil
}

// classifySubmitErr maps an SMTP failure onto the error taxonomy: rejected
// credentials and timeouts keep their own types, everything else is a
// SubmissionError.
func classifySubmitErr(addr, address string, err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &mailbox.TimeoutError{Addr: addr, Err: err}
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && isAuthRejection(protoErr.Code) {
		return &mailbox.AuthError{Address: address, Err: err}
	}

	return &SubmissionError{Addr: addr, Err: err}
}

func isAuthRejection(code int) bool {
	switch code {
	case 530, 534, 535:
		return true
	}
	return false
}
