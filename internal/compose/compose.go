// Package compose builds outgoing RFC 5322 messages. Callers supply one
// authoritative body, plain text or HTML; the other representation is
// synthesized so every message carries both alternatives. The serialized
// bytes are rendered exactly once and shared by SMTP submission and the
// Sent-folder append.
package compose

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/inbucket/html2text"
)

// Attachment is one file to include in an outgoing message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Fields is the user-supplied input for one outgoing message. Exactly the
// non-empty one of Text and HTML is authoritative; when both are set HTML
// wins and Text is regenerated from it.
type Fields struct {
	From        string
	FromName    string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// Message is a fully built outgoing message: both body representations plus
// the canonical serialized bytes.
type Message struct {
	From      string
	To        []string
	Cc        []string
	Bcc       []string
	Subject   string
	Text      string
	HTML      string
	MessageID string
	Date      time.Time

	raw []byte
}

// Raw returns the canonical serialized bytes. Every consumer gets the same
// slice; the message is never re-serialized.
func (m *Message) Raw() []byte { return m.raw }

// Recipients returns every envelope recipient: To, Cc and Bcc combined.
func (m *Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	out = append(out, m.Bcc...)
	return out
}

// Build validates the fields, fills in the missing body representation and
// serializes the message once.
func Build(f Fields) (*Message, error) {
	if f.From == "" {
		return nil, fmt.Errorf("message has no sender")
	}
	if len(f.To) == 0 {
		return nil, fmt.Errorf("message has no recipients")
	}
	if f.Text == "" && f.HTML == "" {
		return nil, fmt.Errorf("message has no body")
	}

	text, htmlBody := fillBodies(f.Text, f.HTML)

	msg := &Message{
		From:      f.From,
		To:        f.To,
		Cc:        f.Cc,
		Bcc:       f.Bcc,
		Subject:   f.Subject,
		Text:      text,
		HTML:      htmlBody,
		MessageID: fmt.Sprintf("%s@%s", uuid.NewString(), domainOf(f.From)),
		Date:      time.Now(),
	}

	raw, err := serialize(f, msg)
	if err != nil {
		return nil, fmt.Errorf("serializing message: %w", err)
	}
	msg.raw = raw
	return msg, nil
}

// fillBodies synthesizes whichever body representation is missing. An HTML
// body is stripped down to readable plain text; a plain-text body becomes
// minimal HTML with newlines as <br> tags.
func fillBodies(text, htmlBody string) (string, string) {
	switch {
	case htmlBody != "":
		plain, err := html2text.FromString(htmlBody)
		if err != nil {
			// Last resort: the HTML source itself is still readable text.
			plain = htmlBody
		}
		return plain, htmlBody
	default:
		escaped := html.EscapeString(text)
		escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
		return text, strings.ReplaceAll(escaped, "\n", "<br>")
	}
}

func domainOf(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 && i < len(address)-1 {
		return address[i+1:]
	}
	return "localhost"
}

func addressList(addrs []string) []*mail.Address {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, &mail.Address{Address: a})
	}
	return out
}

// serialize writes the message once: multipart/alternative with the text
// and HTML bodies, wrapped in multipart/mixed when attachments are present.
// Bcc recipients stay off the wire; they are envelope-only.
func serialize(f Fields, msg *Message) ([]byte, error) {
	var header mail.Header
	header.SetDate(msg.Date)
	header.SetSubject(msg.Subject)
	header.SetMessageID(msg.MessageID)
	header.SetAddressList("From", []*mail.Address{{Name: f.FromName, Address: f.From}})
	header.SetAddressList("To", addressList(f.To))
	if len(f.Cc) > 0 {
		header.SetAddressList("Cc", addressList(f.Cc))
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, header)
	if err != nil {
		return nil, err
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}
	if err := writeInlinePart(iw, "text/plain", msg.Text); err != nil {
		return nil, err
	}
	if err := writeInlinePart(iw, "text/html", msg.HTML); err != nil {
		return nil, err
	}
	if err := iw.Close(); err != nil {
		return nil, err
	}

	for _, att := range f.Attachments {
		var ah mail.AttachmentHeader
		ah.SetFilename(att.Filename)
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		ah.SetContentType(contentType, nil)

		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, err
		}
		if _, err := aw.Write(att.Content); err != nil {
			return nil, err
		}
		if err := aw.Close(); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeInlinePart(iw *mail.InlineWriter, contentType, body string) error {
	var h mail.InlineHeader
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	pw, err := iw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return err
	}
	return pw.Close()
}
