package compose

import (
	"strings"
	"testing"
)

func TestBuildTextOnly(t *testing.T) {
	msg, err := Build(Fields{
		From:    "alice@example.com",
		To:      []string{"bob@example.com"},
		Subject: "hello",
		Text:    "line one\nline two",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if msg.Text != "line one\nline two" {
		t.Errorf("text body = %q", msg.Text)
	}
	if want := "line one<br>line two"; msg.HTML != want {
		t.Errorf("synthesized html = %q, want %q", msg.HTML, want)
	}
}

func TestBuildTextEscapesHTML(t *testing.T) {
	msg, err := Build(Fields{
		From: "alice@example.com",
		To:   []string{"bob@example.com"},
		Text: "a < b & c\n<script>",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Errorf("synthesized html carries unescaped markup: %q", msg.HTML)
	}
	if !strings.Contains(msg.HTML, "a &lt; b &amp; c<br>") {
		t.Errorf("synthesized html = %q", msg.HTML)
	}
}

func TestBuildHTMLOnly(t *testing.T) {
	msg, err := Build(Fields{
		From:    "alice@example.com",
		To:      []string{"bob@example.com"},
		Subject: "hello",
		HTML:    "<p>Hello <b>Bob</b></p>",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if msg.HTML != "<p>Hello <b>Bob</b></p>" {
		t.Errorf("html body = %q", msg.HTML)
	}
	if !strings.Contains(msg.Text, "Hello") || !strings.Contains(msg.Text, "Bob") {
		t.Errorf("synthesized text = %q", msg.Text)
	}
	if strings.Contains(msg.Text, "<p>") || strings.Contains(msg.Text, "<b>") {
		t.Errorf("synthesized text still contains tags: %q", msg.Text)
	}
}

func TestBuildValidation(t *testing.T) {
	cases := []struct {
		name   string
		fields Fields
	}{
		{"no sender", Fields{To: []string{"b@x.com"}, Text: "hi"}},
		{"no recipients", Fields{From: "a@x.com", Text: "hi"}},
		{"no body", Fields{From: "a@x.com", To: []string{"b@x.com"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Build(tc.fields); err == nil {
				t.Fatal("Build accepted invalid fields")
			}
		})
	}
}

func TestBuildRawStable(t *testing.T) {
	msg, err := Build(Fields{
		From: "alice@example.com",
		To:   []string{"bob@example.com"},
		Text: "hi",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// The serialization happens once; repeated reads see identical bytes.
	first := msg.Raw()
	second := msg.Raw()
	if len(first) == 0 {
		t.Fatal("empty raw message")
	}
	if &first[0] != &second[0] {
		t.Error("Raw returned different backing arrays")
	}
}

func TestBuildRawHeaders(t *testing.T) {
	msg, err := Build(Fields{
		From:     "alice@example.com",
		FromName: "Alice",
		To:       []string{"bob@example.com"},
		Cc:       []string{"carol@example.com"},
		Bcc:      []string{"dave@example.com"},
		Subject:  "quarterly report",
		Text:     "attached",
		Attachments: []Attachment{
			{Filename: "report.pdf", ContentType: "application/pdf", Content: []byte("%PDF-")},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	raw := string(msg.Raw())
	for _, want := range []string{
		"Subject: quarterly report",
		"bob@example.com",
		"carol@example.com",
		"report.pdf",
		"Message-Id:",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("raw message missing %q", want)
		}
	}
	// Bcc is envelope-only and must never hit the wire.
	if strings.Contains(raw, "dave@example.com") {
		t.Error("raw message leaks a Bcc recipient")
	}

	recips := msg.Recipients()
	if len(recips) != 3 {
		t.Fatalf("Recipients() = %v, want all three", recips)
	}
}

func TestBuildMessageIDUnique(t *testing.T) {
	f := Fields{From: "a@example.com", To: []string{"b@example.com"}, Text: "hi"}
	m1, err := Build(f)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	m2, err := Build(f)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m1.MessageID == m2.MessageID {
		t.Errorf("two builds share Message-ID %q", m1.MessageID)
	}
	if !strings.HasSuffix(m1.MessageID, "@example.com") {
		t.Errorf("Message-ID %q does not use the sender domain", m1.MessageID)
	}
}
