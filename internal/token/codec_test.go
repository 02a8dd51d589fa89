package token

import (
	"strings"
	"testing"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec("test-deployment-secret")
	if err != nil {
		t.Fatalf("creating codec: %v", err)
	}
	return c
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := newTestCodec(t)

	cases := []Credentials{
		{Address: "a@x.com", Secret: "p", Host: "mail.x.com", Port: 993, ImplicitTLS: true},
		{Address: "user@softigo.com.tr", Secret: "çok gizli", Host: "mail.softigo.com.tr", Port: 143, ImplicitTLS: false},
		{Address: "long@example.org", Secret: strings.Repeat("s", 512), Host: "imap.example.org", Port: 993, ImplicitTLS: true},
	}

	for _, want := range cases {
		tok, err := c.Encode(want)
		if err != nil {
			t.Fatalf("Encode(%v): %v", want.Address, err)
		}
		got, err := c.Decode(tok)
		if err != nil {
			t.Fatalf("Decode(%v): %v", want.Address, err)
		}
		if got != want {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestEncodeRejectsIncompleteBundle(t *testing.T) {
	c := newTestCodec(t)

	if _, err := c.Encode(Credentials{Address: "a@x.com"}); err == nil {
		t.Error("Encode accepted a bundle without host/secret/port")
	}
}

func TestTokenIsOpaque(t *testing.T) {
	c := newTestCodec(t)

	creds := Credentials{Address: "a@x.com", Secret: "hunter2", Host: "mail.x.com", Port: 993, ImplicitTLS: true}
	tok, err := c.Encode(creds)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	for _, plain := range []string{"a@x.com", "hunter2", "mail.x.com", "{", "}"} {
		if strings.Contains(tok, plain) {
			t.Errorf("token leaks plaintext %q: %s", plain, tok)
		}
	}
}

func TestNonceFreshness(t *testing.T) {
	c := newTestCodec(t)

	creds := Credentials{Address: "a@x.com", Secret: "p", Host: "mail.x.com", Port: 993}
	t1, err := c.Encode(creds)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	t2, err := c.Encode(creds)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if t1 == t2 {
		t.Error("two encodings of the same bundle produced identical tokens")
	}
}

func TestTamperDetection(t *testing.T) {
	c := newTestCodec(t)

	creds := Credentials{Address: "a@x.com", Secret: "p", Host: "mail.x.com", Port: 993, ImplicitTLS: true}
	tok, err := c.Encode(creds)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Flip every position in the token; each altered token must be rejected.
	for i := 0; i < len(tok); i++ {
		altered := []byte(tok)
		if altered[i] == 'A' {
			altered[i] = 'B'
		} else {
			altered[i] = 'A'
		}
		if string(altered) == tok {
			continue
		}
		if _, err := c.Decode(string(altered)); !IsInvalidToken(err) {
			t.Errorf("Decode accepted token altered at position %d", i)
		}
	}
}

func TestDecodeMalformedTokens(t *testing.T) {
	c := newTestCodec(t)

	cases := []struct {
		name string
		tok  string
	}{
		{"empty", ""},
		{"not base64url", "!!!not-a-token!!!"},
		{"too short", "QUJD"},
		{"wrong alphabet padding", "abcd===="},
	}

	for _, tc := range cases {
		if _, err := c.Decode(tc.tok); !IsInvalidToken(err) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", tc.name, err)
		}
	}
}

func TestDecodeWithDifferentKey(t *testing.T) {
	c1 := newTestCodec(t)
	c2, err := NewCodec("another-secret")
	if err != nil {
		t.Fatalf("creating codec: %v", err)
	}

	tok, err := c1.Encode(Credentials{Address: "a@x.com", Secret: "p", Host: "mail.x.com", Port: 993})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := c2.Decode(tok); !IsInvalidToken(err) {
		t.Errorf("token decoded under a different key: %v", err)
	}
}

func TestNewCodecFromKeyLength(t *testing.T) {
	if _, err := NewCodecFromKey(make([]byte, 16)); err == nil {
		t.Error("NewCodecFromKey accepted a 16-byte key")
	}
	if _, err := NewCodecFromKey(make([]byte, 32)); err != nil {
		t.Errorf("NewCodecFromKey rejected a 32-byte key: %v", err)
	}
}

func TestZero(t *testing.T) {
	creds := Credentials{Address: "a@x.com", Secret: "p", Host: "mail.x.com", Port: 993, ImplicitTLS: true}
	creds.Zero()
	if creds != (Credentials{}) {
		t.Errorf("Zero left data behind: %+v", creds)
	}
}
