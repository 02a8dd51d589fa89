package mailbox

import (
	"time"
)

// Role is a logical folder category, independent of any server's actual
// folder naming. Roles are the only folder vocabulary exposed outside this
// package; physical paths never leave it.
type Role string

const (
	RoleInbox   Role = "INBOX"
	RoleDrafts  Role = "DRAFTS"
	RoleSent    Role = "SENT"
	RoleSpam    Role = "SPAM"
	RoleTrash   Role = "TRASH"
	RoleArchive Role = "ARCHIVE"
	// RoleStarred has no server-side folder; it aliases the inbox and the
	// client filters by the \Flagged flag.
	RoleStarred Role = "STARRED"
	// RoleUser marks a folder that is none of the above: a user-created
	// mailbox addressed by its explicit path.
	RoleUser Role = "USER"
)

// ParseRole maps a role name to a Role, reporting whether it is one of the
// fixed logical roles.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleInbox, RoleDrafts, RoleSent, RoleSpam, RoleTrash, RoleArchive, RoleStarred:
		return Role(s), true
	}
	return RoleUser, false
}

// FolderMap maps each logical role to the physical folder path chosen for
// it. Built once per session from the server's folder listing and treated as
// immutable for the session's duration.
type FolderMap map[Role]string

// Folder describes one server folder together with the role classification
// the resolver assigned to it.
type Folder struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Role Role   `json:"type"`
}

// Envelope is the listing-level view of a message: enough for a mailbox
// table row, no body.
type Envelope struct {
	UID       uint32    `json:"uid"`
	MessageID string    `json:"message_id"`
	Subject   string    `json:"subject"`
	From      string    `json:"from"`
	FromName  string    `json:"from_name"`
	To        []string  `json:"to"`
	Date      time.Time `json:"date"`
	Size      int64     `json:"size"`
	Flags     []string  `json:"flags"`
}

// Seen reports whether the message carries the \Seen flag.
func (e Envelope) Seen() bool {
	for _, f := range e.Flags {
		if f == `\Seen` {
			return true
		}
	}
	return false
}

// Starred reports whether the message carries the \Flagged flag.
func (e Envelope) Starred() bool {
	for _, f := range e.Flags {
		if f == `\Flagged` {
			return true
		}
	}
	return false
}

// Message is the full parsed content of a single fetched message.
type Message struct {
	Envelope
	Text        string       `json:"body"`
	HTML        string       `json:"html"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment holds one decoded message attachment.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Content     []byte `json:"-"`
}
