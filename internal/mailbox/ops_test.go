package mailbox

import (
	"errors"
	"fmt"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

func TestApplyEachAllSucceed(t *testing.T) {
	var seen []uint32
	err := applyEach("delete", []uint32{3, 1, 2}, func(uid uint32) error {
		seen = append(seen, uid)
		return nil
	})
	if err != nil {
		t.Fatalf("applyEach returned %v, want nil", err)
	}
	if len(seen) != 3 {
		t.Fatalf("op ran %d times, want 3", len(seen))
	}
}

func TestApplyEachPartialFailure(t *testing.T) {
	// One failure must not stop the remaining items; the error names
	// exactly the failed subset.
	var seen []uint32
	err := applyEach("archive", []uint32{10, 11, 12, 13}, func(uid uint32) error {
		seen = append(seen, uid)
		if uid == 11 || uid == 13 {
			return fmt.Errorf("message %d vanished", uid)
		}
		return nil
	})

	if len(seen) != 4 {
		t.Fatalf("op ran %d times, want 4 (must continue past failures)", len(seen))
	}

	bulkErr, ok := IsPartialBulk(err)
	if !ok {
		t.Fatalf("applyEach returned %T, want *PartialBulkError", err)
	}
	if bulkErr.Op != "archive" || bulkErr.Total != 4 {
		t.Errorf("got op=%q total=%d, want archive/4", bulkErr.Op, bulkErr.Total)
	}
	if len(bulkErr.Failed) != 2 {
		t.Fatalf("got %d failed items, want 2", len(bulkErr.Failed))
	}
	if bulkErr.Failed[0].UID != imap.UID(11) || bulkErr.Failed[1].UID != imap.UID(13) {
		t.Errorf("failed UIDs = %v", bulkErr.Failed)
	}
	if bulkErr.Failed[0].Reason == "" {
		t.Error("failed item carries no reason")
	}
}

func TestApplyEachAllFail(t *testing.T) {
	err := applyEach("mark spam", []uint32{1, 2}, func(uid uint32) error {
		return errors.New("folder gone")
	})
	bulkErr, ok := IsPartialBulk(err)
	if !ok {
		t.Fatalf("applyEach returned %T, want *PartialBulkError", err)
	}
	if len(bulkErr.Failed) != bulkErr.Total {
		t.Errorf("failed=%d total=%d, want equal", len(bulkErr.Failed), bulkErr.Total)
	}
}

func TestApplyEachEmpty(t *testing.T) {
	if err := applyEach("delete", nil, func(uid uint32) error {
		t.Fatal("op ran for an empty UID set")
		return nil
	}); err != nil {
		t.Fatalf("applyEach(nil) = %v, want nil", err)
	}
}

func TestEmptyTrashOnEmptyFolder(t *testing.T) {
	// An empty trash folder is done already. No STORE 1:* may be issued:
	// the session's client would be hit, and some servers answer the
	// blanket store on an empty mailbox with NO.
	s := &Session{
		client:        &imapclient.Client{},
		folders:       FolderMap{RoleTrash: "Trash"},
		selected:      "Trash",
		selectedCount: 0,
	}
	if err := s.EmptyTrash(); err != nil {
		t.Fatalf("EmptyTrash on empty folder: %v", err)
	}
}

func TestEnvelopeFlags(t *testing.T) {
	env := Envelope{Flags: []string{`\Seen`, `\Flagged`}}
	if !env.Seen() || !env.Starred() {
		t.Errorf("Seen=%v Starred=%v, want both true", env.Seen(), env.Starred())
	}
	env = Envelope{Flags: []string{`\Answered`}}
	if env.Seen() || env.Starred() {
		t.Errorf("Seen=%v Starred=%v, want both false", env.Seen(), env.Starred())
	}
}
