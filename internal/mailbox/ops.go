package mailbox

import (
	"fmt"
	"sort"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// envelopeFrom converts a fetched message buffer into the listing model.
func envelopeFrom(buf *imapclient.FetchMessageBuffer) Envelope {
	env := Envelope{
		UID:  uint32(buf.UID),
		Size: buf.RFC822Size,
	}

	if buf.Envelope != nil {
		env.MessageID = buf.Envelope.MessageID
		env.Subject = buf.Envelope.Subject
		env.Date = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			env.From = from.Addr()
			env.FromName = from.Name
		}
		for _, to := range buf.Envelope.To {
			env.To = append(env.To, to.Addr())
		}
	}

	for _, flag := range buf.Flags {
		env.Flags = append(env.Flags, string(flag))
	}

	return env
}

// List returns the envelopes of every message in the target folder, newest
// first. The target is a logical role name or an explicit user folder path.
func (s *Session) List(target string) ([]Envelope, error) {
	path, err := s.pathFor(target)
	if err != nil {
		return nil, err
	}
	if err := s.selectMailbox(path, true); err != nil {
		return nil, err
	}

	var seqSet imap.SeqSet
	seqSet.AddRange(1, 0)

	fetchOpts := &imap.FetchOptions{
		Envelope:   true,
		Flags:      true,
		UID:        true,
		RFC822Size: true,
	}

	fetchCmd := s.client.Fetch(seqSet, fetchOpts)
	defer fetchCmd.Close()

	var envelopes []Envelope
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		envelopes = append(envelopes, envelopeFrom(buf))
	}
	if err := fetchCmd.Close(); err != nil {
		// An empty mailbox answers the blanket 1:* fetch with an error on
		// some servers; report what we have.
		if len(envelopes) == 0 {
			return []Envelope{}, nil
		}
		return envelopes, fmt.Errorf("fetching envelopes in %q: %w", path, err)
	}

	sort.Slice(envelopes, func(i, j int) bool {
		if !envelopes[i].Date.Equal(envelopes[j].Date) {
			return envelopes[i].Date.After(envelopes[j].Date)
		}
		return envelopes[i].UID > envelopes[j].UID
	})

	return envelopes, nil
}

// Fetch returns the full parsed message. The body fetch is deliberately
// non-peek so the server records \Seen, which is what the UI expects after
// opening a message.
func (s *Session) Fetch(target string, uid uint32) (*Message, error) {
	raw, env, err := s.fetchRaw(target, uid, false)
	if err != nil {
		return nil, err
	}

	msg := &Message{Envelope: env}
	msg.Text, msg.HTML, msg.Attachments = parseBody(raw)
	return msg, nil
}

// Raw re-emits the exact stored bytes of a message, unmodified, for export.
// It peeks so exporting does not change flags.
func (s *Session) Raw(target string, uid uint32) ([]byte, error) {
	raw, _, err := s.fetchRaw(target, uid, true)
	return raw, err
}

func (s *Session) fetchRaw(target string, uid uint32, peek bool) ([]byte, Envelope, error) {
	path, err := s.pathFor(target)
	if err != nil {
		return nil, Envelope{}, err
	}
	if err := s.selectMailbox(path, false); err != nil {
		return nil, Envelope{}, err
	}

	bodySection := &imap.FetchItemBodySection{Peek: peek}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		RFC822Size:  true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := s.client.Fetch(imap.UIDSetNum(imap.UID(uid)), fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, Envelope{}, fmt.Errorf("message %d not found in %q", uid, path)
	}
	buf, err := msg.Collect()
	if err != nil {
		return nil, Envelope{}, fmt.Errorf("collecting message %d: %w", uid, err)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, Envelope{}, fmt.Errorf("fetching message %d: %w", uid, err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, Envelope{}, fmt.Errorf("message %d has no body in %q", uid, path)
	}
	return raw, envelopeFrom(buf), nil
}

// storeFlags applies a single flag change to one message.
func (s *Session) storeFlags(path string, uid uint32, op imap.StoreFlagsOp, flags ...imap.Flag) error {
	if err := s.selectMailbox(path, false); err != nil {
		return err
	}
	storeCmd := s.client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     op,
		Silent: true,
		Flags:  flags,
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("storing flags on %d: %w", uid, err)
	}
	return nil
}

// Move moves one message from the target folder into the destination, a
// logical role name or an explicit user folder path. Moving a message onto
// the folder it is already in is a no-op.
func (s *Session) Move(target string, uid uint32, dest string) error {
	path, err := s.pathFor(target)
	if err != nil {
		return err
	}
	destPath, err := s.pathFor(dest)
	if err != nil {
		return err
	}
	if path == destPath {
		return nil
	}
	if err := s.selectMailbox(path, false); err != nil {
		return err
	}

	if _, err := s.client.Move(imap.UIDSetNum(imap.UID(uid)), destPath).Wait(); err != nil {
		if isMissingMailbox(err) {
			role, _ := ParseRole(dest)
			if role == RoleUser {
				role = ""
			}
			return &FolderNotFoundError{Role: role, Path: destPath}
		}
		return fmt.Errorf("moving %d to %q: %w", uid, destPath, err)
	}
	return nil
}

// Delete moves a message to the trash folder. A message already in the
// trash is flagged \Deleted and expunged instead, making the delete
// permanent.
func (s *Session) Delete(target string, uid uint32) error {
	path, err := s.pathFor(target)
	if err != nil {
		return err
	}
	trashPath, err := s.pathFor(string(RoleTrash))
	if err != nil {
		return err
	}

	if path != trashPath {
		return s.Move(target, uid, string(RoleTrash))
	}

	if err := s.storeFlags(path, uid, imap.StoreFlagsAdd, imap.FlagDeleted); err != nil {
		return err
	}
	if err := s.client.Expunge().Close(); err != nil {
		return fmt.Errorf("expunging %q: %w", path, err)
	}
	return nil
}

// MarkSpam moves a message into the spam folder.
func (s *Session) MarkSpam(target string, uid uint32) error {
	return s.Move(target, uid, string(RoleSpam))
}

// Archive moves a message into the archive folder.
func (s *Session) Archive(target string, uid uint32) error {
	return s.Move(target, uid, string(RoleArchive))
}

// MarkSeen sets the \Seen flag.
func (s *Session) MarkSeen(target string, uid uint32) error {
	path, err := s.pathFor(target)
	if err != nil {
		return err
	}
	return s.storeFlags(path, uid, imap.StoreFlagsAdd, imap.FlagSeen)
}

// MarkUnread clears the \Seen flag.
func (s *Session) MarkUnread(target string, uid uint32) error {
	path, err := s.pathFor(target)
	if err != nil {
		return err
	}
	return s.storeFlags(path, uid, imap.StoreFlagsDel, imap.FlagSeen)
}

// Star sets or clears the \Flagged flag, which backs the client-side
// starred view.
func (s *Session) Star(target string, uid uint32, starred bool) error {
	path, err := s.pathFor(target)
	if err != nil {
		return err
	}
	op := imap.StoreFlagsAdd
	if !starred {
		op = imap.StoreFlagsDel
	}
	return s.storeFlags(path, uid, op, imap.FlagFlagged)
}

// EmptyTrash permanently removes every message in the trash folder.
func (s *Session) EmptyTrash() error {
	path, err := s.pathFor(string(RoleTrash))
	if err != nil {
		return err
	}
	if err := s.selectMailbox(path, false); err != nil {
		return err
	}
	// Some servers answer a blanket STORE against an empty mailbox with NO.
	if s.selectedCount == 0 {
		return nil
	}

	var seqSet imap.SeqSet
	seqSet.AddRange(1, 0)
	storeCmd := s.client.Store(seqSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("flagging trash for deletion: %w", err)
	}
	if err := s.client.Expunge().Close(); err != nil {
		return fmt.Errorf("expunging trash: %w", err)
	}
	return nil
}

// appendTo stores raw message bytes into the folder resolved for a role.
// The bytes are written verbatim; this is one of the two consumers of the
// canonical message serialization.
func (s *Session) appendTo(role Role, raw []byte, flags ...imap.Flag) error {
	path, err := s.pathFor(string(role))
	if err != nil {
		return err
	}

	appendCmd := s.client.Append(path, int64(len(raw)), &imap.AppendOptions{
		Flags: flags,
		Time:  time.Now(),
	})
	if _, err := appendCmd.Write(raw); err != nil {
		appendCmd.Close()
		return fmt.Errorf("appending to %q: %w", path, err)
	}
	if err := appendCmd.Close(); err != nil {
		return fmt.Errorf("appending to %q: %w", path, err)
	}
	if _, err := appendCmd.Wait(); err != nil {
		if isMissingMailbox(err) {
			return &FolderNotFoundError{Role: role, Path: path}
		}
		return fmt.Errorf("appending to %q: %w", path, err)
	}
	return nil
}

// SaveDraft files canonical message bytes into the drafts folder.
func (s *Session) SaveDraft(raw []byte) error {
	return s.appendTo(RoleDrafts, raw, imap.FlagDraft, imap.FlagSeen)
}

// AppendSent files canonical message bytes into the sent folder. Used by
// the delivery orchestrator after a successful submission.
func (s *Session) AppendSent(raw []byte) error {
	return s.appendTo(RoleSent, raw, imap.FlagSeen)
}

// applyEach runs one operation per UID, continuing past individual
// failures. When some items fail the returned error is a PartialBulkError
// naming exactly the failed subset; succeeded items stay committed.
func applyEach(op string, uids []uint32, fn func(uid uint32) error) error {
	var failed []BulkItemError
	for _, uid := range uids {
		if err := fn(uid); err != nil {
			failed = append(failed, BulkItemError{UID: imap.UID(uid), Reason: err.Error()})
		}
	}
	if len(failed) > 0 {
		return &PartialBulkError{Op: op, Failed: failed, Total: len(uids)}
	}
	return nil
}

// DeleteMany deletes a set of messages with bulk partial-failure semantics.
func (s *Session) DeleteMany(target string, uids []uint32) error {
	return applyEach("delete", uids, func(uid uint32) error {
		return s.Delete(target, uid)
	})
}

// MoveMany moves a set of messages with bulk partial-failure semantics.
func (s *Session) MoveMany(target string, uids []uint32, dest string) error {
	return applyEach("move", uids, func(uid uint32) error {
		return s.Move(target, uid, dest)
	})
}

// MarkSpamMany moves a set of messages to spam with bulk partial-failure
// semantics.
func (s *Session) MarkSpamMany(target string, uids []uint32) error {
	return applyEach("mark spam", uids, func(uid uint32) error {
		return s.MarkSpam(target, uid)
	})
}

// ArchiveMany archives a set of messages with bulk partial-failure
// semantics.
func (s *Session) ArchiveMany(target string, uids []uint32) error {
	return applyEach("archive", uids, func(uid uint32) error {
		return s.Archive(target, uid)
	})
}
