package mailbox

import (
	"fmt"
	"strings"

	"github.com/emersion/go-imap/v2"
)

// folderEntry is the subset of a LIST reply the resolver works from.
type folderEntry struct {
	path       string
	attrs      []imap.MailboxAttr
	selectable bool
}

// roleRule drives resolution for one logical role: a server-advertised
// special-use attribute (authoritative), a keyword list covering common
// localized folder names, and the default path used when nothing matches.
// The default may not exist on the server; operations against it surface
// FolderNotFoundError.
type roleRule struct {
	role     Role
	attr     imap.MailboxAttr
	keywords []string
	fallback string
}

var roleRules = []roleRule{
	{RoleTrash, imap.MailboxAttrTrash, []string{"trash", "çöp", "deleted"}, "Trash"},
	{RoleSpam, imap.MailboxAttrJunk, []string{"junk", "spam", "istenmeyen"}, "Junk"},
	{RoleSent, imap.MailboxAttrSent, []string{"sent", "gönderil", "sent items"}, "Sent"},
	{RoleDrafts, imap.MailboxAttrDrafts, []string{"draft", "taslak"}, "Drafts"},
	{RoleArchive, imap.MailboxAttrArchive, []string{"archive", "arşiv"}, "Archive"},
}

func hasAttr(attrs []imap.MailboxAttr, target imap.MailboxAttr) bool {
	for _, a := range attrs {
		if a == target {
			return true
		}
	}
	return false
}

// resolveFolders builds the role map from a folder listing. For each role a
// special-use attribute match wins outright; only when no folder advertises
// the attribute does the keyword scan run, and only when that also finds
// nothing does the hard-coded default apply. The result is deterministic for
// a fixed listing and rule table.
func resolveFolders(listing []folderEntry) FolderMap {
	m := FolderMap{RoleInbox: "INBOX"}

	for _, rule := range roleRules {
		m[rule.role] = resolveRole(listing, rule)
	}

	// Starred has no server equivalent; it aliases the inbox and relies on
	// client-side \Flagged filtering.
	m[RoleStarred] = m[RoleInbox]

	return m
}

func resolveRole(listing []folderEntry, rule roleRule) string {
	for _, f := range listing {
		if hasAttr(f.attrs, rule.attr) {
			return f.path
		}
	}
	for _, f := range listing {
		lower := strings.ToLower(f.path)
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return f.path
			}
		}
	}
	return rule.fallback
}

// classifyFolders pairs every selectable folder in the listing with the role
// the resolved map assigned to it; everything unmapped is a user folder.
func classifyFolders(listing []folderEntry, m FolderMap) []Folder {
	byPath := make(map[string]Role, len(m))
	for role, path := range m {
		if role == RoleStarred {
			continue
		}
		byPath[path] = role
	}

	folders := make([]Folder, 0, len(listing))
	for _, f := range listing {
		if !f.selectable {
			continue
		}
		role, ok := byPath[f.path]
		if !ok {
			role = RoleUser
		}
		folders = append(folders, Folder{Name: displayName(f.path), Path: f.path, Role: role})
	}
	return folders
}

// displayName strips common mailbox prefixes for presentation.
func displayName(path string) string {
	name := path
	for _, prefix := range []string{"INBOX.", "INBOX/"} {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			name = name[len(prefix):]
			break
		}
	}
	return name
}

// listFolders fetches the server's full folder listing once.
func (s *Session) listFolders() ([]folderEntry, error) {
	if s.listing != nil {
		return s.listing, nil
	}
	if s.client == nil {
		return nil, fmt.Errorf("session is closed")
	}

	data, err := s.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}

	listing := make([]folderEntry, 0, len(data))
	for _, d := range data {
		listing = append(listing, folderEntry{
			path:       d.Mailbox,
			attrs:      d.Attrs,
			selectable: !hasAttr(d.Attrs, imap.MailboxAttrNoSelect),
		})
	}
	s.listing = listing
	return listing, nil
}

// Roles returns the session's role → physical path map, resolving it from
// the server's folder listing on first use and caching it for the session's
// lifetime.
func (s *Session) Roles() (FolderMap, error) {
	if s.folders != nil {
		return s.folders, nil
	}
	listing, err := s.listFolders()
	if err != nil {
		return nil, err
	}
	s.folders = resolveFolders(listing)
	return s.folders, nil
}

// Folders returns every selectable folder with its role classification, for
// the folder list the UI renders.
func (s *Session) Folders() ([]Folder, error) {
	m, err := s.Roles()
	if err != nil {
		return nil, err
	}
	listing, err := s.listFolders()
	if err != nil {
		return nil, err
	}
	return classifyFolders(listing, m), nil
}

// pathFor translates a target, either a logical role name or an explicit
// physical path for a user folder, into the path operations run against.
func (s *Session) pathFor(target string) (string, error) {
	if target == "" {
		target = string(RoleInbox)
	}
	role, ok := ParseRole(target)
	if !ok {
		// Explicit user folder path, used as-is.
		return target, nil
	}
	m, err := s.Roles()
	if err != nil {
		return "", err
	}
	path, ok := m[role]
	if !ok {
		return "", fmt.Errorf("no folder resolved for role %s", role)
	}
	return path, nil
}
