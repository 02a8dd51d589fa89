package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/emersion/go-imap/v2"
)

// AuthError indicates the mail server rejected the supplied credentials.
// It is deliberately distinct from ConnectError: the user-facing message
// for "bad credentials" must never be conflated with "server unreachable".
type AuthError struct {
	Address string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Address, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ConnectError indicates the mail server could not be reached or the
// connection failed before authentication completed.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// IsConnectError reports whether err is a ConnectError.
func IsConnectError(err error) bool {
	var connErr *ConnectError
	return errors.As(err, &connErr)
}

// TimeoutError indicates the connect+authenticate phase exceeded its
// deadline.
type TimeoutError struct {
	Addr string
	Err  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out connecting to %s: %v", e.Addr, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// IsTimeoutError reports whether err is a TimeoutError.
func IsTimeoutError(err error) bool {
	var toErr *TimeoutError
	return errors.As(err, &toErr)
}

// FolderNotFoundError indicates a folder role resolved to a fallback path
// that does not exist on the server. It is an operation-specific error, not
// a session failure; the session stays usable.
type FolderNotFoundError struct {
	Role Role
	Path string
}

func (e *FolderNotFoundError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("folder %q for role %s not found on server", e.Path, e.Role)
	}
	return fmt.Sprintf("folder %q not found on server", e.Path)
}

// IsFolderNotFound reports whether err is a FolderNotFoundError.
func IsFolderNotFound(err error) bool {
	var nfErr *FolderNotFoundError
	return errors.As(err, &nfErr)
}

// BulkItemError records the failure of a single message within a bulk
// operation.
type BulkItemError struct {
	UID    imap.UID
	Reason string
}

// PartialBulkError aggregates the failed subset of a bulk operation whose
// remaining items succeeded and are committed.
type PartialBulkError struct {
	Op     string
	Failed []BulkItemError
	Total  int
}

func (e *PartialBulkError) Error() string {
	return fmt.Sprintf("%s: %d of %d messages failed", e.Op, len(e.Failed), e.Total)
}

// IsPartialBulk reports whether err is a PartialBulkError, returning it for
// inspection of the failed subset.
func IsPartialBulk(err error) (*PartialBulkError, bool) {
	var bulkErr *PartialBulkError
	if errors.As(err, &bulkErr) {
		return bulkErr, true
	}
	return nil, false
}

// classifyConnectErr maps a pre-authentication failure (dial, deadline,
// TLS upgrade, greeting) onto the session error taxonomy. Timeouts are
// detected first so a slow server is reported as such rather than as a
// generic connection failure. A tagged server reply at this stage, such as
// a refused STARTTLS, is still a connectivity failure: the credentials were
// never presented.
func classifyConnectErr(addr string, err error) error {
	if err == nil {
		return nil
	}
	if isTimeout(err) {
		return &TimeoutError{Addr: addr, Err: err}
	}
	return &ConnectError{Addr: addr, Err: err}
}

// classifyLoginErr maps a LOGIN failure onto the taxonomy. Only here does a
// tagged NO/BAD reply mean rejected credentials; the server was reached and
// turned the login down.
func classifyLoginErr(addr, address string, err error) error {
	if err == nil {
		return nil
	}
	if isTimeout(err) {
		return &TimeoutError{Addr: addr, Err: err}
	}

	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		return &AuthError{Address: address, Err: err}
	}

	return &ConnectError{Addr: addr, Err: err}
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// isMissingMailbox reports whether an IMAP command failed because the target
// mailbox does not exist, which is how a fallback default path surfaces.
func isMissingMailbox(err error) bool {
	if err == nil {
		return false
	}
	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		switch imapErr.Code {
		case imap.ResponseCodeNonExistent, imap.ResponseCodeTryCreate:
			return true
		}
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "no such mailbox") ||
		strings.Contains(s, "doesn't exist") ||
		strings.Contains(s, "does not exist")
}
