package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/tax-intake/pkg/taxapi"
)

// NoticeKind identifies a user-facing session message.
type NoticeKind string

const (
	NoticeSessionExpired   NoticeKind = "session_expired"
	NoticeAnonymousExpired NoticeKind = "anonymous_expired"
)

// Notice is shown to the user after a forced sign-out.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

var notices = map[NoticeKind]string{
	NoticeSessionExpired:   "Your session has expired. Please sign in again.",
	NoticeAnonymousExpired: "Your guest session has ended and its documents are no longer available. Sign in or start a new session.",
}

// HandleError tears the session down when err carries an authentication
// failure or a vanished-account marker. It reports whether err was
// consumed; other errors are left for the caller.
func (c *Context) HandleError(ctx context.Context, err error) (Notice, bool) {
	if err == nil {
		return Notice{}, false
	}

	var kind NoticeKind
	switch {
	case taxapi.IsSessionExpired(err):
		kind = NoticeSessionExpired
	case taxapi.IsUserNotFound(err):
		kind = NoticeSessionExpired
		if c.Anonymous() {
			kind = NoticeAnonymousExpired
		}
	default:
		return Notice{}, false
	}

	zap.L().Info("session: forced sign-out", zap.String("notice", string(kind)), zap.Error(err))
	c.SignOut(ctx)
	return Notice{Kind: kind, Message: notices[kind]}, true
}

// EndedError is returned by actions that hit a session error. The local
// session has already been torn down when it is returned.
type EndedError struct {
	Notice Notice
	Err    error
}

func (e *EndedError) Error() string {
	return "session: " + e.Notice.Message
}

func (e *EndedError) Unwrap() error {
	return e.Err
}

// Check passes err through HandleError. Consumed errors come back as
// *EndedError; anything else is returned unchanged.
func (c *Context) Check(ctx context.Context, err error) error {
	n, ok := c.HandleError(ctx, err)
	if !ok {
		return err
	}
	return &EndedError{Notice: n, Err: err}
}

// AsEnded extracts an EndedError from err's chain.
func AsEnded(err error) (*EndedError, bool) {
	var ee *EndedError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
