package middleware

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"

	"github.com/rs/zerolog"

	"mailgate/internal/client"
	"mailgate/internal/models"
)

// ServerDeps defines what every handler needs from the server.
type ServerDeps interface {
	SendResponse(conn net.Conn, response string)
	Logger() *zerolog.Logger
}

// BackendDeps adds access to the mail API.
type BackendDeps interface {
	ServerDeps
	Backend() models.MailBackend
	// RequestContext bounds one call to the mail API.
	RequestContext() (context.Context, context.CancelFunc)
}

// HandlerFunc is the standard handler function signature
type HandlerFunc func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession)

// RequireAuth ensures the client is authenticated before proceeding
func RequireAuth(deps ServerDeps, handler HandlerFunc) HandlerFunc {
	return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
		if !sess.Authenticated {
			deps.SendResponse(conn, fmt.Sprintf("%s NO Not authenticated", tag))
			return
		}
		handler(conn, tag, parts, sess)
	}
}

// RequireMailboxSelected ensures a mailbox is selected before proceeding
func RequireMailboxSelected(deps ServerDeps, handler HandlerFunc) HandlerFunc {
	return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
		if !sess.HasSelection() {
			deps.SendResponse(conn, fmt.Sprintf("%s NO No mailbox selected", tag))
			return
		}
		handler(conn, tag, parts, sess)
	}
}

// RequireAuthAndMailbox wraps handler for commands that work on the
// selected mailbox. Unauthenticated sessions get the auth error first.
func RequireAuthAndMailbox(deps ServerDeps, handler HandlerFunc) HandlerFunc {
	return RequireAuth(deps, RequireMailboxSelected(deps, handler))
}

// MinArgs reports whether parts ([tag CMD args...]) holds at least n
// tokens. When it does not, usage is sent as a tagged BAD.
func MinArgs(deps ServerDeps, conn net.Conn, tag string, parts []string, n int, usage string) bool {
	if len(parts) >= n {
		return true
	}
	deps.SendResponse(conn, fmt.Sprintf("%s BAD %s", tag, usage))
	return false
}

// HandlerWithMessagesFunc receives a fresh listing ordered by UID. Message
// i has sequence number i+1.
type HandlerWithMessagesFunc func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession, msgs []models.EmailMessage)

// WithMessages lists the selected mailbox, or INBOX when nothing is
// selected, before calling handler.
func WithMessages(deps BackendDeps, handler HandlerWithMessagesFunc) HandlerFunc {
	return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
		mailbox := sess.SelectedMailbox
		if mailbox == "" {
			mailbox = models.MailboxInbox
		}
		msgs, ok := ListMessages(deps, conn, tag, sess, mailbox)
		if !ok {
			return
		}
		handler(conn, tag, parts, sess, msgs)
	}
}

// ListMessages fetches a fresh listing of mailbox ordered by UID. On failure
// the tagged NO has already been sent and ok is false.
func ListMessages(deps BackendDeps, conn net.Conn, tag string, sess *models.ProtocolSession, mailbox string) (msgs []models.EmailMessage, ok bool) {
	ctx, cancel := deps.RequestContext()
	defer cancel()

	msgs, err := deps.Backend().ListMessages(ctx, sess.Token, mailbox)
	if err != nil {
		BackendError(deps, conn, tag, sess, err)
		return nil, false
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].UID < msgs[j].UID })
	return msgs, true
}

// BackendError answers a failed mail API call with a tagged NO.
func BackendError(deps ServerDeps, conn net.Conn, tag string, sess *models.ProtocolSession, err error) {
	logger := deps.Logger()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn().Err(err).Str("conn", sess.ID).Msg("mail API timed out")
		deps.SendResponse(conn, fmt.Sprintf("%s NO [UNAVAILABLE] Backend request timed out, try again", tag))
	case errors.Is(err, client.ErrUnauthorized):
		logger.Info().Err(err).Str("conn", sess.ID).Str("user", sess.User).Msg("mail API rejected session credentials")
		deps.SendResponse(conn, fmt.Sprintf("%s NO [AUTHENTICATIONFAILED] Credentials no longer valid", tag))
	case errors.Is(err, client.ErrNotFound):
		deps.SendResponse(conn, fmt.Sprintf("%s NO [NONEXISTENT] No such mailbox or message", tag))
	default:
		logger.Error().Err(err).Str("conn", sess.ID).Msg("mail API call failed")
		deps.SendResponse(conn, fmt.Sprintf("%s NO [UNAVAILABLE] Mail storage unavailable, try again", tag))
	}
}
