package extension

import (
	"fmt"
	"net"
	"strings"

	"mailgate/internal/models"
	"mailgate/internal/server/middleware"
)

// ServerDeps defines the dependencies that extension handlers need from the server
type ServerDeps interface {
	middleware.ServerDeps
}

// ===== NOOP =====

// HandleNoop never polls: there is no cached mailbox state to compare with.
func HandleNoop(deps ServerDeps, conn net.Conn, tag string, sess *models.ProtocolSession) {
	deps.SendResponse(conn, fmt.Sprintf("%s OK NOOP completed", tag))
}

// ===== IDLE =====

// HandleIdle enters IDLE. Nothing is pushed while idling; the session only
// waits for DONE.
func HandleIdle(deps ServerDeps, conn net.Conn, tag string, sess *models.ProtocolSession) {
	sess.IdleTag = tag
	deps.SendResponse(conn, "+ idling")
}

// IsDone reports whether a line received while idling ends the IDLE. Both
// "DONE" and "<tag> DONE" are accepted.
func IsDone(line string) bool {
	fields := strings.Fields(line)
	switch len(fields) {
	case 1:
		return strings.EqualFold(fields[0], "DONE")
	case 2:
		return strings.EqualFold(fields[1], "DONE")
	}
	return false
}

// HandleDone completes a running IDLE with the tag of the IDLE command.
func HandleDone(deps ServerDeps, conn net.Conn, sess *models.ProtocolSession) {
	tag := sess.IdleTag
	sess.IdleTag = ""
	deps.SendResponse(conn, fmt.Sprintf("%s OK IDLE terminated", tag))
}

// ===== NAMESPACE =====

func HandleNamespace(deps ServerDeps, conn net.Conn, tag string, sess *models.ProtocolSession) {
	deps.SendResponse(conn, `* NAMESPACE (("" "/")) NIL NIL`)
	deps.SendResponse(conn, fmt.Sprintf("%s OK NAMESPACE completed", tag))
}
