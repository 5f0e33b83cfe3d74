package uid

import (
	"fmt"
	"net"

	"mailgate/internal/models"
	"mailgate/internal/server/command"
	"mailgate/internal/server/message"
	"mailgate/internal/server/middleware"
)

// ServerDeps defines the dependencies that UID handlers need from the server
type ServerDeps interface {
	middleware.BackendDeps
}

// ===== UID (Main Dispatcher) =====

// HandleUID implements UID FETCH, UID STORE and UID SEARCH.
// Syntax: UID <command> <arguments>
func HandleUID(deps ServerDeps, conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
	if !middleware.MinArgs(deps, conn, tag, parts, 3, "UID requires sub-command") {
		return
	}

	// Drop "UID" so the sub-command sees [tag CMD args...]
	sub := append([]string{tag}, parts[2:]...)

	switch command.Parse(parts[2]) {
	case command.Fetch:
		fetch := middleware.RequireMailboxSelected(deps, func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
			message.HandleFetch(deps, conn, tag, parts, sess, true)
		})
		fetch(conn, tag, sub, sess)
	case command.Store:
		store := middleware.RequireMailboxSelected(deps, func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
			message.HandleStore(deps, conn, tag, parts, sess, true)
		})
		store(conn, tag, sub, sess)
	case command.Search:
		search := middleware.WithMessages(deps, func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession, msgs []models.EmailMessage) {
			message.HandleSearch(deps, conn, tag, parts, sess, msgs, true)
		})
		search(conn, tag, sub, sess)
	default:
		deps.SendResponse(conn, fmt.Sprintf("%s BAD Unknown UID command: %s", tag, parts[2]))
	}
}
