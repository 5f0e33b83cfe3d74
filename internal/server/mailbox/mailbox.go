package mailbox

import (
	"fmt"
	"net"
	"strings"

	"mailgate/internal/models"
	"mailgate/internal/server/middleware"
	"mailgate/internal/server/utils"
)

// ServerDeps defines the dependencies that mailbox handlers need from the server
type ServerDeps interface {
	middleware.BackendDeps
}

// ===== LIST / LSUB =====

// HandleList answers LIST from the fixed folder set. Every folder counts as
// subscribed, so LSUB gives the same answer.
func HandleList(deps ServerDeps, conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
	cmd := strings.ToUpper(parts[1])
	if !middleware.MinArgs(deps, conn, tag, parts, 4, cmd+" requires reference and mailbox pattern") {
		return
	}

	reference := utils.ParseQuotedString(parts[2])
	pattern := utils.ParseQuotedString(parts[3])

	if pattern == "" {
		// Hierarchy delimiter query
		deps.SendResponse(conn, fmt.Sprintf(`* %s (\Noselect) "%s" ""`, cmd, utils.Delimiter))
		deps.SendResponse(conn, fmt.Sprintf("%s OK %s completed", tag, cmd))
		return
	}

	for _, name := range utils.FilterMailboxes(models.Mailboxes, reference, pattern) {
		deps.SendResponse(conn, fmt.Sprintf(`* %s (%s) "%s" "%s"`, cmd, utils.GetMailboxAttributes(name), utils.Delimiter, name))
	}
	deps.SendResponse(conn, fmt.Sprintf("%s OK %s completed", tag, cmd))
}

// ===== STATUS =====

// HandleStatus reports counts for any folder without touching the selection.
func HandleStatus(deps ServerDeps, conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
	if !middleware.MinArgs(deps, conn, tag, parts, 4, "STATUS requires mailbox and status items") {
		return
	}

	name, ok := models.CanonicalMailbox(utils.ParseQuotedString(parts[2]))
	if !ok {
		deps.SendResponse(conn, fmt.Sprintf("%s NO [NONEXISTENT] Mailbox does not exist", tag))
		return
	}

	requested := strings.Fields(strings.ToUpper(utils.StripParens(strings.Join(parts[3:], " "))))
	if len(requested) == 0 {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD STATUS requires status items", tag))
		return
	}
	for _, item := range requested {
		switch item {
		case "MESSAGES", "RECENT", "UIDNEXT", "UIDVALIDITY", "UNSEEN":
		default:
			deps.SendResponse(conn, fmt.Sprintf("%s BAD Unknown STATUS item %s", tag, item))
			return
		}
	}

	msgs, ok := middleware.ListMessages(deps, conn, tag, sess, name)
	if !ok {
		return
	}
	info := models.NewMailboxInfo(name, msgs)

	values := make([]string, 0, len(requested))
	for _, item := range requested {
		var v uint32
		switch item {
		case "MESSAGES":
			v = uint32(info.Messages)
		case "RECENT":
			v = 0
		case "UIDNEXT":
			v = info.UIDNext
		case "UIDVALIDITY":
			v = info.UIDValidity
		case "UNSEEN":
			v = uint32(info.Unseen)
		}
		values = append(values, fmt.Sprintf("%s %d", item, v))
	}

	deps.SendResponse(conn, fmt.Sprintf(`* STATUS "%s" (%s)`, name, strings.Join(values, " ")))
	deps.SendResponse(conn, fmt.Sprintf("%s OK STATUS completed", tag))
}
