package selection

import (
	"fmt"
	"net"
	"strings"

	"mailgate/internal/models"
	"mailgate/internal/server/middleware"
	"mailgate/internal/server/utils"
)

// ServerDeps defines the dependencies that selection handlers need from the server
type ServerDeps interface {
	middleware.BackendDeps
}

// ===== SELECT / EXAMINE =====

// HandleSelect opens a mailbox. EXAMINE opens it read-only. A failed
// SELECT leaves no mailbox selected.
func HandleSelect(deps ServerDeps, conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
	cmd := strings.ToUpper(parts[1])
	readOnly := cmd == "EXAMINE"

	if !middleware.MinArgs(deps, conn, tag, parts, 3, cmd+" requires mailbox name") {
		return
	}

	name, ok := models.CanonicalMailbox(utils.ParseQuotedString(parts[2]))
	if !ok {
		sess.ClearSelection()
		deps.SendResponse(conn, fmt.Sprintf("%s NO [NONEXISTENT] Mailbox does not exist", tag))
		return
	}

	msgs, ok := middleware.ListMessages(deps, conn, tag, sess, name)
	if !ok {
		sess.ClearSelection()
		return
	}

	if err := sess.Select(name, readOnly); err != nil {
		deps.SendResponse(conn, fmt.Sprintf("%s NO Not authenticated", tag))
		return
	}

	info := models.NewMailboxInfo(name, msgs)
	deps.SendResponse(conn, fmt.Sprintf("* %d EXISTS", info.Messages))
	deps.SendResponse(conn, "* 0 RECENT")
	for i, m := range msgs {
		if !m.HasFlag(models.FlagSeen) {
			deps.SendResponse(conn, fmt.Sprintf("* OK [UNSEEN %d] Message %d is first unseen", i+1, i+1))
			break
		}
	}
	deps.SendResponse(conn, fmt.Sprintf("* OK [UIDVALIDITY %d] UIDs valid", info.UIDValidity))
	deps.SendResponse(conn, fmt.Sprintf("* OK [UIDNEXT %d] Predicted next UID", info.UIDNext))
	deps.SendResponse(conn, fmt.Sprintf("* FLAGS (%s)", strings.Join(utils.SelectFlags, " ")))
	if readOnly {
		deps.SendResponse(conn, "* OK [PERMANENTFLAGS ()] No permanent flags permitted")
		deps.SendResponse(conn, fmt.Sprintf("%s OK [READ-ONLY] EXAMINE completed", tag))
		return
	}
	deps.SendResponse(conn, fmt.Sprintf("* OK [PERMANENTFLAGS (%s)] Limited", strings.Join(utils.PermanentFlags, " ")))
	deps.SendResponse(conn, fmt.Sprintf("%s OK [READ-WRITE] SELECT completed", tag))
}

// ===== CLOSE / UNSELECT =====

// HandleClose leaves the selected state. Nothing is expunged.
func HandleClose(deps ServerDeps, conn net.Conn, tag string, sess *models.ProtocolSession) {
	sess.ClearSelection()
	deps.SendResponse(conn, fmt.Sprintf("%s OK CLOSE completed", tag))
}

func HandleUnselect(deps ServerDeps, conn net.Conn, tag string, sess *models.ProtocolSession) {
	sess.ClearSelection()
	deps.SendResponse(conn, fmt.Sprintf("%s OK UNSELECT completed", tag))
}
