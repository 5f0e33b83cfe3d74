package message

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"mailgate/internal/models"
	"mailgate/internal/server/middleware"
	"mailgate/internal/server/utils"
)

// ===== STORE =====

// HandleStore implements STORE and UID STORE. Only \Seen, \Flagged and
// \Answered persist; the answer reports the flags the store now holds.
func HandleStore(deps ServerDeps, conn net.Conn, tag string, parts []string, sess *models.ProtocolSession, byUID bool) {
	name := commandName("STORE", byUID)
	if !middleware.MinArgs(deps, conn, tag, parts, 5, name+" requires sequence set, data item and flags") {
		return
	}
	if sess.ReadOnly {
		deps.SendResponse(conn, fmt.Sprintf("%s NO Mailbox is read-only", tag))
		return
	}

	set, err := utils.ParseNumberSet(parts[2])
	if err != nil {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD Invalid sequence set", tag))
		return
	}
	op, silent, ok := utils.ParseStoreItem(parts[3])
	if !ok {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD Invalid STORE data item %s", tag, parts[3]))
		return
	}
	update := utils.CalculateFlagUpdate(op, utils.ParseFlagList(strings.Join(parts[4:], " ")))

	msgs, ok := middleware.ListMessages(deps, conn, tag, sess, sess.SelectedMailbox)
	if !ok {
		return
	}

	for _, msg := range matching(set, msgs, byUID) {
		flags := msg.Flags
		if !update.Empty() {
			ctx, cancel := deps.RequestContext()
			stored, err := deps.Backend().SetFlags(ctx, sess.Token, msg.ID, update)
			cancel()
			if err != nil {
				middleware.BackendError(deps, conn, tag, sess, err)
				return
			}
			flags = stored.IMAPFlags()
		}
		if silent {
			continue
		}

		items := "FLAGS (" + strings.Join(flags, " ") + ")"
		if byUID {
			items = "UID " + strconv.FormatUint(uint64(msg.UID), 10) + " " + items
		}
		deps.SendResponse(conn, fmt.Sprintf("* %d FETCH (%s)", msg.Seq, items))
	}
	deps.SendResponse(conn, fmt.Sprintf("%s OK %s completed", tag, name))
}

// ===== SEARCH =====

// HandleSearch returns every message of the listing; search criteria are
// accepted but not applied. SEARCH answers sequence numbers, UID SEARCH
// answers UIDs.
func HandleSearch(deps ServerDeps, conn net.Conn, tag string, parts []string, sess *models.ProtocolSession, msgs []models.EmailMessage, byUID bool) {
	var b strings.Builder
	b.WriteString("* SEARCH")
	for i, msg := range msgs {
		n := uint32(i + 1)
		if byUID {
			n = msg.UID
		}
		b.WriteString(" ")
		b.WriteString(strconv.FormatUint(uint64(n), 10))
	}

	deps.SendResponse(conn, b.String())
	deps.SendResponse(conn, fmt.Sprintf("%s OK %s completed", tag, commandName("SEARCH", byUID)))
}

// ===== EXPUNGE =====

// HandleExpunge acknowledges EXPUNGE. Deletion goes through the mail API,
// never through \Deleted.
func HandleExpunge(deps ServerDeps, conn net.Conn, tag string, sess *models.ProtocolSession) {
	deps.SendResponse(conn, fmt.Sprintf("%s OK EXPUNGE completed", tag))
}
