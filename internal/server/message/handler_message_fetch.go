package message

import (
	"fmt"
	"net"
	"strings"

	"mailgate/internal/models"
	"mailgate/internal/server/middleware"
	"mailgate/internal/server/response"
	"mailgate/internal/server/utils"
)

// ServerDeps defines the dependencies that message handlers need from the server
type ServerDeps interface {
	middleware.BackendDeps
}

// ===== FETCH =====

// HandleFetch implements FETCH and, with byUID, UID FETCH. parts is
// [tag FETCH set items...] in both cases. UID FETCH always reports UID.
func HandleFetch(deps ServerDeps, conn net.Conn, tag string, parts []string, sess *models.ProtocolSession, byUID bool) {
	name := commandName("FETCH", byUID)
	if !middleware.MinArgs(deps, conn, tag, parts, 4, name+" requires sequence set and data items") {
		return
	}

	set, err := utils.ParseNumberSet(parts[2])
	if err != nil {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD Invalid sequence set", tag))
		return
	}
	items, err := response.ParseFetchItems(strings.Join(parts[3:], " "))
	if err != nil {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD %v", tag, err))
		return
	}
	if byUID {
		items.UID = true
	}

	msgs, ok := middleware.ListMessages(deps, conn, tag, sess, sess.SelectedMailbox)
	if !ok {
		return
	}

	for _, msg := range matching(set, msgs, byUID) {
		content := ""
		if items.NeedsContent() {
			content = fetchContent(deps, sess, msg.EmailMessage)
		}
		deps.SendResponse(conn, response.FormatFetch(msg.Seq, msg.EmailMessage, items, content))
	}
	deps.SendResponse(conn, fmt.Sprintf("%s OK %s completed", tag, name))
}

// fetchContent returns the stored bytes of msg, or a message rebuilt from
// the summary when the mail API cannot deliver them.
func fetchContent(deps ServerDeps, sess *models.ProtocolSession, msg models.EmailMessage) string {
	ctx, cancel := deps.RequestContext()
	defer cancel()

	raw, err := deps.Backend().GetRawMessage(ctx, sess.Token, sess.SelectedMailbox, msg.ID)
	if err != nil || raw == "" {
		deps.Logger().Warn().Err(err).Str("conn", sess.ID).Str("message", msg.ID).Msg("raw fetch failed, sending reconstructed message")
		return response.MinimalMessage(msg)
	}
	return raw
}

// numbered is a message with its sequence number in the current listing.
type numbered struct {
	models.EmailMessage
	Seq uint32
}

// matching returns the messages of a UID ordered listing that fall in set.
// Sequence numbers are positions in the listing; "*" is the last message or
// the highest UID.
func matching(set utils.NumberSet, msgs []models.EmailMessage, byUID bool) []numbered {
	if len(msgs) == 0 {
		return nil
	}

	max := uint32(len(msgs))
	if byUID {
		max = msgs[len(msgs)-1].UID
	}

	var out []numbered
	for i, msg := range msgs {
		seq := uint32(i + 1)
		key := seq
		if byUID {
			key = msg.UID
		}
		if set.Contains(key, max) {
			out = append(out, numbered{EmailMessage: msg, Seq: seq})
		}
	}
	return out
}

func commandName(cmd string, byUID bool) string {
	if byUID {
		return "UID " + cmd
	}
	return cmd
}
