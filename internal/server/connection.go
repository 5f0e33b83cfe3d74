package server

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"mailgate/internal/logging"
	"mailgate/internal/metrics"
	"mailgate/internal/models"
	"mailgate/internal/server/auth"
	"mailgate/internal/server/command"
	"mailgate/internal/server/extension"
	"mailgate/internal/server/mailbox"
	"mailgate/internal/server/message"
	"mailgate/internal/server/middleware"
	"mailgate/internal/server/selection"
	"mailgate/internal/server/uid"
	"mailgate/internal/server/utils"
)

// handleClient reads CRLF (or bare LF) terminated lines and handles them one
// at a time. It returns on LOGOUT, EOF, a read error, the idle timeout or
// shutdown.
func handleClient(s *IMAPServer, conn net.Conn, sess *models.ProtocolSession) {
	reader := bufio.NewReader(conn)

	for {
		if !s.armReadDeadline(conn) {
			s.SendResponse(conn, "* BYE Server shutting down")
			return
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			case errors.Is(err, os.ErrDeadlineExceeded) && s.shuttingDown():
				s.SendResponse(conn, "* BYE Server shutting down")
			case errors.Is(err, os.ErrDeadlineExceeded):
				s.logger.Debug().Str("conn", sess.ID).Msg("connection idle, closing")
			default:
				s.logger.Debug().Err(err).Str("conn", sess.ID).Msg("read failed")
			}
			return
		}

		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if sess.PendingAuth != "" {
			s.logger.Debug().Str("conn", sess.ID).Msg("client: [AUTHENTICATE response]")
		} else {
			s.logger.Debug().Str("conn", sess.ID).Str("line", logging.MaskPassword(line)).Msg("client")
		}

		s.handleLine(conn, sess, line)
		if sess.LoggedOut {
			return
		}
	}
}

// handleLine routes a line to a pending continuation or to the dispatcher.
func (s *IMAPServer) handleLine(conn net.Conn, sess *models.ProtocolSession, line string) {
	switch {
	case sess.PendingAuth != "":
		auth.HandleAuthenticateResponse(s, conn, line, sess)
		return
	case sess.IdleTag != "":
		if extension.IsDone(line) {
			extension.HandleDone(s, conn, sess)
		} else {
			s.SendResponse(conn, "* BAD Expected DONE")
		}
		return
	}

	parts := utils.SplitArgs(line)
	if len(parts) < 2 {
		s.SendResponse(conn, "* BAD Invalid command format")
		return
	}
	if !validTag(parts[0]) {
		s.SendResponse(conn, "* BAD Invalid tag")
		return
	}

	s.dispatch(conn, parts[0], parts, sess)
}

// dispatch runs one tagged command and records its duration and result.
func (s *IMAPServer) dispatch(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
	cmd := command.Parse(parts[1])
	start := time.Now()
	rc := &resultConn{Conn: conn, prefix: []byte(tag + " ")}
	defer func() {
		metrics.ObserveCommand(cmd.String(), rc.result(), start)
	}()

	handler := s.handler(cmd)
	switch {
	case cmd.RequiresSelection():
		handler = middleware.RequireAuthAndMailbox(s, handler)
	case cmd.RequiresAuth():
		handler = middleware.RequireAuth(s, handler)
	}
	handler(rc, tag, parts, sess)
}

// handler maps every command onto its implementation.
func (s *IMAPServer) handler(cmd command.Command) middleware.HandlerFunc {
	switch cmd {
	case command.Capability:
		return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
			auth.HandleCapability(s, conn, tag, sess)
		}
	case command.Noop:
		return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
			extension.HandleNoop(s, conn, tag, sess)
		}
	case command.Login:
		return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
			auth.HandleLogin(s, conn, tag, parts, sess)
		}
	case command.Authenticate:
		return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
			auth.HandleAuthenticate(s, conn, tag, parts, sess)
		}
	case command.Logout:
		return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
			auth.HandleLogout(s, conn, tag, sess)
		}
	case command.List, command.Lsub:
		return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
			mailbox.HandleList(s, conn, tag, parts, sess)
		}
	case command.Status:
		return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
			mailbox.HandleStatus(s, conn, tag, parts, sess)
		}
	case command.Select, command.Examine:
		return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
			selection.HandleSelect(s, conn, tag, parts, sess)
		}
	case command.Close:
		return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
			selection.HandleClose(s, conn, tag, sess)
		}
	case command.Unselect:
		return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
			selection.HandleUnselect(s, conn, tag, sess)
		}
	case command.Fetch:
		return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
			message.HandleFetch(s, conn, tag, parts, sess, false)
		}
	case command.Store:
		return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
			message.HandleStore(s, conn, tag, parts, sess, false)
		}
	case command.Search:
		return middleware.WithMessages(s, func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession, msgs []models.EmailMessage) {
			message.HandleSearch(s, conn, tag, parts, sess, msgs, false)
		})
	case command.Expunge:
		return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
			message.HandleExpunge(s, conn, tag, sess)
		}
	case command.UID:
		return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
			uid.HandleUID(s, conn, tag, parts, sess)
		}
	case command.Idle:
		return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
			extension.HandleIdle(s, conn, tag, sess)
		}
	case command.Done:
		return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
			s.SendResponse(conn, fmt.Sprintf("%s BAD No IDLE in progress", tag))
		}
	case command.Namespace:
		return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
			extension.HandleNamespace(s, conn, tag, sess)
		}
	case command.Unknown:
	}
	return func(conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
		s.SendResponse(conn, fmt.Sprintf("%s BAD Unknown command", tag))
	}
}

// validTag rejects tags containing characters that IMAP reserves.
func validTag(tag string) bool {
	return !strings.ContainsAny(tag, `*+(){}"%\`)
}

// resultConn notes the status of the tagged completion written for one
// command.
type resultConn struct {
	net.Conn
	prefix []byte
	status string
}

func (c *resultConn) Write(b []byte) (int, error) {
	if c.status == "" && bytes.HasPrefix(b, c.prefix) {
		rest := b[len(c.prefix):]
		if i := bytes.IndexByte(rest, ' '); i > 0 {
			rest = rest[:i]
		}
		c.status = strings.ToLower(strings.TrimSpace(string(rest)))
	}
	return c.Conn.Write(b)
}

// result is ok, no or bad, or pending when the command is waiting for a
// continuation.
func (c *resultConn) result() string {
	if c.status == "" {
		return "pending"
	}
	return c.status
}
