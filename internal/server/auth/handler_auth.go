package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/emersion/go-sasl"

	"mailgate/internal/client"
	"mailgate/internal/models"
	"mailgate/internal/server/middleware"
	"mailgate/internal/server/utils"
)

// Capabilities is the list advertised in the greeting and by CAPABILITY.
const Capabilities = "IMAP4rev1 AUTH=PLAIN IDLE NAMESPACE UNSELECT"

// ServerDeps defines the dependencies that auth handlers need from the server
type ServerDeps interface {
	middleware.BackendDeps
}

// ===== CAPABILITY =====

func HandleCapability(deps ServerDeps, conn net.Conn, tag string, sess *models.ProtocolSession) {
	deps.SendResponse(conn, "* CAPABILITY "+Capabilities)
	deps.SendResponse(conn, fmt.Sprintf("%s OK CAPABILITY completed", tag))
}

// ===== LOGIN =====

func HandleLogin(deps ServerDeps, conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
	if !middleware.MinArgs(deps, conn, tag, parts, 4, "LOGIN requires username and password") {
		return
	}

	username := utils.ParseQuotedString(parts[2])
	password := utils.ParseQuotedString(parts[3])

	ctx, cancel := deps.RequestContext()
	defer cancel()

	token, err := deps.Backend().Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			deps.Logger().Info().Str("conn", sess.ID).Str("user", username).Msg("login failed")
			deps.SendResponse(conn, fmt.Sprintf("%s NO LOGIN failed", tag))
			return
		}
		middleware.BackendError(deps, conn, tag, sess, err)
		return
	}

	sess.Login(username, token)
	deps.Logger().Info().Str("conn", sess.ID).Str("user", username).Msg("login succeeded")
	deps.SendResponse(conn, fmt.Sprintf("%s OK LOGIN completed", tag))
}

// ===== AUTHENTICATE =====

// HandleAuthenticate starts SASL PLAIN. Without an initial response the
// client gets a continuation and the next line is passed to
// HandleAuthenticateResponse.
func HandleAuthenticate(deps ServerDeps, conn net.Conn, tag string, parts []string, sess *models.ProtocolSession) {
	if !middleware.MinArgs(deps, conn, tag, parts, 3, "AUTHENTICATE requires a mechanism") {
		return
	}
	if !strings.EqualFold(parts[2], sasl.Plain) {
		deps.SendResponse(conn, fmt.Sprintf("%s NO Unsupported authentication mechanism", tag))
		return
	}

	if len(parts) >= 4 {
		completeAuthenticate(deps, conn, tag, parts[3], sess)
		return
	}

	sess.PendingAuth = tag
	deps.SendResponse(conn, "+ ")
}

// HandleAuthenticateResponse consumes the continuation line of a pending
// AUTHENTICATE. A lone "*" cancels the exchange.
func HandleAuthenticateResponse(deps ServerDeps, conn net.Conn, line string, sess *models.ProtocolSession) {
	tag := sess.PendingAuth
	sess.PendingAuth = ""

	if strings.TrimSpace(line) == "*" {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD AUTHENTICATE cancelled", tag))
		return
	}
	completeAuthenticate(deps, conn, tag, line, sess)
}

func completeAuthenticate(deps ServerDeps, conn net.Conn, tag, encoded string, sess *models.ProtocolSession) {
	response, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD Invalid base64 response", tag))
		return
	}

	var (
		user, token string
		backendErr  error
	)
	server := sasl.NewPlainServer(func(identity, username, password string) error {
		if identity != "" && identity != username {
			return errors.New("authorization identity must match username")
		}

		ctx, cancel := deps.RequestContext()
		defer cancel()

		t, err := deps.Backend().Authenticate(ctx, username, password)
		if err != nil {
			backendErr = err
			return err
		}
		user, token = username, t
		return nil
	})

	if _, _, err := server.Next(response); err != nil {
		if backendErr != nil && !errors.Is(backendErr, client.ErrUnauthorized) {
			middleware.BackendError(deps, conn, tag, sess, backendErr)
			return
		}
		deps.Logger().Info().Str("conn", sess.ID).Err(err).Msg("authenticate failed")
		deps.SendResponse(conn, fmt.Sprintf("%s NO AUTHENTICATE failed", tag))
		return
	}

	sess.Login(user, token)
	deps.Logger().Info().Str("conn", sess.ID).Str("user", user).Msg("authenticate succeeded")
	deps.SendResponse(conn, fmt.Sprintf("%s OK AUTHENTICATE completed", tag))
}

// ===== LOGOUT =====

func HandleLogout(deps ServerDeps, conn net.Conn, tag string, sess *models.ProtocolSession) {
	deps.SendResponse(conn, "* BYE IMAP4rev1 Server logging out")
	deps.SendResponse(conn, fmt.Sprintf("%s OK LOGOUT completed", tag))
	sess.Logout()
}
