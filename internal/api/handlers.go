package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mailgate/internal/mail"
	"mailgate/internal/models"
	"mailgate/internal/outbound"
)

const maxBodyBytes = 10 << 20

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string     `json:"token"`
	Email     string     `json:"email"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type messagesResponse struct {
	Messages []models.EmailMessage `json:"messages"`
	Total    int                   `json:"total"`
}

type flagsResponse struct {
	Success bool                `json:"success"`
	Flags   models.MessageFlags `json:"flags"`
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password required")
		return
	}
	if !s.svc.Authenticate(r.Context(), req.Email, req.Password) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if s.tokens == nil {
		writeJSON(w, http.StatusOK, authResponse{Token: CredentialToken(req.Email, req.Password), Email: req.Email})
		return
	}

	token, expires, err := s.tokens.Issue(strings.ToLower(req.Email))
	if err != nil {
		s.logger.Error().Err(err).Msg("token signing failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, Email: req.Email, ExpiresAt: &expires})
}

func (s *Server) handleListMailboxes(w http.ResponseWriter, r *http.Request, user string) {
	boxes, err := s.svc.ListMailboxes(r.Context(), user)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mailboxes": boxes})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, user string) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := queryInt(q.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	msgs, err := s.svc.ListMessages(r.Context(), user, q.Get("mailbox"), mail.ListOptions{
		Limit:       limit,
		Offset:      offset,
		IncludeBody: q.Get("preview") == "true",
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: msgs, Total: len(msgs)})
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request, user string) {
	q := r.URL.Query()
	format := q.Get("format")
	switch format {
	case "":
		format = mail.FormatFull
	case mail.FormatFull, mail.FormatHeaders, mail.FormatRaw:
	default:
		writeError(w, http.StatusBadRequest, "format must be full, headers or raw")
		return
	}

	detail, err := s.svc.GetMessage(r.Context(), user, r.PathValue("id"), mail.GetOptions{
		Mailbox: q.Get("mailbox"),
		Format:  format,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if format == mail.FormatRaw && strings.Contains(r.Header.Get("Accept"), mail.ContentTypeRFC822) {
		w.Header().Set("Content-Type", mail.ContentTypeRFC822)
		w.Header().Set("Content-Length", strconv.Itoa(len(detail.Content)))
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, detail.Content)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request, user string) {
	q := r.URL.Query()
	err := s.svc.DeleteMessage(r.Context(), user, r.PathValue("id"), mail.DeleteOptions{
		Mailbox:   q.Get("mailbox"),
		Permanent: q.Get("permanent") == "true",
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleGetFlags(w http.ResponseWriter, r *http.Request, user string) {
	flags, err := s.svc.GetMessageFlags(r.Context(), user, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

func (s *Server) handleSetFlags(w http.ResponseWriter, r *http.Request, user string) {
	var update models.FlagUpdate
	if err := decodeBody(w, r, &update); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	flags, err := s.svc.SetMessageFlags(r.Context(), user, r.PathValue("id"), update)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flagsResponse{Success: true, Flags: flags})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, user string) {
	var params mail.SendParams
	if err := decodeBody(w, r, &params); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(params.To) == 0 || params.Subject == "" {
		writeError(w, http.StatusBadRequest, "To and subject required")
		return
	}

	id, err := s.svc.SendMessage(r.Context(), user, params)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"messageId": id})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, user string) {
	var query mail.SearchQuery
	if err := decodeBody(w, r, &query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	msgs, err := s.svc.SearchMessages(r.Context(), user, query)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: msgs, Total: len(msgs)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps service errors onto HTTP status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mail.ErrMessageNotFound):
		writeError(w, http.StatusNotFound, "Message not found")
	case errors.Is(err, mail.ErrMailboxNotFound):
		writeError(w, http.StatusNotFound, "Mailbox not found")
	case errors.Is(err, outbound.ErrInvalidMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, mail.ErrStorageUnavailable), errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn().Err(err).Msg("storage unavailable")
		writeError(w, http.StatusServiceUnavailable, "Mail storage unavailable")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeBody reads a JSON body. An empty body decodes as an empty object.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
