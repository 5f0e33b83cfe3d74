package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailgate/internal/blobstorage"
	"mailgate/internal/conf"
	"mailgate/internal/db"
	"mailgate/internal/mail"
	"mailgate/internal/models"
	"mailgate/internal/outbound"
)

const (
	testUser     = "alice@example.com"
	testPassword = "wonderland"
)

type testEnv struct {
	srv     *httptest.Server
	storage *blobstorage.MemoryBlobStorage
	store   *db.MemoryStore
	sender  *outbound.MemorySender
}

func newTestEnv(t *testing.T, cfg conf.APIConfig) *testEnv {
	t.Helper()
	env := &testEnv{
		storage: blobstorage.NewMemoryBlobStorage(),
		store:   db.NewMemoryStore(),
		sender:  outbound.NewMemorySender(),
	}
	ctx := context.Background()
	require.NoError(t, env.store.PutUser(ctx, db.User{Email: testUser, PasswordHash: mail.SHA256Hex(testPassword)}))

	for i, subject := range []string{"Hello", "Invoice", "Lunch"} {
		raw := fmt.Sprintf("From: bob@example.com\r\nTo: %s\r\nSubject: %s\r\nDate: Mon, 0%d Jan 2024 10:00:00 +0000\r\n\r\nbody %d", testUser, subject, i+1, i+1)
		require.NoError(t, env.storage.Store(ctx, fmt.Sprintf("incoming/m%d", i+1), []byte(raw)))
	}

	svc := mail.NewService(env.storage, env.store, env.sender, mail.Options{Logger: zerolog.Nop()})
	env.srv = httptest.NewServer(NewServer(svc, cfg, zerolog.Nop()).Handler())
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, auth string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(data, &out), "body: %s", data)
	}
	return resp, out
}

func basicAuth() string {
	return "Basic " + CredentialToken(testUser, testPassword)
}

func TestAuth_CredentialToken(t *testing.T) {
	env := newTestEnv(t, conf.APIConfig{})

	resp, body := env.do(t, http.MethodPost, "/auth", "", map[string]string{"email": testUser, "password": testPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, CredentialToken(testUser, testPassword), body["token"])
	assert.Equal(t, testUser, body["email"])

	resp, _ = env.do(t, http.MethodGet, "/mailboxes", "Bearer "+body["token"].(string), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_Failures(t *testing.T) {
	env := newTestEnv(t, conf.APIConfig{})

	resp, body := env.do(t, http.MethodPost, "/auth", "", map[string]string{"email": testUser})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Email and password required", body["error"])

	resp, body = env.do(t, http.MethodPost, "/auth", "", map[string]string{"email": testUser, "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid credentials", body["error"])

	// Unknown user looks exactly like a wrong password.
	resp2, body2 := env.do(t, http.MethodPost, "/auth", "", map[string]string{"email": "ghost@example.com", "password": "nope"})
	assert.Equal(t, resp.StatusCode, resp2.StatusCode)
	assert.Equal(t, body["error"], body2["error"])

	for _, auth := range []string{
		"",
		"Basic " + CredentialToken(testUser, "wrong"),
		"Basic not-base64!",
		"Bearer " + CredentialToken("ghost@example.com", testPassword),
		"Token abc",
	} {
		resp, body := env.do(t, http.MethodGet, "/messages", auth, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "auth %q", auth)
		assert.Equal(t, "Unauthorized", body["error"])
	}
}

func TestAuth_JWT(t *testing.T) {
	env := newTestEnv(t, conf.APIConfig{JWTSecret: "test-secret", TokenTTL: 3600})

	resp, body := env.do(t, http.MethodPost, "/auth", "", map[string]string{"email": "Alice@Example.com", "password": testPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := body["token"].(string)
	assert.Equal(t, 2, strings.Count(token, "."))
	assert.NotEmpty(t, body["expiresAt"])

	resp, body = env.do(t, http.MethodGet, "/messages", "Bearer "+token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["total"])

	// Credential bearer tokens still work alongside JWTs.
	resp, _ = env.do(t, http.MethodGet, "/messages", "Bearer "+CredentialToken(testUser, testPassword), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// A tampered token is rejected.
	resp, _ = env.do(t, http.MethodGet, "/messages", "Bearer "+token+"x", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Removing the user revokes outstanding tokens.
	require.NoError(t, env.store.DeleteUser(context.Background(), testUser))
	resp, _ = env.do(t, http.MethodGet, "/messages", "Bearer "+token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTokenIssuer_Expiry(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return now }

	token, expires, err := issuer.Issue(testUser)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), expires)

	sub, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, testUser, sub)

	issuer.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = issuer.Verify(token)
	assert.Error(t, err)

	other := NewTokenIssuer("other-secret", time.Minute)
	other.now = func() time.Time { return now }
	_, err = other.Verify(token)
	assert.Error(t, err)
}

func TestDecodeCredentials(t *testing.T) {
	email, password, ok := decodeCredentials(CredentialToken("a@b.c", "pa:ss"))
	assert.True(t, ok)
	assert.Equal(t, "a@b.c", email)
	assert.Equal(t, "pa:ss", password)

	_, _, ok = decodeCredentials(CredentialToken("a@b.c", ""))
	assert.False(t, ok)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, conf.APIConfig{})

	resp, _ := env.do(t, http.MethodOptions, "/messages", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, _ = env.do(t, http.MethodGet, "/mailboxes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestListMailboxes(t *testing.T) {
	env := newTestEnv(t, conf.APIConfig{})

	resp, body := env.do(t, http.MethodGet, "/mailboxes", basicAuth(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	boxes := body["mailboxes"].([]any)
	require.Len(t, boxes, 4)
	inbox := boxes[0].(map[string]any)
	assert.Equal(t, "INBOX", inbox["name"])
	assert.Equal(t, float64(3), inbox["messages"])
	assert.Equal(t, float64(4), inbox["uidNext"])
}

func TestListMessages(t *testing.T) {
	env := newTestEnv(t, conf.APIConfig{})

	resp, body := env.do(t, http.MethodGet, "/messages?limit=2&preview=true", basicAuth(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	first := msgs[0].(map[string]any)
	assert.Equal(t, "Lunch", first["subject"])
	assert.Equal(t, "body 3", first["preview"])

	resp, body = env.do(t, http.MethodGet, "/messages?limit=abc", basicAuth(), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid limit", body["error"])

	resp, body = env.do(t, http.MethodGet, "/messages?mailbox=Archive", basicAuth(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Mailbox not found", body["error"])
}

func TestGetMessage(t *testing.T) {
	env := newTestEnv(t, conf.APIConfig{})

	resp, body := env.do(t, http.MethodGet, "/messages/m2?format=raw", basicAuth(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["content"], "Subject: Invoice\r\n")
	assert.Equal(t, "m2", body["message"].(map[string]any)["id"])

	resp, body = env.do(t, http.MethodGet, "/messages/m2", basicAuth(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "body 2", body["content"])
	assert.Equal(t, "Invoice", body["headers"].(map[string]any)["subject"])

	resp, _ = env.do(t, http.MethodGet, "/messages/m2?format=html", basicAuth(), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/messages/nope", basicAuth(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Message not found", body["error"])
}

func TestGetMessage_RawRFC822(t *testing.T) {
	env := newTestEnv(t, conf.APIConfig{})
	raw := "From: bob@example.com\r\nTo: " + testUser + "\r\nSubject: Menu\r\n" +
		"Content-Type: text/plain; charset=iso-8859-1\r\nContent-Transfer-Encoding: 8bit\r\n\r\nCaf\xe9\r\n"
	require.NoError(t, env.storage.Store(context.Background(), "incoming/latin1", []byte(raw)))

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/messages/latin1?format=raw", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", basicAuth())
	req.Header.Set("Accept", mail.ContentTypeRFC822)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, mail.ContentTypeRFC822, resp.Header.Get("Content-Type"))
	assert.Equal(t, []byte(raw), data)
}

func TestDeleteMessage(t *testing.T) {
	env := newTestEnv(t, conf.APIConfig{})

	resp, body := env.do(t, http.MethodDelete, "/messages/m1", basicAuth(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	_, body = env.do(t, http.MethodGet, "/messages?mailbox=Trash", basicAuth(), nil)
	assert.Equal(t, float64(1), body["total"])

	resp, _ = env.do(t, http.MethodDelete, "/messages/m2?permanent=true", basicAuth(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, body = env.do(t, http.MethodGet, "/messages", basicAuth(), nil)
	assert.Equal(t, float64(1), body["total"])

	resp, _ = env.do(t, http.MethodDelete, "/messages/m2", basicAuth(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFlags(t *testing.T) {
	env := newTestEnv(t, conf.APIConfig{})

	resp, body := env.do(t, http.MethodPut, "/messages/m1/flags", basicAuth(), map[string]bool{"seen": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["flags"].(map[string]any)["seen"])

	resp, body = env.do(t, http.MethodGet, "/messages/m1/flags", basicAuth(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["seen"])
	assert.Equal(t, false, body["flagged"])

	_, body = env.do(t, http.MethodGet, "/messages", basicAuth(), nil)
	for _, m := range body["messages"].([]any) {
		msg := m.(map[string]any)
		if msg["id"] == "m1" {
			assert.Equal(t, []any{models.FlagSeen}, msg["flags"])
		}
	}
}

func TestSendMessage(t *testing.T) {
	env := newTestEnv(t, conf.APIConfig{})

	resp, body := env.do(t, http.MethodPost, "/messages", basicAuth(), map[string]any{
		"to":      "bob@example.com",
		"cc":      []string{"carol@example.com", "dave@example.com"},
		"subject": "Hi",
		"text":    "hello",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["messageId"])

	sent := env.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, testUser, sent[0].From)
	assert.Equal(t, []string{"bob@example.com"}, sent[0].Message.To)
	assert.Equal(t, []string{"carol@example.com", "dave@example.com"}, sent[0].Message.Cc)

	resp, body = env.do(t, http.MethodPost, "/messages", basicAuth(), map[string]any{"text": "no recipients"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "To and subject required", body["error"])

	resp, _ = env.do(t, http.MethodPost, "/messages", basicAuth(), map[string]any{"to": 42, "subject": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t, conf.APIConfig{})

	resp, body := env.do(t, http.MethodPost, "/search", basicAuth(), map[string]string{"subject": "inv"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])

	resp, body = env.do(t, http.MethodPost, "/search", basicAuth(), map[string]string{"since": "2024-01-02"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["total"])
}

func TestNotFoundAndHealth(t *testing.T) {
	env := newTestEnv(t, conf.APIConfig{})

	resp, body := env.do(t, http.MethodGet, "/nowhere", basicAuth(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Not found", body["error"])

	resp, body = env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, _ = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// panickingService authenticates everyone and panics on listing.
type panickingService struct {
	MailService
}

func (panickingService) Authenticate(context.Context, string, string) bool { return true }

func (panickingService) ListMailboxes(context.Context, string) ([]models.MailboxInfo, error) {
	panic("boom")
}

func TestRecoverPanics(t *testing.T) {
	srv := httptest.NewServer(NewServer(panickingService{}, conf.APIConfig{}, zerolog.Nop()).Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/mailboxes", nil)
	req.Header.Set("Authorization", basicAuth())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Internal server error", body["error"])
}
