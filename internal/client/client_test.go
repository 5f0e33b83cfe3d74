package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailgate/internal/api"
	"mailgate/internal/blobstorage"
	"mailgate/internal/conf"
	"mailgate/internal/db"
	"mailgate/internal/mail"
	"mailgate/internal/models"
	"mailgate/internal/outbound"
)

const (
	user     = "alice@example.com"
	password = "secret"

	latin1Message = "From: dave@example.com\r\nTo: alice@example.com\r\nSubject: Menu\r\n" +
		"Date: Wed, 03 Jan 2024 10:00:00 +0000\r\n" +
		"Content-Type: text/plain; charset=iso-8859-1\r\nContent-Transfer-Encoding: 8bit\r\n\r\nCaf\xe9\r\n"
)

// newAPI serves two INBOX messages plus any extra objects keyed by storage
// key.
func newAPI(t *testing.T, extra ...map[string]string) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	storage := blobstorage.NewMemoryBlobStorage()
	store := db.NewMemoryStore()
	require.NoError(t, store.PutUser(ctx, db.User{Email: user, PasswordHash: mail.SHA256Hex(password)}))
	require.NoError(t, storage.Store(ctx, "incoming/one", []byte("From: bob@example.com\r\nTo: alice@example.com\r\nSubject: One\r\nDate: Mon, 01 Jan 2024 10:00:00 +0000\r\n\r\nfirst body")))
	require.NoError(t, storage.Store(ctx, "incoming/two", []byte("From: carol@example.com\r\nTo: alice@example.com\r\nSubject: Two\r\nDate: Tue, 02 Jan 2024 10:00:00 +0000\r\n\r\nsecond body")))
	for _, objects := range extra {
		for key, raw := range objects {
			require.NoError(t, storage.Store(ctx, key, []byte(raw)))
		}
	}

	svc := mail.NewService(storage, store, outbound.NewMemorySender(), mail.Options{Logger: zerolog.Nop()})
	srv := httptest.NewServer(api.NewServer(svc, conf.APIConfig{JWTSecret: "k", TokenTTL: 60}, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_RoundTrip(t *testing.T) {
	srv := newAPI(t)
	c := New(srv.URL+"/", nil)
	ctx := context.Background()

	token, err := c.Authenticate(ctx, user, password)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	msgs, err := c.ListMessages(ctx, token, "INBOX")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Two", msgs[0].Subject)
	assert.Equal(t, "second body", msgs[0].Preview)

	raw, err := c.GetRawMessage(ctx, token, "INBOX", "one")
	require.NoError(t, err)
	assert.Contains(t, raw, "\r\n\r\nfirst body")

	seen := true
	flags, err := c.SetFlags(ctx, token, "one", models.FlagUpdate{Seen: &seen})
	require.NoError(t, err)
	assert.True(t, flags.Seen)

	msgs, err = c.ListMessages(ctx, token, "INBOX")
	require.NoError(t, err)
	for _, m := range msgs {
		assert.Equal(t, m.ID == "one", m.HasFlag(models.FlagSeen), "message %s", m.ID)
	}

	found, err := c.Search(ctx, token, mail.SearchQuery{From: "carol"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "two", found[0].ID)
}

func TestClient_RawMessageKeeps8BitBytes(t *testing.T) {
	srv := newAPI(t, map[string]string{"incoming/latin1": latin1Message})
	c := New(srv.URL, nil)
	ctx := context.Background()

	token, err := c.Authenticate(ctx, user, password)
	require.NoError(t, err)

	raw, err := c.GetRawMessage(ctx, token, "INBOX", "latin1")
	require.NoError(t, err)
	assert.Equal(t, latin1Message, raw)
}

func TestClient_Errors(t *testing.T) {
	srv := newAPI(t)
	c := New(srv.URL, nil)
	ctx := context.Background()

	_, err := c.Authenticate(ctx, user, "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = c.ListMessages(ctx, "garbage", "INBOX")
	assert.ErrorIs(t, err, ErrUnauthorized)

	token, err := c.Authenticate(ctx, user, password)
	require.NoError(t, err)
	_, err = c.GetRawMessage(ctx, token, "INBOX", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"Mail storage unavailable"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil).ListMessages(context.Background(), "t", "INBOX")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "Mail storage unavailable")
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(srv.URL, nil).ListMessages(ctx, "t", "INBOX")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, nil).Authenticate(context.Background(), user, password)
	assert.ErrorIs(t, err, ErrUnavailable)
}
