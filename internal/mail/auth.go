package mail

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"mailgate/internal/metrics"
)

// Authenticate checks email and password against the user store. A missing
// user and a failed lookup are both reported as false.
func (s *Service) Authenticate(ctx context.Context, email, password string) bool {
	start := time.Now()
	user, err := s.store.GetUser(ctx, email)
	metrics.ObserveBackend("get_user", err, start)
	if err != nil {
		s.logger.Debug().Err(err).Str("user", email).Msg("authentication lookup failed")
		return false
	}
	return VerifyPassword(user.PasswordHash, password)
}

// VerifyPassword compares password with a stored hash. Bcrypt hashes
// ("$2a$", "$2b$", ...) and hex encoded SHA-256 digests are accepted.
func VerifyPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(hash)), []byte(SHA256Hex(password))) == 1
}

// HashPassword returns a bcrypt hash for storing a new password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// SHA256Hex is the legacy hash format of existing user records.
func SHA256Hex(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// UserExists reports whether a user record exists for email.
func (s *Service) UserExists(ctx context.Context, email string) bool {
	start := time.Now()
	_, err := s.store.GetUser(ctx, email)
	metrics.ObserveBackend("get_user", err, start)
	return err == nil
}
