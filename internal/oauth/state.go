package oauth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"

	"github.com/mindusforge/mindus-web/internal/session"
)

const stateBytes = 32 // 256 bits of entropy

// IssueState generates a fresh anti-forgery token and stores it in the
// session, overwriting any previous one. The caller must persist the
// session before redirecting.
func IssueState(s *session.Session) (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := base64.RawURLEncoding.EncodeToString(b)
	s.Data.OAuthState = state
	return state, nil
}

// ValidateState pops the stored token and compares it with the presented
// one. The pop happens before the comparison, so a token is consumed on
// first use no matter the outcome; replays always fail. The caller must
// persist the session afterwards to make the consumption stick.
func ValidateState(s *session.Session, presented string) bool {
	stored := s.Data.OAuthState
	s.Data.OAuthState = ""

	if stored == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
