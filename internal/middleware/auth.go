package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	apperrors "studyroom/internal/errors"
	"studyroom/internal/httputil"
	"studyroom/internal/privacy"
	"studyroom/internal/service"
	"studyroom/internal/tracing"

	"github.com/sirupsen/logrus"
)

// TokenSet maps bearer tokens to user ids and can be swapped at runtime.
type TokenSet struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewTokenSet(tokens map[string]string) *TokenSet {
	ts := &TokenSet{}
	ts.Replace(tokens)
	return ts
}

// Replace swaps in a copy of tokens.
func (ts *TokenSet) Replace(tokens map[string]string) {
	copied := make(map[string]string, len(tokens))
	for token, userID := range tokens {
		copied[token] = userID
	}
	ts.mu.Lock()
	ts.tokens = copied
	ts.mu.Unlock()
}

// Lookup compares against every configured token in constant time.
func (ts *TokenSet) Lookup(candidate string) (string, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	var (
		userID string
		found  bool
	)
	for token, user := range ts.tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(candidate)) == 1 {
			userID, found = user, true
		}
	}
	return userID, found && userID != ""
}

// Len reports how many tokens are configured.
func (ts *TokenSet) Len() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.tokens)
}

// BearerAuth resolves "Authorization: Bearer <token>" against tokens and
// stores the user id on the request context.
func BearerAuth(tokens *TokenSet, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httputil.WriteError(w, r, apperrors.NewAuthError("missing bearer token"))
				return
			}

			userID, ok := tokens.Lookup(token)
			if !ok {
				logger.WithFields(logrus.Fields{
					service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
					service.LogFieldRemoteIP:  httputil.GetClientIP(r),
					"token":                   privacy.MaskToken(token),
				}).Warn("Rejected unknown bearer token")
				httputil.WriteError(w, r, apperrors.NewAuthError("unknown bearer token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(tracing.WithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
