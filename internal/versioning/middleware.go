package versioning

import (
	"context"
	"fmt"
	"net/http"

	apperrors "studyroom/internal/errors"
	"studyroom/internal/httputil"

	"github.com/sirupsen/logrus"
)

type contextKey string

const VersionContextKey contextKey = "api_version"

const (
	// AcceptVersionHeader carries the API version a client was built against.
	AcceptVersionHeader = "Accept-Version"
	// CurrentVersionHeader carries the API version the server speaks.
	CurrentVersionHeader = "X-API-Version"
)

// VersionMiddleware rejects clients built against an API this server cannot
// serve. Requests without the header are treated as current.
type VersionMiddleware struct {
	logger *logrus.Logger
}

func NewVersionMiddleware(logger *logrus.Logger) *VersionMiddleware {
	return &VersionMiddleware{logger: logger}
}

func (vm *VersionMiddleware) VersionHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(CurrentVersionHeader, CurrentVersion.String())

		requested := CurrentVersion
		if raw := r.Header.Get(AcceptVersionHeader); raw != "" {
			parsed, err := ParseVersion(raw)
			if err != nil {
				httputil.WriteError(w, r, apperrors.NewValidationError("Accept-Version", raw, "invalid API version"))
				return
			}
			requested = parsed
		}

		compat := CheckCompatibility(requested)
		if !compat.Compatible {
			vm.logger.WithFields(logrus.Fields{
				"requested_version": requested.String(),
				"current_version":   CurrentVersion.String(),
				"path":              r.URL.Path,
			}).Warn("Incompatible API version requested")

			status := http.StatusNotImplemented
			if compat.TooOld {
				status = http.StatusUpgradeRequired
			}
			err := apperrors.New(apperrors.ErrCodeInvalidInput, fmt.Sprintf("API version %s not supported", requested)).
				WithUserMessage(fmt.Sprintf("This server speaks API %s; please update your client", CurrentVersion))
			_ = httputil.WriteJSON(w, status, apperrors.ToHTTPResponse(err, ""))
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), VersionContextKey, requested)))
	})
}

// GetVersionFromContext returns the API version negotiated for the request.
func GetVersionFromContext(ctx context.Context) (APIVersion, bool) {
	version, ok := ctx.Value(VersionContextKey).(APIVersion)
	return version, ok
}
