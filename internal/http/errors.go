package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	domainauth "github.com/fundwell/fundwell-web/internal/domain/auth"
	apperrors "github.com/fundwell/fundwell-web/internal/errors"
)

// writeAuthError translates an auth-path error into its HTTP answer. Internal
// errors are logged and reported without detail.
func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		// Client went away; nobody is listening for the answer.
		logger.DebugContext(r.Context(), "request canceled", "path", r.URL.Path)
		return
	}

	appErr := apperrors.FromFailure(err)
	status := appErr.HTTPStatus()

	switch appErr.Code {
	case apperrors.ErrCodeInternal:
		logger.ErrorContext(r.Context(), "unexpected error", "path", r.URL.Path, "error", err)
	case apperrors.ErrCodeUpstream:
		logger.WarnContext(r.Context(), "backend failure", "path", r.URL.Path, "status", status, "error", err)
	default:
		logger.InfoContext(r.Context(), "auth request rejected",
			"path", r.URL.Path,
			"kind", string(domainauth.KindOf(err)),
			"status", status)
	}

	WriteError(w, ErrorParams{
		Code:    status,
		ErrCode: string(appErr.Code),
		Err:     errors.New(appErr.Message),
		Fields:  appErr.Fields,
	})
}

// writeValidation answers 400 with field-level messages.
func writeValidation(w http.ResponseWriter, fields map[string]string) {
	WriteError(w, ErrorParams{
		Code:    http.StatusBadRequest,
		ErrCode: string(apperrors.ErrCodeValidation),
		Err:     errors.New("request validation failed"),
		Fields:  fields,
	})
}
