package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/fundwell/fundwell-web/internal/http/validation"
	"github.com/fundwell/fundwell-web/internal/ports"
)

const minPasswordLength = 8

var otpPattern = regexp.MustCompile(`^[0-9]{4,8}$`)

// ProxyHandlers relay account and waitlist requests to the backend after
// local validation. Backend answers are passed through with their status.
type ProxyHandlers struct {
	Svc    AuthServiceInterface
	Logger *slog.Logger
}

func (h *ProxyHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account.
// POST /api/auth/register.
func (h *ProxyHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	fields := validation.New().
		Validate("name", req.Name, validation.Required("Name", 100)).
		Validate("email", req.Email, validation.Required("Email", 254), validation.Email("Email")).
		Validate("password", req.Password, validation.Present("Password"), validation.MinLength("Password", minPasswordLength)).
		Errors()
	if len(fields) > 0 {
		writeValidation(w, fields)
		return
	}
	h.relay(w, r, relayParams{Path: "/auth/register", Payload: req, SuccessStatus: http.StatusCreated})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword requests a password reset email.
// POST /api/auth/forgot-password.
func (h *ProxyHandlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	fields := validation.New().
		Validate("email", req.Email, validation.Required("Email", 254), validation.Email("Email")).
		Errors()
	if len(fields) > 0 {
		writeValidation(w, fields)
		return
	}
	h.relay(w, r, relayParams{Path: "/auth/forgot-password", Payload: req})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword sets a new password with a reset token.
// POST /api/auth/reset-password.
func (h *ProxyHandlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	fields := validation.New().
		Validate("token", req.Token, validation.Required("Token", 2048)).
		Validate("newPassword", req.NewPassword, validation.Present("New password"), validation.MinLength("New password", minPasswordLength)).
		Errors()
	if len(fields) > 0 {
		writeValidation(w, fields)
		return
	}
	h.relay(w, r, relayParams{Path: "/auth/reset-password", Payload: req})
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// VerifyOTP confirms an email address with a one-time code.
// POST /api/auth/verify-otp.
func (h *ProxyHandlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.OTP = strings.TrimSpace(req.OTP)
	fields := validation.New().
		Validate("email", req.Email, validation.Required("Email", 254), validation.Email("Email")).
		Validate("otp", req.OTP, validation.Required("OTP", 8), validation.Pattern("OTP", otpPattern)).
		Errors()
	if len(fields) > 0 {
		writeValidation(w, fields)
		return
	}
	h.relay(w, r, relayParams{Path: "/auth/verify-otp", Payload: req})
}

// WaitlistSubscribe forwards an arbitrary JSON body with the caller's User-Agent.
// POST /api/waitlist/subscribe.
func (h *ProxyHandlers) WaitlistSubscribe(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusRequestEntityTooLarge, ErrCode: "body_too_large", Err: err})
		return
	}
	if !json.Valid(body) {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: errors.New("request body must be valid JSON")})
		return
	}
	h.relay(w, r, relayParams{Path: "/waitlist/subscribe", Raw: body})
}

// relayParams groups the inputs of relay (≤3 params rule).
type relayParams struct {
	Path    string
	Payload any
	// Raw is sent verbatim when set; Payload is ignored.
	Raw []byte
	// SuccessStatus overrides the backend's 2xx status when non-zero.
	SuccessStatus int
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// relay forwards one request. A 2xx answer is returned verbatim; any other
// status is passed through with the backend's message. Local failures answer 500.
func (h *ProxyHandlers) relay(w http.ResponseWriter, r *http.Request, p relayParams) {
	body := p.Raw
	if body == nil {
		var err error
		if body, err = json.Marshal(p.Payload); err != nil {
			h.fail(w, r, p.Path, err)
			return
		}
	}

	header := http.Header{}
	if ua := r.UserAgent(); ua != "" {
		header.Set("User-Agent", ua)
	}
	if id := RequestIDFromContext(r.Context()); id != "" {
		header.Set("X-Request-Id", id)
	}

	res, err := h.Svc.Forward(r.Context(), ports.ForwardRequest{
		Method: http.MethodPost,
		Path:   p.Path,
		Body:   body,
		Header: header,
	})
	if err != nil {
		h.fail(w, r, p.Path, err)
		return
	}

	if !res.OK() {
		h.logger().InfoContext(r.Context(), "backend rejected request",
			"path", p.Path, "status", res.Status, "message", res.Message)
		WriteJSON(w, res.Status, messageResponse{Message: res.Message})
		return
	}

	status := res.Status
	if p.SuccessStatus != 0 {
		status = p.SuccessStatus
	}
	WriteRawJSON(w, status, res.Body)
}

func (h *ProxyHandlers) fail(w http.ResponseWriter, r *http.Request, path string, err error) {
	h.logger().ErrorContext(r.Context(), "relay failed", "path", path, "error", err)
	WriteJSON(w, http.StatusInternalServerError, messageResponse{Message: "Something went wrong. Please try again later."})
}
