package api

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/waitlist-ops/internal/apperrors"
	"gitlab.com/timkado/api/waitlist-ops/internal/model"
	"gitlab.com/timkado/api/waitlist-ops/pkg/logger"
)

// DefaultReturnTo is where the form lands when returnTo is missing or not a local path.
const DefaultReturnTo = "/coming-soon"

// maxFormBytes bounds the public form body.
const maxFormBytes = 32 << 10

// IntakeHandler serves the public waitlist form post.
type IntakeHandler struct {
	svc             WaitlistService
	defaultReturnTo string
}

// NewIntakeHandler creates an IntakeHandler.
func NewIntakeHandler(svc WaitlistService, defaultReturnTo string) *IntakeHandler {
	if defaultReturnTo == "" {
		defaultReturnTo = DefaultReturnTo
	}
	return &IntakeHandler{svc: svc, defaultReturnTo: defaultReturnTo}
}

// Handle accepts a urlencoded or multipart form post and always answers with
// a 303 redirect.
func (h *IntakeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)

	if err := r.ParseMultipartForm(maxFormBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		log.Warn("Failed to parse waitlist form", zap.Error(err))
		h.redirect(w, r, h.defaultReturnTo, "error=server")
		return
	}

	returnTo := SafeReturnTo(model.Clean(r.PostFormValue("returnTo"), model.MaxReturnToLen), h.defaultReturnTo)
	sub := model.Submission{
		Email:    r.PostFormValue("email"),
		Source:   r.PostFormValue("source"),
		Intent:   r.PostFormValue("intent"),
		FullName: r.PostFormValue("fullName"),
		Company:  r.PostFormValue("company"),
		Role:     r.PostFormValue("role"),
		Location: r.PostFormValue("location"),
		Module:   r.PostFormValue("module"),
		Volume:   r.PostFormValue("volume"),
		Notes:    r.PostFormValue("notes"),
		Honeypot: r.PostFormValue("company_website"),
	}
	meta := model.RequestMeta{
		UserAgent: r.UserAgent(),
		IP:        ClientIP(r),
	}

	bot := strings.TrimSpace(sub.Honeypot) != ""

	_, err := h.svc.Submit(r.Context(), sub, meta)
	switch {
	case err == nil && bot:
		h.redirect(w, r, h.defaultReturnTo, "ok=1")
	case err == nil:
		h.redirect(w, r, returnTo, "ok=1")
	case apperrors.IsValidationError(err):
		h.redirect(w, r, returnTo, "error=invalid")
	default:
		h.redirect(w, r, h.defaultReturnTo, "error=server")
	}
}

func (h *IntakeHandler) redirect(w http.ResponseWriter, r *http.Request, path, query string) {
	http.Redirect(w, r, path+"?"+query, http.StatusSeeOther)
}

// SafeReturnTo keeps returnTo only when it is a local path; protocol-relative
// and absolute URLs fall back to def.
func SafeReturnTo(returnTo, def string) string {
	v := strings.TrimSpace(returnTo)
	if v == "" || !strings.HasPrefix(v, "/") || strings.HasPrefix(v, "//") {
		return def
	}
	return v
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
