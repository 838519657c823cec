package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/waitlist-ops/internal/apperrors"
	"gitlab.com/timkado/api/waitlist-ops/internal/model"
	"gitlab.com/timkado/api/waitlist-ops/internal/triage"
	"gitlab.com/timkado/api/waitlist-ops/pkg/logger"
	"gitlab.com/timkado/api/waitlist-ops/pkg/utils"
)

// Error codes returned in ops JSON bodies.
const (
	ErrCodeMissingID = "missing_id"
	ErrCodeNotFound  = "not_found"
	ErrCodeServer    = "server"
)

// OpsHandler serves the operator dashboard routes.
type OpsHandler struct {
	svc WaitlistService
}

// NewOpsHandler creates an OpsHandler.
func NewOpsHandler(svc WaitlistService) *OpsHandler {
	return &OpsHandler{svc: svc}
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type listResponse struct {
	OK       bool            `json:"ok"`
	Total    int             `json:"total"`
	Count    int             `json:"count"`
	Records  []triage.Scored `json:"records"`
	Facets   triage.Facets   `json:"facets"`
	Criteria criteriaEcho    `json:"criteria"`
}

type criteriaEcho struct {
	Query     string `json:"q,omitempty"`
	Intent    string `json:"intent,omitempty"`
	Role      string `json:"role,omitempty"`
	Source    string `json:"source,omitempty"`
	Module    string `json:"module,omitempty"`
	Reviewed  string `json:"reviewed"`
	Contacted string `json:"contacted"`
	MinScore  int    `json:"minScore"`
}

type summaryResponse struct {
	OK      bool           `json:"ok"`
	Summary triage.Summary `json:"summary"`
}

type emailsResponse struct {
	OK     bool   `json:"ok"`
	Count  int    `json:"count"`
	Emails string `json:"emails"`
}

type replyResponse struct {
	OK    bool         `json:"ok"`
	ID    string       `json:"id"`
	Reply triage.Reply `json:"reply"`
}

type reviewRequest struct {
	ID         string `json:"id"`
	Reviewed   bool   `json:"reviewed"`
	ReviewedBy string `json:"reviewedBy"`
	Note       string `json:"note"`
}

type reviewResponse struct {
	OK         bool       `json:"ok"`
	ID         string     `json:"id"`
	ReviewedAt *time.Time `json:"reviewedAt"`
	ReviewedBy string     `json:"reviewedBy,omitempty"`
	ReviewNote string     `json:"reviewNote,omitempty"`
}

type contactedRequest struct {
	ID        string `json:"id"`
	Contacted bool   `json:"contacted"`
}

type contactRequest struct {
	ID string `json:"id"`
}

type contactedResponse struct {
	OK              bool       `json:"ok"`
	ID              string     `json:"id"`
	LastContactedAt *time.Time `json:"lastContactedAt"`
}

type backfillResponse struct {
	OK      bool `json:"ok"`
	Changed int  `json:"changed"`
}

// criteriaFromQuery reads the dashboard filters. Unknown or malformed values do not filter.
func criteriaFromQuery(q url.Values) triage.Criteria {
	minScore, err := strconv.Atoi(strings.TrimSpace(q.Get("minScore")))
	if err != nil || minScore < 0 {
		minScore = 0
	}
	return triage.Criteria{
		Query:     q.Get("q"),
		Intent:    strings.TrimSpace(q.Get("intent")),
		Role:      strings.TrimSpace(q.Get("role")),
		Source:    strings.TrimSpace(q.Get("source")),
		Module:    strings.TrimSpace(q.Get("module")),
		Reviewed:  triage.ParseReviewState(q.Get("reviewed")),
		Contacted: triage.ParseContactState(q.Get("contacted")),
		MinScore:  minScore,
	}
}

// HandleList returns the filtered, score-sorted records plus the filter facets.
func (h *OpsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	c := criteriaFromQuery(r.URL.Query())
	scored := triage.Triage(records, c)
	utils.WriteJSONResponse(w, http.StatusOK, listResponse{
		OK:      true,
		Total:   len(records),
		Count:   len(scored),
		Records: scored,
		Facets:  triage.DistinctValues(records),
		Criteria: criteriaEcho{
			Query:     c.Query,
			Intent:    c.Intent,
			Role:      c.Role,
			Source:    c.Source,
			Module:    c.Module,
			Reviewed:  string(c.Reviewed),
			Contacted: string(c.Contacted),
			MinScore:  c.MinScore,
		},
	})
}

// HandleSummary returns the dashboard overview.
func (h *OpsHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, summaryResponse{OK: true, Summary: triage.Summarize(records)})
}

// HandleEmails exports the filtered emails; mode=bcc prefixes the list for pasting into a mail client.
func (h *OpsHandler) HandleEmails(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	filtered := triage.Records(triage.Triage(records, criteriaFromQuery(q)))
	bcc := strings.EqualFold(strings.TrimSpace(q.Get("mode")), "bcc")
	utils.WriteJSONResponse(w, http.StatusOK, emailsResponse{
		OK:     true,
		Count:  len(filtered),
		Emails: triage.ExportEmails(filtered, bcc),
	})
}

// HandleReply drafts a reply email for one record.
func (h *OpsHandler) HandleReply(w http.ResponseWriter, r *http.Request) {
	id := model.Clean(chi.URLParam(r, "id"), model.MaxOpsIDLen)
	if id == "" {
		h.writeError(w, r, apperrors.ErrValidation)
		return
	}

	records, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	for _, rec := range records {
		if rec.ID == id {
			utils.WriteJSONResponse(w, http.StatusOK, replyResponse{OK: true, ID: id, Reply: triage.ReplyDraft(rec)})
			return
		}
	}
	h.writeError(w, r, apperrors.ErrNotFound)
}

// HandleReview marks a record reviewed or clears the mark.
func (h *OpsHandler) HandleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	h.decodeLenient(r, &req)

	rec, err := h.svc.SetReviewed(r.Context(), req.ID, req.Reviewed, req.ReviewedBy, req.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, reviewResponse{
		OK:         true,
		ID:         rec.ID,
		ReviewedAt: rec.ReviewedAt,
		ReviewedBy: rec.ReviewedBy,
		ReviewNote: rec.ReviewNote,
	})
}

// HandleContacted sets or clears lastContactedAt.
func (h *OpsHandler) HandleContacted(w http.ResponseWriter, r *http.Request) {
	var req contactedRequest
	h.decodeLenient(r, &req)

	rec, err := h.svc.SetContacted(r.Context(), req.ID, req.Contacted)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, contactedResponse{OK: true, ID: rec.ID, LastContactedAt: rec.LastContactedAt})
}

// HandleContact stamps lastContactedAt with the current time.
func (h *OpsHandler) HandleContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	h.decodeLenient(r, &req)

	rec, err := h.svc.RecordContact(r.Context(), req.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, contactedResponse{OK: true, ID: rec.ID, LastContactedAt: rec.LastContactedAt})
}

// HandleBackfill assigns ids to records that lack one.
func (h *OpsHandler) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	changed, err := h.svc.BackfillIDs(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, backfillResponse{OK: true, Changed: changed})
}

// decodeLenient decodes what it can; a malformed body ends up as a missing id.
func (h *OpsHandler) decodeLenient(r *http.Request, v interface{}) {
	if err := utils.DecodeJSONBody(r, v); err != nil {
		logger.FromContext(r.Context()).Debug("Ignoring malformed ops request body", zap.Error(err))
	}
}

func (h *OpsHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case apperrors.IsValidationError(err):
		utils.WriteJSONResponse(w, http.StatusBadRequest, errorResponse{Error: ErrCodeMissingID})
	case apperrors.IsNotFoundError(err):
		utils.WriteJSONResponse(w, http.StatusNotFound, errorResponse{Error: ErrCodeNotFound})
	default:
		logger.FromContext(r.Context()).Error("Ops request failed", zap.String("path", r.URL.Path), zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, errorResponse{Error: ErrCodeServer})
	}
}
