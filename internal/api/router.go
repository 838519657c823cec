package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"gitlab.com/timkado/api/waitlist-ops/internal/model"
	"gitlab.com/timkado/api/waitlist-ops/internal/usecase"
)

// WaitlistService is the use-case surface the HTTP handlers call into.
type WaitlistService interface {
	Submit(ctx context.Context, sub model.Submission, meta model.RequestMeta) (usecase.IntakeResult, error)
	List(ctx context.Context) ([]model.WaitlistRecord, error)
	SetReviewed(ctx context.Context, id string, reviewed bool, reviewer, note string) (model.WaitlistRecord, error)
	SetContacted(ctx context.Context, id string, contacted bool) (model.WaitlistRecord, error)
	RecordContact(ctx context.Context, id string) (model.WaitlistRecord, error)
	BackfillIDs(ctx context.Context) (int, error)
}

// Options configures the router.
type Options struct {
	AllowedOrigins  []string
	DefaultReturnTo string
	OpsUser         string
	OpsPass         string
	OpsRealm        string
}

// NewRouter builds the public intake route and the basic-auth guarded ops routes.
func NewRouter(svc WaitlistService, opts Options) http.Handler {
	if opts.OpsRealm == "" {
		opts.OpsRealm = DefaultRealm
	}

	intake := NewIntakeHandler(svc, opts.DefaultReturnTo)
	ops := NewOpsHandler(svc)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestContext)
	r.Use(instrument)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Post("/api/waitlist", intake.Handle)

	r.Route("/api/ops", func(r chi.Router) {
		r.Use(opsAuth(opts.OpsUser, opts.OpsPass, opts.OpsRealm))

		r.Get("/waitlist", ops.HandleList)
		r.Get("/waitlist/summary", ops.HandleSummary)
		r.Get("/waitlist/emails", ops.HandleEmails)
		r.Get("/waitlist/{id}/reply", ops.HandleReply)
		r.Post("/waitlist/review", ops.HandleReview)
		r.Post("/waitlist/contacted", ops.HandleContacted)
		r.Post("/waitlist/contact", ops.HandleContact)
		r.Post("/waitlist/backfill-ids", ops.HandleBackfill)
	})

	return r
}
