// Package api exposes the gauge engine's operations over HTTP. Routing
// stays thin: handlers decode, call the services and translate typed
// domain errors onto statuses.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/toolcrib/gaugetrack/pkg/calibration"
	"github.com/toolcrib/gaugetrack/pkg/gauge"
	"github.com/toolcrib/gaugetrack/pkg/identity"
)

// Deps collects the services the API routes over.
type Deps struct {
	Gauges   *gauge.GaugeStore
	Sets     *gauge.SetService
	Cascades *gauge.CascadeService
	History  *gauge.HistoryStore
	Workflow *calibration.WorkflowService
	Certs    *calibration.CertificateStore
}

// NewRouter creates the chi router for the gauge API.
func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Remote-User", "X-Remote-Group"},
	}))
	r.Use(identity.Middleware())

	r.Route("/sets", func(r chi.Router) {
		r.Post("/", createSetHandler(deps.Sets))
		r.Post("/pair", pairSparesHandler(deps.Sets))
		r.Get("/{id}", getSetHandler(deps.Sets))
		r.Post("/{id}/unpair", unpairHandler(deps.Sets))
		r.Post("/{id}/replace", replaceMemberHandler(deps.Sets))
	})

	r.Route("/gauges", func(r chi.Router) {
		r.Get("/", listGaugesHandler(deps.Gauges))
		r.Get("/{id}", getGaugeHandler(deps.Gauges))
		r.Post("/{id}/status", updateStatusHandler(deps.Cascades))
		r.Post("/{id}/location", updateLocationHandler(deps.Cascades))
		r.Post("/{id}/checkout", checkoutHandler(deps.Cascades))
		r.Delete("/{id}", deleteGaugeHandler(deps.Cascades))
		r.Post("/{id}/return", returnGaugeHandler(deps.Cascades))
		r.Get("/{id}/history", historyHandler(deps.History))
		r.Post("/{id}/certificates", uploadCertificateHandler(deps.Workflow))
		r.Get("/{id}/certificates", listCertificatesHandler(deps.Certs))
		r.Post("/{id}/release", releaseHandler(deps.Workflow))
	})

	r.Route("/batches", func(r chi.Router) {
		r.Post("/", createBatchHandler(deps.Workflow))
		r.Post("/{id}/members", addToBatchHandler(deps.Workflow))
		r.Post("/{id}/send", sendBatchHandler(deps.Workflow))
		r.Post("/{id}/receive", receiveBatchHandler(deps.Workflow))
		r.Post("/{id}/cancel", cancelBatchHandler(deps.Workflow))
	})

	return r
}
