package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/toolcrib/gaugetrack/pkg/calibration"
	"github.com/toolcrib/gaugetrack/pkg/gauge"
	"github.com/toolcrib/gaugetrack/pkg/identity"
)

// gaugePayload is the wire form of a gauge to create.
type gaugePayload struct {
	SerialNumber     string          `json:"serialNumber,omitempty"`
	EquipmentType    string          `json:"equipmentType"`
	Category         string          `json:"category"`
	Spec             gauge.Spec      `json:"spec"`
	Role             string          `json:"role"`
	Location         string          `json:"location,omitempty"`
	Sealed           bool            `json:"sealed,omitempty"`
	Ownership        string          `json:"ownership,omitempty"`
	CustomerID       string          `json:"customerId,omitempty"`
	PendingQC        bool            `json:"pendingQc,omitempty"`
}

func (p gaugePayload) toDomain() gauge.NewGaugePayload {
	return gauge.NewGaugePayload{
		SerialNumber:  p.SerialNumber,
		EquipmentType: gauge.EquipmentType(p.EquipmentType),
		Category:      p.Category,
		Spec:          p.Spec,
		Role:          gauge.Role(p.Role),
		Location:      p.Location,
		Sealed:        p.Sealed,
		Ownership:     gauge.Ownership(p.Ownership),
		CustomerID:    p.CustomerID,
		PendingQC:     p.PendingQC,
	}
}

func createSetHandler(sets *gauge.SetService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BaseIdentifier string       `json:"baseIdentifier,omitempty"`
			Go             gaugePayload `json:"go"`
			NoGo           gaugePayload `json:"noGo"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		actor := identity.UserFromContext(r.Context())
		view, err := sets.CreateSet(r.Context(), actor, req.Go.toDomain(), req.NoGo.toDomain(), req.BaseIdentifier)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	}
}

func pairSparesHandler(sets *gauge.SetService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GaugeA   string `json:"gaugeA"`
			GaugeB   string `json:"gaugeB"`
			Location string `json:"location"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.GaugeA == "" || req.GaugeB == "" {
			writeError(w, http.StatusBadRequest, "gaugeA and gaugeB are required")
			return
		}
		actor := identity.UserFromContext(r.Context())
		view, err := sets.PairSpares(r.Context(), actor, req.GaugeA, req.GaugeB, req.Location)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func unpairHandler(sets *gauge.SetService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Reason string `json:"reason,omitempty"`
		}
		// Body is optional.
		_ = decodeOptional(r, &req)
		actor := identity.UserFromContext(r.Context())
		id := chi.URLParam(r, "id")
		if err := sets.UnpairSet(r.Context(), actor, id, req.Reason); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"unpaired": id})
	}
}

func replaceMemberHandler(sets *gauge.SetService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ReplacementID string `json:"replacementId"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		actor := identity.UserFromContext(r.Context())
		view, err := sets.ReplaceMember(r.Context(), actor, chi.URLParam(r, "id"), req.ReplacementID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func getSetHandler(sets *gauge.SetService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := sets.GetSet(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func getGaugeHandler(gauges *gauge.GaugeStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := gauges.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resp := map[string]any{"gauge": rec}
		if rec.CompanionID != nil {
			if companion, err := gauges.Get(*rec.CompanionID); err == nil {
				status := gauge.ResolveSetStatus(rec, companion)
				resp["setStatus"] = status
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listGaugesHandler(gauges *gauge.GaugeStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := gauge.ListFilter{
			Category:   r.URL.Query().Get("category"),
			Status:     gauge.Status(r.URL.Query().Get("status")),
			CustomerID: r.URL.Query().Get("customerId"),
			SparesOnly: r.URL.Query().Get("spares") == "true",
		}
		recs, err := gauges.List(filter)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"gauges": recs, "size": len(recs)})
	}
}

func updateStatusHandler(cascades *gauge.CascadeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status string `json:"status"`
			Reason string `json:"reason,omitempty"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		actor := identity.UserFromContext(r.Context())
		result, err := cascades.UpdateStatus(r.Context(), actor, chi.URLParam(r, "id"), gauge.Status(req.Status), req.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func updateLocationHandler(cascades *gauge.CascadeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Location string `json:"location"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Location == "" {
			writeError(w, http.StatusBadRequest, "location is required")
			return
		}
		actor := identity.UserFromContext(r.Context())
		result, err := cascades.UpdateLocation(r.Context(), actor, chi.URLParam(r, "id"), req.Location)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func checkoutHandler(cascades *gauge.CascadeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := identity.UserFromContext(r.Context())
		result, err := cascades.Checkout(r.Context(), actor, chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func deleteGaugeHandler(cascades *gauge.CascadeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		retire := r.URL.Query().Get("retire") == "true"
		reason := r.URL.Query().Get("reason")
		actor := identity.UserFromContext(r.Context())
		result, err := cascades.DeleteOrRetire(r.Context(), actor, chi.URLParam(r, "id"), retire, reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func returnGaugeHandler(cascades *gauge.CascadeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !identity.RequireRole(r.Context(), identity.RoleCustomerReturns) {
			writeError(w, http.StatusForbidden, "customer returns require the "+identity.RoleCustomerReturns+" role")
			return
		}
		var req struct {
			Both   bool   `json:"both,omitempty"`
			Reason string `json:"reason,omitempty"`
		}
		_ = decodeOptional(r, &req)
		actor := identity.UserFromContext(r.Context())
		result, err := cascades.ReturnCustomerOwned(r.Context(), actor, chi.URLParam(r, "id"), req.Both, req.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func historyHandler(history *gauge.HistoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pageSize := queryInt(r, "pageSize", 20)
		entries, nextToken, err := history.ListByGauge(chi.URLParam(r, "id"), pageSize, r.URL.Query().Get("pageToken"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"entries":       entries,
			"nextPageToken": nextToken,
		})
	}
}

func createBatchHandler(workflow *calibration.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Source    string `json:"source"`
			VendorRef string `json:"vendorRef,omitempty"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		actor := identity.UserFromContext(r.Context())
		batch, err := workflow.CreateBatch(r.Context(), actor, calibration.Source(req.Source), req.VendorRef)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, batch)
	}
}

func addToBatchHandler(workflow *calibration.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GaugeID string `json:"gaugeId"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if err := workflow.AddGauge(r.Context(), chi.URLParam(r, "id"), req.GaugeID); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"added": req.GaugeID})
	}
}

func sendBatchHandler(workflow *calibration.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := identity.UserFromContext(r.Context())
		result, err := workflow.Send(r.Context(), actor, chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func receiveBatchHandler(workflow *calibration.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GaugeIDs []string `json:"gaugeIds"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if len(req.GaugeIDs) == 0 {
			writeError(w, http.StatusBadRequest, "gaugeIds is required")
			return
		}
		actor := identity.UserFromContext(r.Context())
		if err := workflow.Receive(r.Context(), actor, chi.URLParam(r, "id"), req.GaugeIDs); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"received": req.GaugeIDs})
	}
}

func cancelBatchHandler(workflow *calibration.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := identity.UserFromContext(r.Context())
		if err := workflow.CancelBatch(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cancelled": chi.URLParam(r, "id")})
	}
}

func uploadCertificateHandler(workflow *calibration.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			DocumentRef string `json:"documentRef"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.DocumentRef == "" {
			writeError(w, http.StatusBadRequest, "documentRef is required")
			return
		}
		actor := identity.UserFromContext(r.Context())
		rec, err := workflow.UploadCertificate(r.Context(), actor, chi.URLParam(r, "id"), req.DocumentRef)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

func listCertificatesHandler(certs *calibration.CertificateStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := certs.ListByGauge(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"certificates": recs})
	}
}

func releaseHandler(workflow *calibration.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !identity.RequireRole(r.Context(), identity.RoleCalibrationRelease) {
			writeError(w, http.StatusForbidden, "release requires the "+identity.RoleCalibrationRelease+" role")
			return
		}
		var req struct {
			Location string `json:"location,omitempty"`
		}
		_ = decodeOptional(r, &req)
		actor := identity.UserFromContext(r.Context())
		result, err := workflow.VerifyAndRelease(r.Context(), actor, chi.URLParam(r, "id"), req.Location)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
