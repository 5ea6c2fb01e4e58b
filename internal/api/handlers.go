package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"roost/internal/apperr"
	"roost/internal/fleet"
	"roost/internal/logs"
	"roost/internal/models"
	"roost/internal/pane"
	"roost/internal/power"
	"roost/internal/wingman"
)

// Handler — HTTP-обёртка над доменными сервисами. DTO явные; никакой
// рефлексии и projection по произвольным полям.
type Handler struct {
	fleet    *fleet.Service
	wingman  *wingman.Manager
	pane     *pane.Allocator
	detector *power.Detector
}

func NewHandler(f *fleet.Service, w *wingman.Manager, p *pane.Allocator, d *power.Detector) *Handler {
	return &Handler{fleet: f, wingman: w, pane: p, detector: d}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if apperr.IsKind(err, apperr.KindInvariant) {
		// Нарушение инварианта — баг, не рабочее состояние.
		logs.Logger.Errorf("invariant violation: %v", err)
	}
	models.WriteError(w, err)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		models.WriteError(w, apperr.Validation("bad request body: %v", err))
		return false
	}
	return true
}

/* ───── devices ───── */

// POST /api/v1/devices/register
func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var in fleet.RegisterInput
	if !decode(w, r, &in) {
		return
	}
	id, err := h.fleet.RegisterOrUpdate(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, map[string]any{"device_id": id})
}

// GET /api/v1/devices/{label}
func (h *Handler) GetDevice(w http.ResponseWriter, r *http.Request) {
	view, err := h.fleet.Get(r.Context(), mux.Vars(r)["label"])
	if err != nil {
		h.fail(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, view)
}

// POST /api/v1/devices/{label}/release?force=1&unbind_resource=1
func (h *Handler) ReleaseDevice(w http.ResponseWriter, r *http.Request) {
	opts := fleet.ReleaseOptions{
		Force:          boolParam(r, "force"),
		UnbindResource: boolParam(r, "unbind_resource"),
	}
	if err := h.fleet.Release(r.Context(), mux.Vars(r)["label"], opts); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/devices/{label}/logout?unbind_resource=1
func (h *Handler) LogoutDevice(w http.ResponseWriter, r *http.Request) {
	if err := h.fleet.Logout(r.Context(), mux.Vars(r)["label"], boolParam(r, "unbind_resource")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/devices/{label}/status
func (h *Handler) SetDeviceStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status string `json:"status"`
	}
	if !decode(w, r, &in) {
		return
	}
	if err := h.fleet.SetStatus(r.Context(), mux.Vars(r)["label"], in.Status); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/* ───── subsidiaries ───── */

// POST /api/v1/subsidiaries
func (h *Handler) RegisterSubsidiary(w http.ResponseWriter, r *http.Request) {
	var in struct {
		SerialNumber string `json:"serial_number"`
	}
	if !decode(w, r, &in) {
		return
	}
	sub, err := h.wingman.Register(r.Context(), in.SerialNumber)
	if err != nil {
		h.fail(w, err)
		return
	}
	models.WriteJSON(w, http.StatusCreated, sub)
}

// POST /api/v1/subsidiaries/{serial}/bind
func (h *Handler) BindSubsidiary(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DeviceLabel string `json:"device_label"`
		Order       string `json:"order"`
	}
	if !decode(w, r, &in) {
		return
	}
	if err := h.wingman.Bind(r.Context(), mux.Vars(r)["serial"], in.DeviceLabel, in.Order); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/subsidiaries/{serial}/unbind
func (h *Handler) UnbindSubsidiary(w http.ResponseWriter, r *http.Request) {
	if err := h.wingman.Unbind(r.Context(), mux.Vars(r)["serial"]); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/subsidiaries/{serial}/cancel
func (h *Handler) CancelSubsidiary(w http.ResponseWriter, r *http.Request) {
	if err := h.wingman.Cancel(r.Context(), mux.Vars(r)["serial"]); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/* ───── pane views ───── */

// POST /api/v1/paneviews
func (h *Handler) CreatePaneView(w http.ResponseWriter, r *http.Request) {
	var in pane.CreateInput
	if !decode(w, r, &in) {
		return
	}
	view, err := h.pane.Create(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	models.WriteJSON(w, http.StatusCreated, view)
}

// DELETE /api/v1/paneviews/{id}
func (h *Handler) RemovePaneView(w http.ResponseWriter, r *http.Request) {
	id, err := uintVar(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.pane.Remove(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/paneviews/{id}/link — first-fit по виду
func (h *Handler) LinkPaneView(w http.ResponseWriter, r *http.Request) {
	id, err := uintVar(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var in struct {
		DeviceLabel string `json:"device_label"`
	}
	if !decode(w, r, &in) {
		return
	}
	slot, err := h.pane.LinkToView(r.Context(), id, in.DeviceLabel)
	if err != nil {
		h.fail(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, slot)
}

// POST /api/v1/paneslots/{id}/link — конкретный слот
func (h *Handler) LinkPaneSlot(w http.ResponseWriter, r *http.Request) {
	id, err := uintVar(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var in struct {
		DeviceLabel string `json:"device_label"`
	}
	if !decode(w, r, &in) {
		return
	}
	if err := h.pane.LinkToSlot(r.Context(), id, in.DeviceLabel); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/devices/{label}/pane/unlink
func (h *Handler) UnlinkPane(w http.ResponseWriter, r *http.Request) {
	if err := h.pane.Unlink(r.Context(), mux.Vars(r)["label"]); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/* ───── telemetry ───── */

// POST /api/v1/telemetry/power
func (h *Handler) IngestPower(w http.ResponseWriter, r *http.Request) {
	var in power.Reading
	if !decode(w, r, &in) {
		return
	}
	if err := h.detector.Ingest(r.Context(), in); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

/* ───── helpers ───── */

func boolParam(r *http.Request, name string) bool {
	switch r.URL.Query().Get(name) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func uintVar(r *http.Request, name string) (uint, error) {
	n, err := strconv.ParseUint(mux.Vars(r)[name], 10, 32)
	if err != nil {
		return 0, apperr.Validation("bad %s: %v", name, err)
	}
	return uint(n), nil
}
