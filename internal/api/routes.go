package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterRoutes вешает все маршруты жизненного цикла на /api/v1.
func RegisterRoutes(root *mux.Router, h *Handler) {
	sub := root.PathPrefix("/api/v1").Subrouter()

	sub.HandleFunc("/devices/register", h.RegisterDevice).Methods(http.MethodPost)
	sub.HandleFunc("/devices/{label}", h.GetDevice).Methods(http.MethodGet)
	sub.HandleFunc("/devices/{label}/release", h.ReleaseDevice).Methods(http.MethodPost)
	sub.HandleFunc("/devices/{label}/logout", h.LogoutDevice).Methods(http.MethodPost)
	sub.HandleFunc("/devices/{label}/status", h.SetDeviceStatus).Methods(http.MethodPost)
	sub.HandleFunc("/devices/{label}/pane/unlink", h.UnlinkPane).Methods(http.MethodPost)

	sub.HandleFunc("/subsidiaries", h.RegisterSubsidiary).Methods(http.MethodPost)
	sub.HandleFunc("/subsidiaries/{serial}/bind", h.BindSubsidiary).Methods(http.MethodPost)
	sub.HandleFunc("/subsidiaries/{serial}/unbind", h.UnbindSubsidiary).Methods(http.MethodPost)
	sub.HandleFunc("/subsidiaries/{serial}/cancel", h.CancelSubsidiary).Methods(http.MethodPost)

	sub.HandleFunc("/paneviews", h.CreatePaneView).Methods(http.MethodPost)
	sub.HandleFunc("/paneviews/{id:[0-9]+}", h.RemovePaneView).Methods(http.MethodDelete)
	sub.HandleFunc("/paneviews/{id:[0-9]+}/link", h.LinkPaneView).Methods(http.MethodPost)
	sub.HandleFunc("/paneslots/{id:[0-9]+}/link", h.LinkPaneSlot).Methods(http.MethodPost)

	sub.HandleFunc("/telemetry/power", h.IngestPower).Methods(http.MethodPost)
}
