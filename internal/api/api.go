// Package api exposes a read-only inspection surface over the control
// plane state: the VLAN map, network records, lease tables, and public
// addresses. The management API proper lives elsewhere.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/openvern/netplane/internal/network"
	"github.com/openvern/netplane/internal/repository"
)

// API holds the manager dependency for the inspection handlers.
type API struct {
	manager *network.Manager
	log     *logrus.Entry
}

// NewAPI creates the inspection API over a manager.
func NewAPI(manager *network.Manager) *API {
	return &API{
		manager: manager,
		log:     logrus.WithField("component", "api"),
	}
}

// RegisterRoutes attaches all inspection routes to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", a.handleHealth)
	r.Get("/v1/vlans", a.handleVlans)
	r.Get("/v1/networks", a.handleNetworks)
	r.Get("/v1/networks/{id}/leases", a.handleLeases)
	r.Get("/v1/addresses", a.handleAddresses)
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.WithError(err).Error("failed to write response")
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleVlans(w http.ResponseWriter, r *http.Request) {
	vlans, err := a.manager.Vlans().DictByProject(r.Context())
	if err != nil {
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	a.writeJSON(w, http.StatusOK, vlans)
}

type networkResponse struct {
	ID         string `json:"id"`
	CIDR       string `json:"cidr"`
	VlanID     int    `json:"vlan_id"`
	BridgeName string `json:"bridge_name"`
	ProjectID  string `json:"project_id"`
	Kind       string `json:"kind"`
}

func (a *API) handleNetworks(w http.ResponseWriter, r *http.Request) {
	records, err := a.manager.Networks().FindAll(r.Context())
	if err != nil {
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	resp := make([]networkResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, networkResponse{
			ID:         rec.ID,
			CIDR:       rec.CIDR,
			VlanID:     rec.VlanID,
			BridgeName: rec.BridgeName,
			ProjectID:  rec.ProjectID,
			Kind:       string(rec.Kind),
		})
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLeases(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.manager.Networks().FindByID(r.Context(), id); err != nil {
		if err == repository.ErrNotFound {
			a.writeJSON(w, http.StatusNotFound, map[string]string{"error": "network not found"})
			return
		}
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	leases, err := a.manager.Networks().Leases(r.Context(), id)
	if err != nil {
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	a.writeJSON(w, http.StatusOK, leases)
}

type addressResponse struct {
	Address    string `json:"address"`
	ProjectID  string `json:"project_id"`
	InstanceID string `json:"instance_id"`
	PrivateIP  string `json:"private_ip"`
}

func (a *API) handleAddresses(w http.ResponseWriter, r *http.Request) {
	records, err := a.manager.Public().Addresses(r.Context())
	if err != nil {
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	resp := make([]addressResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, addressResponse{
			Address:    rec.Address,
			ProjectID:  rec.ProjectID,
			InstanceID: rec.InstanceID,
			PrivateIP:  rec.PrivateIP,
		})
	}
	a.writeJSON(w, http.StatusOK, resp)
}
