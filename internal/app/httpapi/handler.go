// Package httpapi exposes the catalog, entitlement, purchase and selection
// operations over REST.
package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	app "github.com/vaultforge/agent_layer/internal/app"
	"github.com/vaultforge/agent_layer/internal/app/domain/agent"
	"github.com/vaultforge/agent_layer/internal/app/metrics"
	purchasesvc "github.com/vaultforge/agent_layer/internal/app/services/purchase"
	"github.com/vaultforge/agent_layer/internal/app/services/selection"
	"github.com/vaultforge/agent_layer/internal/httputil"
	"github.com/vaultforge/agent_layer/pkg/logger"
)

// Handler bundles the REST endpoints for the application services.
type Handler struct {
	app *app.Application
	log *logger.Logger
}

// New creates the API handler.
func New(application *app.Application, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Handler{app: application, log: log}
}

// Router builds the route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/catalog", h.listCatalog).Methods(http.MethodGet)
	r.HandleFunc("/catalog/{agent}", h.getAgent).Methods(http.MethodGet)

	r.HandleFunc("/accounts/{address}/entitlements", h.listEntitlements).Methods(http.MethodGet)

	r.HandleFunc("/session", h.getSession).Methods(http.MethodGet)
	r.HandleFunc("/session", h.connect).Methods(http.MethodPost)
	r.HandleFunc("/session", h.disconnect).Methods(http.MethodDelete)

	r.HandleFunc("/purchases", h.purchase).Methods(http.MethodPost)

	r.HandleFunc("/selection", h.getSelection).Methods(http.MethodGet)
	r.HandleFunc("/selection", h.setSelection).Methods(http.MethodPost)
	r.HandleFunc("/selection/confirm", h.confirmSelection).Methods(http.MethodPost)

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"agents": h.app.Catalog.List(),
	})
}

func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.app.Catalog.Get(mux.Vars(r)["agent"])
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) listEntitlements(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(mux.Vars(r)["address"])
	if address == "" {
		httputil.BadRequest(w, "address is required")
		return
	}
	owned, err := h.app.OwnedAgents(r.Context(), address)
	if err != nil {
		h.log.WithError(err).Warn("entitlement lookup failed")
		httputil.WriteError(w, http.StatusBadGateway, "entitlement store unavailable")
		return
	}
	if owned == nil {
		owned = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"purchasedAgents": owned,
	})
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	session := h.app.Session()
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account":   session.Account,
		"chainId":   session.ChainID,
		"connected": session.Connected(),
	})
}

func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Account string `json:"account"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(payload.Account) == "" {
		httputil.BadRequest(w, "account is required")
		return
	}
	h.app.Connect(r.Context(), payload.Account)
	h.getSession(w, r)
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	h.app.Disconnect(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) purchase(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AgentID string `json:"agent_id"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(payload.AgentID) == "" {
		httputil.BadRequest(w, "agent_id is required")
		return
	}

	result, err := h.app.Purchase.Purchase(r.Context(), h.app.Session(), payload.AgentID)
	if err != nil {
		httputil.WriteError(w, purchaseStatus(err), err.Error())
		return
	}

	status := http.StatusCreated
	if result.AlreadyOwned {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, map[string]interface{}{
		"attemptId":    result.AttemptID,
		"agentId":      result.AgentID,
		"txHash":       result.TxHash,
		"alreadyOwned": result.AlreadyOwned,
		"recorded":     result.Recorded,
	})
}

func (h *Handler) getSelection(w http.ResponseWriter, r *http.Request) {
	sel, ok := h.app.Selection.Current(h.app.Session().Account)
	if !ok {
		httputil.NotFound(w, "no agent selected")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sel)
}

func (h *Handler) setSelection(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AgentID string `json:"agent_id"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	sel, err := h.app.Selection.Select(h.app.Session().Account, payload.AgentID)
	if err != nil {
		httputil.WriteError(w, selectionStatus(err), err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sel)
}

func (h *Handler) confirmSelection(w http.ResponseWriter, r *http.Request) {
	agentID, err := h.app.Selection.Confirm(h.app.Session().Account)
	if err != nil {
		httputil.WriteError(w, selectionStatus(err), err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"agentId": agentID})
}

func purchaseStatus(err error) int {
	switch {
	case errors.Is(err, agent.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, purchasesvc.ErrAlreadyInProgress):
		return http.StatusConflict
	case errors.Is(err, purchasesvc.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, purchasesvc.ErrNoAccount),
		errors.Is(err, purchasesvc.ErrWrongNetwork),
		errors.Is(err, purchasesvc.ErrUserRejected):
		return http.StatusBadRequest
	case errors.Is(err, purchasesvc.ErrUnavailable):
		return http.StatusConflict
	case errors.Is(err, purchasesvc.ErrNetwork),
		errors.Is(err, purchasesvc.ErrTransactionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func selectionStatus(err error) int {
	switch {
	case errors.Is(err, agent.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, selection.ErrNoSelection):
		return http.StatusNotFound
	case errors.Is(err, selection.ErrNotEntitled):
		return http.StatusForbidden
	case errors.Is(err, selection.ErrUnavailable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
