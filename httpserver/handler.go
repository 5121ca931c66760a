package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/supplychain-registry-client/gateway"
	"github.com/ruteri/supplychain-registry-client/interfaces"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// RequestError provides structured error information for HTTP responses.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// SessionController is the wallet session as seen by the API.
type SessionController interface {
	State() interfaces.ConnectionState
	Connect(ctx context.Context) error
	Disconnect()
}

// BindingReader exposes the registry binding state.
type BindingReader interface {
	State() interfaces.BindingState
}

// NotificationQueue is the notification center as seen by the API.
type NotificationQueue interface {
	Notifications() []interfaces.Notification
	Dismiss(id string)
}

// Registry is the gateway as seen by the API.
type Registry interface {
	RegisterComponent(ctx context.Context, name, description, initialMetadata string) (*gateway.RegisterResult, error)
	TransferOwnership(ctx context.Context, componentID, newOwner string) (*gateway.TxResult, error)
	UpdateComponentStatus(ctx context.Context, componentID, newStatus, details string) (*gateway.TxResult, error)
	GetComponentDetails(ctx context.Context, componentID string) (*interfaces.Component, error)
	GetComponentHistory(ctx context.Context, componentID string) ([]interfaces.HistoryEntry, error)
	HasRole(ctx context.Context, role, account string) bool
}

// ComponentCatalog is the catalog as seen by the API.
type ComponentCatalog interface {
	Components() []interfaces.Component
	Search(ctx context.Context, componentID string) (*interfaces.Component, error)
}

// Handler serves the registry client API.
type Handler struct {
	session       SessionController
	binding       BindingReader
	notifications NotificationQueue
	registry      Registry
	catalog       ComponentCatalog
	log           *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(session SessionController, binding BindingReader, notifications NotificationQueue, registry Registry, catalog ComponentCatalog, log *slog.Logger) *Handler {
	return &Handler{
		session:       session,
		binding:       binding,
		notifications: notifications,
		registry:      registry,
		catalog:       catalog,
		log:           log,
	}
}

// RegisterRequest is the body of POST /api/components.
type RegisterRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	InitialMetadata string `json:"initialMetadata"`
}

// TransferRequest is the body of POST /api/components/{id}/transfer.
type TransferRequest struct {
	NewOwner string `json:"newOwner"`
}

// StatusRequest is the body of POST /api/components/{id}/status.
type StatusRequest struct {
	Status  string `json:"status"`
	Details string `json:"details"`
}

// RoleResponse is returned by GET /api/roles/{role}/{account}.
type RoleResponse struct {
	Role    string `json:"role"`
	Account string `json:"account"`
	HasRole bool   `json:"hasRole"`
}

// Snapshot returns the current state as WebSocket messages, sent to every
// newly connected client.
func (h *Handler) Snapshot() []Message {
	return []Message{
		{Type: MessageSession, Data: h.session.State()},
		{Type: MessageBinding, Data: interfaces.BindingUpdate{State: h.binding.State()}},
		{Type: MessageNotifications, Data: h.notifications.Notifications()},
		{Type: MessageCatalog, Data: h.catalog.Components()},
	}
}

func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.session.State())
}

// HandleConnect requests authorization. The resulting state is returned
// in both outcomes; failures also carry the error.
func (h *Handler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Connect(r.Context()); err != nil {
		h.log.Warn("Wallet connection failed", "err", err)
		h.writeJSON(w, statusFor(err), map[string]interface{}{
			"error": err.Error(),
			"state": h.session.State(),
		})
		return
	}
	h.writeJSON(w, http.StatusOK, h.session.State())
}

func (h *Handler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	h.session.Disconnect()
	h.writeJSON(w, http.StatusOK, h.session.State())
}

func (h *Handler) HandleGetBinding(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.binding.State())
}

func (h *Handler) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.notifications.Notifications())
}

func (h *Handler) HandleDismissNotification(w http.ResponseWriter, r *http.Request) {
	h.notifications.Dismiss(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleRegisterComponent(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.registry.RegisterComponent(r.Context(), req.Name, req.Description, req.InitialMetadata)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) HandleGetComponent(w http.ResponseWriter, r *http.Request) {
	component, err := h.registry.GetComponentDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, component)
}

func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.registry.GetComponentHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, history)
}

func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.registry.TransferOwnership(r.Context(), chi.URLParam(r, "id"), req.NewOwner)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.registry.UpdateComponentStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.Details)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleHasRole(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	account := chi.URLParam(r, "account")

	h.writeJSON(w, http.StatusOK, RoleResponse{
		Role:    role,
		Account: account,
		HasRole: h.registry.HasRole(r.Context(), role, account),
	})
}

func (h *Handler) HandleListCatalog(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.catalog.Components())
}

func (h *Handler) HandleSearchCatalog(w http.ResponseWriter, r *http.Request) {
	component, err := h.catalog.Search(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, component)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid request body: %w", err)}
	}
	return nil
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.StatusCode
	case errors.Is(err, interfaces.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrUserRejected):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrBindingUnavailable), errors.Is(err, interfaces.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, interfaces.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, interfaces.ErrTransactionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, interfaces.ErrRemoteCallFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", slog.Int("status", status), "err", err)
	} else {
		h.log.Debug("Request rejected", slog.Int("status", status), "err", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}
