package handler

import (
	"context"
	"net/http"

	"github.com/kwizz/kwizz-go/internal/model"
)

type HostRegistrar interface {
	Register(ctx context.Context, name string) (*model.Host, string, error)
}

type HostHandler struct {
	hosts HostRegistrar
}

func NewHostHandler(hosts HostRegistrar) *HostHandler {
	return &HostHandler{hosts: hosts}
}

type registerHostRequest struct {
	Name string `json:"name"`
}

type registerHostResponse struct {
	Host  *model.Host `json:"host"`
	Token string      `json:"token"`
}

// POST /v1/hosts
//
// The token in the response is the only copy; it cannot be recovered later.
func (h *HostHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerHostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	host, token, err := h.hosts.Register(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerHostResponse{Host: host, Token: token})
}
