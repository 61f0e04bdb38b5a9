package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"billtracker/internal/core"
)

type categoryRequest struct {
	Name string `json:"name"`
}

type categoryListResponse struct {
	Categories []core.CategoryOption `json:"categories"`
	Custom     []string              `json:"custom"`
	Error      string                `json:"error,omitempty"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	catalog := sessionFrom(r.Context()).Categories
	resp := categoryListResponse{Categories: catalog.ListAll(), Custom: catalog.Custom()}
	if err := catalog.Err(); err != nil {
		resp.Error = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := parseJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	name, err := sessionFrom(r.Context()).Categories.Add(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, "add category", err)
		return
	}
	respondJSON(w, http.StatusCreated, core.CategoryOption{Value: name, Label: core.CategoryLabel(name)})
}

func (s *Server) handleRemoveCategory(w http.ResponseWriter, r *http.Request) {
	if err := sessionFrom(r.Context()).Categories.Remove(r.Context(), mux.Vars(r)["name"]); err != nil {
		writeError(w, r, "remove category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
