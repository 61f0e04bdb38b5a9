package http

import (
	"context"
	"net/http"

	"billtracker/internal/core"
	"billtracker/internal/log"
	"billtracker/internal/notify"
	"billtracker/internal/services"
)

type dashboardResponse struct {
	Summary   core.Summary          `json:"summary"`
	Reminders *notify.Evaluation    `json:"reminders,omitempty"`
	Options   []core.CategoryOption `json:"categories"`
}

type permissionRequest struct {
	Permission string `json:"permission"`
}

type permissionResponse struct {
	Permission notify.Permission `json:"permission"`
}

// enableRequest carries the user's answer to the permission prompt.
type enableRequest struct {
	Answer string `json:"answer"`
}

// currentEvaluation returns the last evaluation if it is from today,
// re-evaluating otherwise.
func (s *Server) currentEvaluation(ctx context.Context, center *notify.Center) (*notify.Evaluation, error) {
	if ev := center.Last(); ev != nil && ev.Date.Equal(core.DateOf(s.now())) {
		return ev, nil
	}
	return center.Reevaluate(ctx)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	today := core.DateOf(s.now())

	ev, err := s.currentEvaluation(r.Context(), sess.Notifications)
	if err != nil && ev == nil {
		writeError(w, r, "evaluate reminders", err)
		return
	}
	respondJSON(w, http.StatusOK, dashboardResponse{
		Summary:   services.Summarize(sess.Bills.List(), today),
		Reminders: ev,
		Options:   sess.Categories.ListAll(),
	})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	ev, err := s.currentEvaluation(r.Context(), sessionFrom(r.Context()).Notifications)
	if err != nil && ev == nil {
		writeError(w, r, "evaluate reminders", err)
		return
	}
	respondJSON(w, http.StatusOK, ev)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := sessionFrom(r.Context()).Notifications.Settings(r.Context())
	if err != nil {
		writeError(w, r, "load settings", err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// handleUpdateSettings applies the body over the current settings, so
// omitted fields keep their values.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	center := sessionFrom(r.Context()).Notifications
	settings, err := center.Settings(r.Context())
	if err != nil {
		writeError(w, r, "load settings", err)
		return
	}
	if err := parseJSONBody(w, r, &settings); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	ev, err := center.UpdateSettings(r.Context(), settings)
	if err != nil && ev == nil {
		writeError(w, r, "save settings", err)
		return
	}
	respondJSON(w, http.StatusOK, ev)
}

func (s *Server) handleGetPermission(w http.ResponseWriter, r *http.Request) {
	perm, err := sessionFrom(r.Context()).Notifications.Permission(r.Context())
	if err != nil {
		writeError(w, r, "load permission", err)
		return
	}
	respondJSON(w, http.StatusOK, permissionResponse{Permission: perm})
}

func (s *Server) handleSetPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := parseJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}
	perm, err := notify.ParsePermission(req.Permission)
	if err != nil {
		writeError(w, r, "set permission", err)
		return
	}
	center := sessionFrom(r.Context()).Notifications
	if err := center.SetPermission(r.Context(), perm); err != nil {
		writeError(w, r, "set permission", err)
		return
	}
	reevaluate(r.Context(), center)
	respondJSON(w, http.StatusOK, permissionResponse{Permission: perm})
}

// handleEnableDesktop turns desktop alerts on. The prompt happens client-side;
// its answer arrives in the body and is consulted only while permission is
// still unrequested.
func (s *Server) handleEnableDesktop(w http.ResponseWriter, r *http.Request) {
	var req enableRequest
	if err := parseJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}
	prompter := notify.PrompterFunc(func(context.Context) (notify.Permission, error) {
		if req.Answer == "" {
			return notify.PermissionDefault, nil
		}
		return notify.ParsePermission(req.Answer)
	})

	center := sessionFrom(r.Context()).Notifications
	perm, err := center.EnableDesktop(r.Context(), prompter)
	if err != nil {
		writeError(w, r, "enable desktop notifications", err)
		return
	}
	reevaluate(r.Context(), center)
	respondJSON(w, http.StatusOK, permissionResponse{Permission: perm})
}

// reevaluate fires any alerts a permission change just unblocked.
func reevaluate(ctx context.Context, center *notify.Center) {
	if _, err := center.Reevaluate(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Reminder evaluation failed", log.FieldError, err)
	}
}
