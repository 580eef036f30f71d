package httpadapter

import (
	"net/http"
	"strings"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
)

func (rt *Router) getSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.settings.Current())
}

func (rt *Router) saveSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.Settings
	if err := decodeJSON(r, &settings); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	if err := rt.settings.Save(r.Context(), settings); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.settings.Current())
}

func (rt *Router) listConfigFiles(w http.ResponseWriter, r *http.Request) {
	files, err := rt.settings.ConfigFiles(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (rt *Router) loadSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileName string `json:"file_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	settings, err := rt.settings.Load(r.Context(), strings.TrimSpace(req.FileName))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
