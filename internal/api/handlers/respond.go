package handlers

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// language resolves the response language from the body value or the
// X-Language header, defaulting to Chinese.
func language(r *http.Request, bodyLang string) string {
	if bodyLang != "" {
		return bodyLang
	}
	if h := r.Header.Get("X-Language"); h != "" {
		return h
	}
	return "zh"
}
