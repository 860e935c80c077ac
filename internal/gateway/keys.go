package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/livecap/livecap/internal/keys"
)

type keyResponse struct {
	Key       string  `json:"key"`
	Owner     string  `json:"owner"`
	Active    bool    `json:"active"`
	Expires   *string `json:"expires"`
	CreatedAt string  `json:"createdAt"`
}

func formatKey(rec keys.Key) keyResponse {
	out := keyResponse{
		Key:       rec.Key,
		Owner:     rec.Owner,
		Active:    rec.Active,
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec.ExpiresAt != nil {
		s := rec.ExpiresAt.UTC().Format(time.RFC3339)
		out.Expires = &s
	}
	return out
}

func (g *Gateway) handleListKeys(w http.ResponseWriter, r *http.Request) {
	all, err := g.keys.List(r.Context())
	if err != nil {
		g.logger.Error("list keys failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list keys")
		return
	}

	out := make([]keyResponse, 0, len(all))
	for _, rec := range all {
		out = append(out, formatKey(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": out})
}

type createKeyRequest struct {
	Owner   string `json:"owner"`
	Key     string `json:"key"`
	Expires string `json:"expires"`
}

func (g *Gateway) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	params := keys.CreateParams{Key: req.Key, Owner: req.Owner}
	if req.Expires != "" {
		expires, err := parseExpiry(req.Expires)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid expires value")
			return
		}
		params.ExpiresAt = &expires
	}

	rec, err := g.keys.Create(r.Context(), params)
	if errors.Is(err, keys.ErrDuplicate) {
		writeError(w, http.StatusConflict, "API key already exists")
		return
	}
	if err != nil {
		g.logger.Error("create key failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create key")
		return
	}
	writeJSON(w, http.StatusCreated, formatKey(rec))
}

func (g *Gateway) handleGetKey(w http.ResponseWriter, r *http.Request) {
	rec, err := g.keys.Get(r.Context(), chi.URLParam(r, "key"))
	if errors.Is(err, keys.ErrNotFound) {
		writeError(w, http.StatusNotFound, "API key not found")
		return
	}
	if err != nil {
		g.logger.Error("get key failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load key")
		return
	}
	writeJSON(w, http.StatusOK, formatKey(rec))
}

type updateKeyRequest struct {
	Owner   *string `json:"owner"`
	Expires *string `json:"expires"`
}

func (g *Gateway) handleUpdateKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req updateKeyRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	params := keys.UpdateParams{Owner: req.Owner}
	if req.Expires != nil {
		if *req.Expires == "" {
			params.ClearExpiry = true
		} else {
			expires, err := parseExpiry(*req.Expires)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid expires value")
				return
			}
			params.ExpiresAt = &expires
		}
	}

	err := g.keys.Update(r.Context(), key, params)
	if errors.Is(err, keys.ErrNotFound) {
		writeError(w, http.StatusNotFound, "API key not found")
		return
	}
	if err != nil {
		g.logger.Error("update key failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update key")
		return
	}

	rec, err := g.keys.Get(r.Context(), key)
	if err != nil {
		g.logger.Error("reload key failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load key")
		return
	}
	writeJSON(w, http.StatusOK, formatKey(rec))
}

// handleDeleteKey revokes by default; ?permanent=true deletes the row.
func (g *Gateway) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	permanent := r.URL.Query().Get("permanent") == "true"

	var err error
	if permanent {
		err = g.keys.Delete(r.Context(), key)
	} else {
		err = g.keys.Revoke(r.Context(), key)
	}

	if errors.Is(err, keys.ErrNotFound) {
		writeError(w, http.StatusNotFound, "API key not found")
		return
	}
	if err != nil {
		g.logger.Error("delete key failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete key")
		return
	}

	if permanent {
		writeJSON(w, http.StatusOK, map[string]any{"key": key, "deleted": true})
	} else {
		writeJSON(w, http.StatusOK, map[string]any{"key": key, "revoked": true})
	}
}

// parseExpiry accepts RFC3339 or bare dates.
func parseExpiry(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.New("unrecognized time format")
}
