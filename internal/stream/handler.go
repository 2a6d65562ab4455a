package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// Handler exposes read-only session status over HTTP using go-chi.
type Handler struct {
	sess *Session
	log  *slog.Logger
}

// NewHandler returns a Handler reporting on sess.
func NewHandler(sess *Session, log *slog.Logger) *Handler {
	return &Handler{sess: sess, log: log}
}

// Routes mounts GET /status and GET /playlists/{index}/playlist.m3u8 on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/status", h.Status)
	r.Get("/playlists/{index}/playlist.m3u8", h.GetPlaylist)
}

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	snap := h.sess.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		h.log.Debug("write status failed", slog.String("error", err.Error()))
	}
}

// GetPlaylist handles GET /playlists/{index}/playlist.m3u8, where index is the
// position of the playlist in /status.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	src, ok := h.sess.PlaylistSource(i)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", playlistContentType)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(src))
}
