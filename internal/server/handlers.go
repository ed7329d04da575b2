package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/crs4/moodle.omero-repository/internal/cache"
	"github.com/crs4/moodle.omero-repository/internal/constants"
	"github.com/crs4/moodle.omero-repository/internal/models"
	"github.com/crs4/moodle.omero-repository/internal/refs"
)

// fallbackIcon is served whenever a thumbnail cannot be produced, so the
// picker always has something to render. 1x1 PNG.
var fallbackIcon, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg==")

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))

	creds := models.Credentials{
		AccessKey:    s.cfg.APIKey,
		AccessSecret: s.cfg.APISecret,
	}
	listing, err := s.resolver.List(r.Context(), sessionID(r), q.Get("path"), page, q.Get("search"), creds)
	if err != nil {
		s.logger.Error().Str("path", q.Get("path")).Err(err).Msg("listing failed")
		http.Error(w, "remote repository unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, listing)
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	imageID, err := strconv.ParseInt(q.Get("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid image id", http.StatusBadRequest)
		return
	}
	lastUpdate, _ := strconv.ParseInt(q.Get("lastUpdate"), 10, 64)
	width := intParam(q.Get("width"), constants.DefaultThumbnailWidth)
	height := intParam(q.Get("height"), constants.DefaultThumbnailHeight)
	force, _ := strconv.ParseBool(q.Get("force"))

	// The remote renders square-bounded thumbnails from a single size hint,
	// so the larger requested edge wins.
	size := height
	if width > size {
		size = width
	}

	key := cache.Key(s.client.BaseURL(), imageID, lastUpdate)
	data, err := s.cache.GetOrPopulate(key, func() ([]byte, error) {
		return s.client.FetchThumbnail(r.Context(), imageID, size)
	}, force)
	if err != nil {
		// A broken thumbnail never breaks the listing UI.
		s.logger.Warn().Int64("image", imageID).Err(err).Msg("thumbnail unavailable, serving fallback")
		data = fallbackIcon
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	ref, err := s.refs.Get(chi.URLParam(r, "refID"))
	if errors.Is(err, refs.ErrNotFound) {
		http.Error(w, "unknown file reference", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "reference store error", http.StatusInternalServerError)
		return
	}

	// Oversized or lost sources are delegated back to the remote server
	// instead of streaming through the cache.
	if ref.MissingSource || !s.cache.ShouldCache(ref.KnownSize) {
		if ref.ResolvedURL == "" {
			http.Error(w, "source no longer available", http.StatusGone)
			return
		}
		http.Redirect(w, r, ref.ResolvedURL, http.StatusFound)
		return
	}

	key := "ref-" + ref.ID
	data, err := s.cache.GetOrPopulate(key, func() ([]byte, error) {
		return s.fetchReferenceBytes(r.Context(), ref)
	}, false)
	if err != nil {
		s.logger.Error().Str("ref", ref.ID).Err(err).Msg("file fetch failed")
		http.Error(w, "remote repository unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

// fetchReferenceBytes pulls the referenced file from the remote server,
// preferring the durable resolved URL over stored credentials.
func (s *Server) fetchReferenceBytes(ctx context.Context, ref *refs.FileReference) ([]byte, error) {
	tmp, err := os.CreateTemp("", "omero-file-*")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if ref.ResolvedURL != "" {
		err = s.client.DownloadURL(ctx, ref.ResolvedURL, tmpPath)
	} else {
		creds := models.Credentials{AccessKey: ref.AccessKey, AccessSecret: ref.AccessSecret}
		_, err = s.client.FetchFile(ctx, ref.RemotePath, tmpPath, creds)
	}
	if err != nil {
		return nil, err
	}
	return os.ReadFile(tmpPath)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
	}
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
