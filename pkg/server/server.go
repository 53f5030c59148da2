// Package server exposes the tracker's query surface as a read-only JSON API
// plus static serving of downloaded images.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/redwatchio/redwatch/internal/store"
)

// Server provides the HTTP API.
type Server struct {
	store     store.Store
	imagesDir string
	port      int
}

// New creates a new HTTP server.
func New(s store.Store, imagesDir string, port int) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{store: s, imagesDir: imagesDir, port: port}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/accounts", s.handleAccounts)
	mux.HandleFunc("GET /api/v1/accounts/{user}/karma", s.handleKarma)
	mux.HandleFunc("GET /api/v1/accounts/{user}/posts-per-day", s.handlePostsPerDay)
	mux.HandleFunc("GET /api/v1/accounts/{user}/subreddits", s.handleSubreddits)
	mux.HandleFunc("GET /api/v1/accounts/{user}/activity", s.handleActivity)
	mux.HandleFunc("GET /api/v1/accounts/{user}/karma-changes", s.handleKarmaChanges)
	mux.HandleFunc("GET /api/v1/score-history/{kind}/{id}", s.handleScoreHistory)
	if s.imagesDir != "" {
		mux.Handle("GET /images/", http.StripPrefix("/images/", http.FileServer(http.Dir(s.imagesDir))))
	}
	return mux
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("server listening", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	overviews, err := s.store.AccountOverviews(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": overviews, "count": len(overviews)})
}

// handleKarma returns the snapshot series for charting. The window is either
// an explicit from/to pair (RFC 3339) or a trailing hours count.
func (s *Server) handleKarma(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")

	var (
		snaps []store.Snapshot
		err   error
	)
	fromStr, toStr := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if fromStr != "" && toStr != "" {
		from, ferr := time.Parse(time.RFC3339, fromStr)
		to, terr := time.Parse(time.RFC3339, toStr)
		if ferr != nil || terr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from/to must be RFC 3339 timestamps"})
			return
		}
		snaps, err = s.store.SnapshotsBetween(r.Context(), user, from, to)
	} else {
		snaps, err = s.store.SnapshotsSince(r.Context(), user, hoursParam(r, 30*24))
	}
	if err != nil {
		writeError(w, err)
		return
	}

	labels := make([]string, len(snaps))
	postKarma := make([]int, len(snaps))
	commentKarma := make([]int, len(snaps))
	totalKarma := make([]int, len(snaps))
	for i, snap := range snaps {
		labels[i] = snap.ObservedAt.Format(time.RFC3339)
		postKarma[i] = snap.PostKarma
		commentKarma[i] = snap.CommentKarma
		totalKarma[i] = snap.TotalKarma
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"labels":        labels,
		"post_karma":    postKarma,
		"comment_karma": commentKarma,
		"total_karma":   totalKarma,
	})
}

func (s *Server) handlePostsPerDay(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.PostCountsByDay(r.Context(), r.PathValue("user"))
	if err != nil {
		writeError(w, err)
		return
	}

	labels := make([]string, len(counts))
	values := make([]int, len(counts))
	for i, c := range counts {
		labels[i] = c.Day
		values[i] = c.Count
	}
	writeJSON(w, http.StatusOK, map[string]any{"labels": labels, "counts": values})
}

func (s *Server) handleSubreddits(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.TopSubreddits(r.Context(), r.PathValue("user"), 10)
	if err != nil {
		writeError(w, err)
		return
	}

	labels := make([]string, len(stats))
	counts := make([]int, len(stats))
	scores := make([]int, len(stats))
	for i, st := range stats {
		labels[i] = st.Subreddit
		counts[i] = st.Count
		scores[i] = st.TotalScore
	}
	writeJSON(w, http.StatusOK, map[string]any{"labels": labels, "counts": counts, "scores": scores})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")

	posts, err := s.store.ActivityHeatmap(r.Context(), user, store.KindPost)
	if err != nil {
		writeError(w, err)
		return
	}
	comments, err := s.store.ActivityHeatmap(r.Context(), user, store.KindComment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts, "comments": comments})
}

func (s *Server) handleKarmaChanges(w http.ResponseWriter, r *http.Request) {
	deltas, err := s.store.KarmaDeltas(r.Context(), r.PathValue("user"), hoursParam(r, 7*24))
	if err != nil {
		writeError(w, err)
		return
	}

	labels := make([]string, len(deltas))
	totals := make([]int, len(deltas))
	changes := make([]int, len(deltas))
	for i, d := range deltas {
		labels[i] = d.ObservedAt.Format(time.RFC3339)
		totals[i] = d.TotalKarma
		changes[i] = d.Change
	}
	writeJSON(w, http.StatusOK, map[string]any{"labels": labels, "total_karma": totals, "changes": changes})
}

func (s *Server) handleScoreHistory(w http.ResponseWriter, r *http.Request) {
	kind := store.ItemKind(r.PathValue("kind"))
	if kind != store.KindPost && kind != store.KindComment {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "kind must be post or comment"})
		return
	}

	entries, err := s.store.ScoreHistory(r.Context(), kind, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	labels := make([]string, len(entries))
	scores := make([]int, len(entries))
	for i, e := range entries {
		labels[i] = e.ObservedAt.Format(time.RFC3339)
		scores[i] = e.Score
	}
	writeJSON(w, http.StatusOK, map[string]any{"labels": labels, "scores": scores})
}

// hoursParam reads a trailing window from ?hours= or ?days=, defaulting when
// neither is present.
func hoursParam(r *http.Request, fallback int) int {
	if v := r.URL.Query().Get("hours"); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h > 0 {
			return h
		}
	}
	if v := r.URL.Query().Get("days"); v != "" {
		if d, err := strconv.ParseFloat(v, 64); err == nil && d > 0 {
			return int(d * 24)
		}
	}
	return fallback
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, store.ErrNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
