package monitor

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"ad-monitor/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// defaultCompanyID is assigned to screens created without a company.
const defaultCompanyID CompanyID = 1

// Handler exposes monitoring HTTP endpoints using go-chi.
type Handler struct {
	svc     *Service
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler that uses the given Service, Logger, and optional Metrics.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, log: log, metrics: m}
}

// Mount registers every endpoint on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/setup-sample", h.SetupSample)
		r.Post("/events/heartbeat", h.Heartbeat)
		r.Post("/events/playback", h.Playback)

		r.Get("/screens", h.ListScreens)
		r.Post("/screens/create", h.CreateScreen)
		r.Route("/screens/{screen_id}", func(r chi.Router) {
			r.Get("/status", h.ScreenStatus)
			r.Get("/uptime", h.ScreenUptime)
			r.Get("/playlist", h.Playlist)
			r.Get("/playlist.m3u8", h.PlaylistM3U8)
		})

		r.Get("/ads", h.ListAds)
		r.Route("/ads/{ad_id}", func(r chi.Router) {
			r.Get("/metrics", h.AdMetrics)
			r.Get("/metrics/today", h.AdMetricsToday)
		})

		r.Route("/companies/{company_id}", func(r chi.Router) {
			r.Get("/screens/{screen_id}/current-ad", h.CurrentAd)
			r.Get("/uptime", h.CompanyUptime)
			r.Get("/metrics", h.CompanyMetrics)
		})
	})
}

type heartbeatRequest struct {
	ScreenID     ScreenID `json:"screen_id"`
	CurrentAdID  *AdID    `json:"current_ad_id"`
	PlayerStatus string   `json:"player_status"`
}

type playbackRequest struct {
	ScreenID  ScreenID   `json:"screen_id"`
	AdID      AdID       `json:"ad_id"`
	StartedAt *time.Time `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
	Status    string     `json:"status"`
}

type createScreenRequest struct {
	Name      string     `json:"name"`
	CompanyID *CompanyID `json:"company_id"`
}

// Heartbeat handles POST /api/events/heartbeat.
// Body: { "screen_id": 1, "current_ad_id": 5, "player_status": "ok" }.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ScreenID == 0 {
		h.log.Debug("invalid heartbeat body", slog.Any("error", err))
		h.reject("heartbeat", "bad_request")
		writeError(w, http.StatusBadRequest, "invalid heartbeat body")
		return
	}

	ts, err := h.svc.IngestHeartbeat(r.Context(), req.ScreenID, req.CurrentAdID, req.PlayerStatus)
	if err != nil {
		h.reject("heartbeat", reasonFor(err))
		h.fail(w, "ingest heartbeat", err, slog.Int64("screen_id", int64(req.ScreenID)))
		return
	}

	h.log.Debug("heartbeat received", slog.Int64("screen_id", int64(req.ScreenID)))
	if h.metrics != nil {
		h.metrics.IncHeartbeats()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "heartbeat received",
		"timestamp": ts.Format(time.RFC3339Nano),
	})
}

// Playback handles POST /api/events/playback.
// Body: { "screen_id": 1, "ad_id": 5, "started_at": "...", "ended_at": "...", "status": "success" }.
func (h *Handler) Playback(w http.ResponseWriter, r *http.Request) {
	var req playbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.ScreenID == 0 || req.AdID == 0 || req.StartedAt == nil || req.EndedAt == nil {
		h.log.Debug("invalid playback body", slog.Any("error", err))
		h.reject("playback", "bad_request")
		writeError(w, http.StatusBadRequest, "invalid playback body")
		return
	}

	err := h.svc.IngestPlayback(r.Context(), req.ScreenID, req.AdID, *req.StartedAt, *req.EndedAt, req.Status)
	if err != nil {
		h.reject("playback", reasonFor(err))
		h.fail(w, "ingest playback", err,
			slog.Int64("screen_id", int64(req.ScreenID)),
			slog.Int64("ad_id", int64(req.AdID)))
		return
	}

	if h.metrics != nil {
		h.metrics.IncPlaybacks(PlaybackStatusOrDefault(req.Status))
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "playback recorded"})
}

// CurrentAd handles GET /api/companies/{company_id}/screens/{screen_id}/current-ad.
func (h *Handler) CurrentAd(w http.ResponseWriter, r *http.Request) {
	companyID, ok1 := pathID(r, "company_id")
	screenID, ok2 := pathID(r, "screen_id")
	if !ok1 || !ok2 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	res, err := h.svc.Attribution(r.Context(), CompanyID(companyID), ScreenID(screenID))
	if err != nil {
		h.fail(w, "resolve attribution", err, slog.Int64("screen_id", screenID))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ScreenStatus handles GET /api/screens/{screen_id}/status.
func (h *Handler) ScreenStatus(w http.ResponseWriter, r *http.Request) {
	screenID, ok := pathID(r, "screen_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid screen id")
		return
	}

	res, err := h.svc.CurrentStatus(r.Context(), ScreenID(screenID))
	if err != nil {
		h.fail(w, "evaluate liveness", err, slog.Int64("screen_id", screenID))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ScreenUptime handles GET /api/screens/{screen_id}/uptime?window_minutes=60.
func (h *Handler) ScreenUptime(w http.ResponseWriter, r *http.Request) {
	screenID, ok := pathID(r, "screen_id")
	minutes, okW := windowMinutes(r)
	if !ok || !okW {
		writeError(w, http.StatusBadRequest, "invalid screen id or window")
		return
	}

	pct, err := h.svc.Uptime(r.Context(), ScreenID(screenID), minutes)
	if err != nil {
		h.fail(w, "estimate uptime", err, slog.Int64("screen_id", screenID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"screen_id":      screenID,
		"window_minutes": h.effectiveWindow(minutes),
		"uptime_percent": pct,
	})
}

// CompanyUptime handles GET /api/companies/{company_id}/uptime?window_minutes=60.
func (h *Handler) CompanyUptime(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "company_id")
	minutes, okW := windowMinutes(r)
	if !ok || !okW {
		writeError(w, http.StatusBadRequest, "invalid company id or window")
		return
	}

	pct, err := h.svc.CompanyUptime(r.Context(), CompanyID(companyID), minutes)
	if err != nil {
		h.fail(w, "estimate company uptime", err, slog.Int64("company_id", companyID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"company_id":     companyID,
		"window_minutes": h.effectiveWindow(minutes),
		"uptime_percent": pct,
	})
}

// AdMetricsToday handles GET /api/ads/{ad_id}/metrics/today.
func (h *Handler) AdMetricsToday(w http.ResponseWriter, r *http.Request) {
	h.adMetrics(w, r, WindowToday)
}

// AdMetrics handles GET /api/ads/{ad_id}/metrics?window=today|month.
func (h *Handler) AdMetrics(w http.ResponseWriter, r *http.Request) {
	win, err := ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.adMetrics(w, r, win)
}

func (h *Handler) adMetrics(w http.ResponseWriter, r *http.Request, win Window) {
	adID, ok := pathID(r, "ad_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid ad id")
		return
	}

	m, err := h.svc.AdMetrics(r.Context(), AdID(adID), win)
	if err != nil {
		h.fail(w, "aggregate ad metrics", err, slog.Int64("ad_id", adID))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// CompanyMetrics handles GET /api/companies/{company_id}/metrics?window=today|month.
func (h *Handler) CompanyMetrics(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "company_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	win, err := ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.svc.CompanyMetrics(r.Context(), CompanyID(companyID), win)
	if err != nil {
		h.fail(w, "aggregate company metrics", err, slog.Int64("company_id", companyID))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ListScreens handles GET /api/screens.
func (h *Handler) ListScreens(w http.ResponseWriter, r *http.Request) {
	screens, err := h.svc.ListScreens(r.Context())
	if err != nil {
		h.fail(w, "list screens", err)
		return
	}
	writeJSON(w, http.StatusOK, screens)
}

// CreateScreen handles POST /api/screens/create.
// Body: { "name": "Lobby", "company_id": 1 }.
func (h *Handler) CreateScreen(w http.ResponseWriter, r *http.Request) {
	var req createScreenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid screen body")
		return
	}
	companyID := defaultCompanyID
	if req.CompanyID != nil {
		companyID = *req.CompanyID
	}

	sc, err := h.svc.CreateScreen(r.Context(), req.Name, companyID)
	if err != nil {
		h.fail(w, "create screen", err)
		return
	}
	h.log.Info("screen created", slog.Int64("screen_id", int64(sc.ID)), slog.Int64("company_id", int64(sc.CompanyID)))
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         sc.ID,
		"name":       sc.Name,
		"company_id": sc.CompanyID,
	})
}

// SetupSample handles POST /api/setup-sample.
func (h *Handler) SetupSample(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.SetupSample(r.Context())
	if err != nil {
		h.fail(w, "setup sample", err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// ListAds handles GET /api/ads.
func (h *Handler) ListAds(w http.ResponseWriter, r *http.Request) {
	ads, err := h.svc.ListAds(r.Context())
	if err != nil {
		h.fail(w, "list ads", err)
		return
	}
	writeJSON(w, http.StatusOK, ads)
}

// Playlist handles GET /api/screens/{screen_id}/playlist.
func (h *Handler) Playlist(w http.ResponseWriter, r *http.Request) {
	screenID, ok := pathID(r, "screen_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid screen id")
		return
	}

	ads, err := h.svc.Playlist(r.Context(), ScreenID(screenID))
	if err != nil {
		h.fail(w, "build playlist", err, slog.Int64("screen_id", screenID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"screen_id": screenID,
		"playlist":  ads,
	})
}

// PlaylistM3U8 handles GET /api/screens/{screen_id}/playlist.m3u8.
func (h *Handler) PlaylistM3U8(w http.ResponseWriter, r *http.Request) {
	screenID, ok := pathID(r, "screen_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid screen id")
		return
	}

	ads, err := h.svc.Playlist(r.Context(), ScreenID(screenID))
	if err != nil {
		h.fail(w, "build playlist", err, slog.Int64("screen_id", screenID))
		return
	}

	w.Header().Set("Content-Type", playlistContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(BuildScreenPlaylist(ads)))
}

// fail maps err to a status code and writes it. Only unexpected errors are
// logged at error level.
func (h *Handler) fail(w http.ResponseWriter, op string, err error, attrs ...slog.Attr) {
	status := statusFor(err)
	args := make([]any, 0, len(attrs)+1)
	for _, a := range attrs {
		args = append(args, a)
	}
	args = append(args, slog.String("error", err.Error()))

	if status == http.StatusInternalServerError {
		h.log.Error(op+" failed", args...)
		writeError(w, status, "internal error")
		return
	}
	h.log.Info(op+" rejected", args...)
	writeError(w, status, err.Error())
}

func (h *Handler) reject(kind, reason string) {
	if h.metrics != nil {
		h.metrics.IncRejected(kind, reason)
	}
}

func (h *Handler) effectiveWindow(minutes int) int {
	return h.svc.uptime.window(minutes)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRange):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidRange):
		return "invalid_range"
	default:
		return "internal"
	}
}

func pathID(r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// windowMinutes returns 0 when the parameter is absent so the service
// default applies. Values above MaxUptimeWindowMinutes are rejected.
func windowMinutes(r *http.Request) (int, bool) {
	s := r.URL.Query().Get("window_minutes")
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > MaxUptimeWindowMinutes {
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
