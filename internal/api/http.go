package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/heartline/matchqueue/internal/arena"
	"github.com/heartline/matchqueue/internal/limits"
	"github.com/heartline/matchqueue/internal/metrics"
	"github.com/heartline/matchqueue/internal/store"
	"github.com/heartline/matchqueue/internal/ws"
	"github.com/heartline/matchqueue/pkg/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Deps struct {
	Queue    store.QueueStore
	Chats    store.ChatStore
	Limits   *limits.Service
	Schedule *arena.Schedule
	Hub      *ws.Hub
	Log      *zap.Logger
	Now      func() time.Time
}

type router struct {
	queue    store.QueueStore
	chats    store.ChatStore
	limits   *limits.Service
	schedule *arena.Schedule
	hub      *ws.Hub
	log      *zap.Logger
	now      func() time.Time
}

func NewRouter(d Deps) http.Handler {
	r := &router{
		queue:    d.Queue,
		chats:    d.Chats,
		limits:   d.Limits,
		schedule: d.Schedule,
		hub:      d.Hub,
		log:      d.Log,
		now:      d.Now,
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID, middleware.RealIP, requestLogger(r.log), middleware.Recoverer)

	mux.Get("/healthz", r.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	mux.Route("/queue", func(q chi.Router) {
		q.Post("/join", r.handleJoin)
		q.Post("/leave", r.handleLeave)
		q.Get("/status", r.handleStatus)
	})
	mux.Get("/limits/{userID}", r.handleLimits)
	mux.Get("/arenas", r.handleArenas)
	mux.Get("/arenas/{arenaID}", r.handleArena)
	mux.Get("/users/{userID}/chats", r.handleUserChats)
	mux.Get("/chats/{chatID}", r.handleChat)
	mux.Get("/ws", r.handleWS)

	return mux
}

func (r *router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if err := r.queue.Ping(req.Context()); err != nil {
		r.writeError(w, Unavailable("queue unavailable"), err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (r *router) handleJoin(w http.ResponseWriter, req *http.Request) {
	var p types.JoinRequest
	if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
		r.writeError(w, BadRequest("invalid JSON body"), err)
		return
	}
	p.UserID = strings.TrimSpace(p.UserID)
	if p.UserID == "" {
		r.writeError(w, ValidationError("user_id", "user_id is required"), nil)
		return
	}
	pool := strings.TrimSpace(p.Pool)
	if pool == "" {
		pool = types.GlobalPool
	}

	now := r.now()
	if pool != types.GlobalPool {
		a, err := r.schedule.Get(pool)
		if errors.Is(err, arena.ErrNotFound) {
			r.writeError(w, NotFound("arena"), err)
			return
		}
		if !a.IsActive(now) {
			r.writeError(w, Conflict("arena is not live, opens in "+a.Countdown(now)), nil)
			return
		}
	}

	st, err := r.limits.Check(req.Context(), p.UserID, now)
	if err != nil {
		r.writeError(w, InternalError("could not check match limit"), err)
		return
	}
	if !st.CanMatch {
		metrics.LimitRejections.Inc()
		r.writeError(w, RateLimited("daily match limit reached"), nil)
		return
	}

	entry, err := r.queue.Enqueue(req.Context(), p.UserID, pool, now)
	if err != nil {
		r.writeError(w, InternalError("could not join queue"), err)
		return
	}
	writeJSON(w, http.StatusAccepted, entry)
}

func (r *router) handleLeave(w http.ResponseWriter, req *http.Request) {
	var p struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
		r.writeError(w, BadRequest("invalid JSON body"), err)
		return
	}
	if strings.TrimSpace(p.UserID) == "" {
		r.writeError(w, ValidationError("user_id", "user_id is required"), nil)
		return
	}
	removed, err := r.queue.Dequeue(req.Context(), strings.TrimSpace(p.UserID))
	if err != nil {
		r.writeError(w, InternalError("could not leave queue"), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (r *router) handleStatus(w http.ResponseWriter, req *http.Request) {
	userID := strings.TrimSpace(req.URL.Query().Get("user_id"))
	if userID == "" {
		r.writeError(w, ValidationError("user_id", "user_id is required"), nil)
		return
	}
	entry, err := r.queue.Status(req.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		r.writeError(w, NotFound("queue entry"), err)
		return
	}
	if err != nil {
		r.writeError(w, InternalError("could not read queue status"), err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (r *router) handleLimits(w http.ResponseWriter, req *http.Request) {
	st, err := r.limits.Check(req.Context(), chi.URLParam(req, "userID"), r.now())
	if err != nil {
		r.writeError(w, InternalError("could not check match limit"), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type arenaView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Weekday   string    `json:"weekday"`
	Start     string    `json:"start"`
	Duration  string    `json:"duration"`
	Timezone  string    `json:"timezone"`
	Active    bool      `json:"active"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Countdown string    `json:"countdown"`
}

func viewOf(a arena.Arena, now time.Time) arenaView {
	start, end := a.Window(now)
	tz := "UTC"
	if a.Location != nil {
		tz = a.Location.String()
	}
	return arenaView{
		ID:        a.ID,
		Name:      a.Name,
		Weekday:   a.Weekday.String(),
		Start:     a.StartLabel(),
		Duration:  a.Duration.String(),
		Timezone:  tz,
		Active:    a.IsActive(now),
		StartsAt:  start,
		EndsAt:    end,
		Countdown: a.Countdown(now),
	}
}

func (r *router) handleArenas(w http.ResponseWriter, _ *http.Request) {
	now := r.now()
	out := []arenaView{}
	for _, a := range r.schedule.All() {
		out = append(out, viewOf(a, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *router) handleArena(w http.ResponseWriter, req *http.Request) {
	a, err := r.schedule.Get(chi.URLParam(req, "arenaID"))
	if err != nil {
		r.writeError(w, NotFound("arena"), err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(a, r.now()))
}

func (r *router) handleUserChats(w http.ResponseWriter, req *http.Request) {
	limit := 50
	if v := req.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 200 {
			r.writeError(w, ValidationError("limit", "limit must be between 1 and 200"), nil)
			return
		}
		limit = n
	}
	chats, err := r.chats.ListChatsByUser(req.Context(), chi.URLParam(req, "userID"), limit)
	if err != nil {
		r.writeError(w, InternalError("could not list chats"), err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (r *router) handleChat(w http.ResponseWriter, req *http.Request) {
	chat, err := r.chats.GetChat(req.Context(), chi.URLParam(req, "chatID"))
	if errors.Is(err, store.ErrNotFound) {
		r.writeError(w, NotFound("chat"), err)
		return
	}
	if err != nil {
		r.writeError(w, InternalError("could not load chat"), err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (r *router) handleWS(w http.ResponseWriter, req *http.Request) {
	userID := strings.TrimSpace(req.URL.Query().Get("user_id"))
	if userID == "" {
		r.writeError(w, ValidationError("user_id", "user_id is required"), nil)
		return
	}
	ws.ServeWS(r.hub, userID, w, req)
}
