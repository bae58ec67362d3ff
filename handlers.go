package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/moodmuffin/strangerchat/internal/hub"
	"github.com/moodmuffin/strangerchat/store"
)

type ctxKey struct{}

// reqCtx is the context injected into every request.
type reqCtx struct {
	app *App
}

// jsonResp is the envelope for all JSON API responses.
type jsonResp struct {
	Error *string     `json:"error"`
	Data  interface{} `json:"data"`
}

// tpl is the envelope for all HTML template executions.
type tpl struct {
	Config *hub.Config
	Data   tplData
}

type tplData struct {
	Title       string
	Description string
}

// roomResp is the public view of a room's ledger record.
type roomResp struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Messages  int        `json:"messages"`
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	return true
}}

// handleIndex renders the chat page.
func handleIndex(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context().Value(ctxKey{}).(*reqCtx)
		app = ctx.app
	)
	respondHTML("index", tplData{
		Title: app.cfg.Name,
	}, http.StatusOK, w, app)
}

// handleWS upgrades a request to a websocket and hands the connection to
// the hub as a new idle client.
func handleWS(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context().Value(ctxKey{}).(*reqCtx)
		app = ctx.app
	)

	// Create the WS connection.
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.logger.Printf("Websocket upgrade failed: %s: %v", r.RemoteAddr, err)
		return
	}

	// Create a new peer instance and register it with the hub.
	id := uuid.NewString()
	p := hub.NewPeer(id, ws, app.hub)
	if err := app.hub.Connect(id, p); err != nil {
		app.logger.Printf("error registering %s: %v", r.RemoteAddr, err)
		reason := hub.TypeHubShutdown
		if errors.Is(err, hub.ErrHubFull) {
			reason = hub.TypeHubFull
		}
		p.Reject(reason)
		return
	}

	go p.RunWriter()
	go p.RunListener()
}

// handleHealth is the healthcheck handler.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, true, nil, http.StatusOK)
}

// handleStats returns the hub's counters.
func handleStats(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context().Value(ctxKey{}).(*reqCtx)
		app = ctx.app
	)
	respondJSON(w, app.hub.Stats(), nil, http.StatusOK)
}

// handleGetRoom returns the ledger record of a room.
func handleGetRoom(w http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context().Value(ctxKey{}).(*reqCtx)
		app    = ctx.app
		roomID = chi.URLParam(r, "roomID")
	)

	room, err := app.store.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			respondJSON(w, nil, errors.New("room not found"), http.StatusNotFound)
			return
		}
		app.logger.Printf("error fetching room %s: %v", roomID, err)
		respondJSON(w, nil, errors.New("error fetching room"), http.StatusInternalServerError)
		return
	}

	out := roomResp{
		ID:        room.ID,
		Status:    hub.RoomActive.String(),
		CreatedAt: room.CreatedAt,
		Messages:  room.Messages,
	}
	if room.Closed() {
		out.Status = hub.RoomClosed.String()
		out.ClosedAt = &room.ClosedAt
		out.Reason = room.Reason
	}
	respondJSON(w, out, nil, http.StatusOK)
}

// respondJSON responds to an HTTP request with a generic payload or an error.
func respondJSON(w http.ResponseWriter, data interface{}, err error, statusCode int) {
	if statusCode == 0 {
		statusCode = http.StatusOK
	}

	out := jsonResp{Data: data}
	if err != nil {
		e := err.Error()
		out.Error = &e
	}
	b, err := json.Marshal(out)
	if err != nil {
		logger.Printf("error marshalling JSON response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	w.Write(b)
}

// respondHTML responds to an HTTP request with the HTML output of a given template.
func respondHTML(tplName string, data tplData, statusCode int, w http.ResponseWriter, app *App) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if statusCode > 0 {
		w.WriteHeader(statusCode)
	}

	err := app.tpl.ExecuteTemplate(w, tplName, tpl{
		Config: app.cfg,
		Data:   data,
	})
	if err != nil {
		app.logger.Printf("error rendering template %s: %s", tplName, err)
		w.Write([]byte("error rendering template"))
	}
}

// wrap is a middleware that attaches the app context to handlers.
func wrap(next http.HandlerFunc, app *App) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ctxKey{}, &reqCtx{app: app})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
