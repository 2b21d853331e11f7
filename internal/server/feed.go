package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/satchelwiki/satchel/internal/model"
)

// feedCursor extracts the resume cursor: the Last-Event-ID header wins,
// then the last_known_tiddler_id query parameter, then zero.
func feedCursor(r *http.Request) (int64, error) {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("last_known_tiddler_id")
	}
	if raw == "" {
		return 0, nil
	}
	cursor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cursor < 0 {
		return 0, model.NewValidationError("last_known_tiddler_id", "must be a non-negative integer")
	}
	return cursor, nil
}

// handleRecipeEvents serves the live change feed for a recipe over SSE.
// The listener is registered before the backlog query runs, so a write
// committed between the two lands in the channel instead of being lost;
// the lastID watermark drops anything the backlog already delivered.
func (s *Server) handleRecipeEvents(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil
	}
	cursor, err := feedCursor(r)
	if err != nil {
		return err
	}
	name := rc.Vars["recipe"]
	rec, err := s.store.GetRecipe(r.Context(), name)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := make(chan model.Revision, 64)
	unsubscribe := s.bus.Subscribe(rec.BagNames(), func(rev model.Revision) {
		select {
		case ch <- rev:
		default:
			// Client is too slow to keep exactness; close the stream and
			// let it resume from its cursor.
			cancel()
		}
	})
	defer unsubscribe()

	backlog, err := s.resolver.ChangesSince(ctx, name, cursor, true)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	fmt.Fprint(w, ": stream online\n\n")
	flusher.Flush()

	lastID := cursor
	for _, rev := range backlog {
		if err := writeSSEChange(w, rec, rev); err != nil {
			return nil
		}
		lastID = rev.ID
	}
	flusher.Flush()

	var heartbeat <-chan time.Time
	if s.heartbeat > 0 {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case rev := <-ch:
			if rev.ID <= lastID {
				continue
			}
			if err := writeSSEChange(w, rec, rev); err != nil {
				return nil
			}
			lastID = rev.ID
			flusher.Flush()
		case <-heartbeat:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

func writeSSEChange(w http.ResponseWriter, rec *model.Recipe, rev model.Revision) error {
	data, err := json.Marshal(changeRecord{Revision: rev, Position: rec.PositionOf(rev.Bag)})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: change\ndata: %s\n\n", rev.ID, data)
	return err
}

// handleRecipeEventsWS carries the same change records over a websocket
// for clients that cannot consume SSE. Heartbeats become ping frames.
func (s *Server) handleRecipeEventsWS(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	cursor, err := feedCursor(r)
	if err != nil {
		return err
	}
	name := rc.Vars["recipe"]
	rec, err := s.store.GetRecipe(r.Context(), name)
	if err != nil {
		return err
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rc.Logger.Error("websocket upgrade failed", "err", err)
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader goroutine: we never expect client frames, but reading is
	// how the close handshake surfaces.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ch := make(chan model.Revision, 64)
	unsubscribe := s.bus.Subscribe(rec.BagNames(), func(rev model.Revision) {
		select {
		case ch <- rev:
		default:
			cancel()
		}
	})
	defer unsubscribe()

	backlog, err := s.resolver.ChangesSince(ctx, name, cursor, true)
	if err != nil {
		return nil
	}

	lastID := cursor
	for _, rev := range backlog {
		if err := conn.WriteJSON(changeRecord{Revision: rev, Position: rec.PositionOf(rev.Bag)}); err != nil {
			return nil
		}
		lastID = rev.ID
	}

	var heartbeat <-chan time.Time
	if s.heartbeat > 0 {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case rev := <-ch:
			if rev.ID <= lastID {
				continue
			}
			if err := conn.WriteJSON(changeRecord{Revision: rev, Position: rec.PositionOf(rev.Bag)}); err != nil {
				return nil
			}
			lastID = rev.ID
		case <-heartbeat:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return nil
			}
		}
	}
}
