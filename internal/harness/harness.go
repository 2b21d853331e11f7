package harness

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/satchelwiki/satchel/internal/auth"
	"github.com/satchelwiki/satchel/internal/config"
	"github.com/satchelwiki/satchel/internal/model"
	"github.com/satchelwiki/satchel/internal/server"
	"github.com/satchelwiki/satchel/internal/store"
)

// feedIdle is how long a feed step waits after the last event before
// treating the backlog as fully delivered.
const feedIdle = 300 * time.Millisecond

// TraceEvent records one executed flow step for golden comparison.
type TraceEvent struct {
	Step     int    `json:"step"`
	Method   string `json:"method,omitempty"`
	Path     string `json:"path,omitempty"`
	Status   int    `json:"status,omitempty"`
	Revision string `json:"revision,omitempty"`
	Feed     string `json:"feed,omitempty"`
	EventIDs string `json:"event_ids,omitempty"`
}

// Result captures a scenario execution.
type Result struct {
	Trace []TraceEvent
}

// runner holds the per-scenario world.
type runner struct {
	scenario *Scenario
	store    *store.Store
	ts       *httptest.Server
	client   *http.Client

	roles     map[string]int64
	passwords map[string]string
	sessions  map[string]string
}

// Run executes a scenario against a fresh in-process server. Expectation
// mismatches and assertion failures are returned as errors.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "satchel-harness-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	cfg := config.Default()
	cfg.DatabasePath = filepath.Join(dir, "satchel.db")
	cfg.AllowAnonReads = true
	cfg.AllowAnonWrites = true
	if scenario.Config.AllowAnonReads != nil {
		cfg.AllowAnonReads = *scenario.Config.AllowAnonReads
	}
	if scenario.Config.AllowAnonWrites != nil {
		cfg.AllowAnonWrites = *scenario.Config.AllowAnonWrites
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	// Heartbeats off: feed traces must not depend on wall-clock timing.
	srv := server.New(st, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)),
		server.WithHeartbeatInterval(0))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	r := &runner{
		scenario:  scenario,
		store:     st,
		ts:        ts,
		client:    ts.Client(),
		roles:     map[string]int64{},
		passwords: map[string]string{},
		sessions:  map[string]string{},
	}
	if err := r.applySetup(context.Background()); err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}

	result := &Result{}
	for i, step := range scenario.Flow {
		ev, err := r.runStep(i+1, step)
		if err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
		result.Trace = append(result.Trace, *ev)
	}

	if err := r.checkAssertions(context.Background()); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *runner) applySetup(ctx context.Context) error {
	for _, b := range r.scenario.Setup.Bags {
		bag := model.Bag{Name: b.Name, Description: b.Description}
		if b.TitlePrefix != "" {
			bag.Partition = &model.PartitionPolicy{TitlePrefix: b.TitlePrefix}
		}
		if err := r.store.CreateBag(ctx, bag); err != nil {
			return err
		}
	}
	for _, rec := range r.scenario.Setup.Recipes {
		recipe := model.Recipe{Name: rec.Name}
		for pos, bag := range rec.Bags {
			recipe.Bags = append(recipe.Bags, model.RecipeBag{Bag: bag, Position: pos})
		}
		if err := r.store.CreateRecipe(ctx, recipe); err != nil {
			return err
		}
	}
	for _, name := range r.scenario.Setup.Roles {
		role, err := r.store.CreateRole(ctx, model.Role{Name: name})
		if err != nil {
			return err
		}
		r.roles[name] = role.ID
	}
	for _, u := range r.scenario.Setup.Users {
		verifier, err := auth.HashPassword(u.Password)
		if err != nil {
			return err
		}
		user, err := r.store.CreateUser(ctx, model.User{
			Username: u.Username,
			Verifier: verifier,
			IsAdmin:  u.Admin,
		})
		if err != nil {
			return err
		}
		r.passwords[u.Username] = u.Password
		for _, roleName := range u.Roles {
			roleID, ok := r.roles[roleName]
			if !ok {
				return fmt.Errorf("user %s references unknown role %s", u.Username, roleName)
			}
			if err := r.store.AssignRole(ctx, user.ID, roleID); err != nil {
				return err
			}
		}
	}
	for _, g := range r.scenario.Setup.Grants {
		roleID, ok := r.roles[g.Role]
		if !ok {
			return fmt.Errorf("grant references unknown role %s", g.Role)
		}
		if _, err := r.store.CreateACL(ctx, model.ACLRecord{
			EntityType: model.EntityType(g.EntityType),
			EntityName: g.Entity,
			RoleID:     roleID,
			Permission: model.Permission(g.Permission),
		}); err != nil {
			return err
		}
	}
	return nil
}

// sessionFor logs the named setup user in on first use and caches the
// session id.
func (r *runner) sessionFor(username string) (string, error) {
	if id, ok := r.sessions[username]; ok {
		return id, nil
	}
	password, ok := r.passwords[username]
	if !ok {
		return "", fmt.Errorf("flow references unknown user %s", username)
	}
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := r.client.Post(r.ts.URL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login as %s failed with status %d", username, resp.StatusCode)
	}
	var lr struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", err
	}
	r.sessions[username] = lr.SessionID
	return lr.SessionID, nil
}

func (r *runner) runStep(step int, fs FlowStep) (*TraceEvent, error) {
	if fs.Feed != nil {
		return r.runFeedStep(step, fs)
	}
	return r.runRequestStep(step, fs)
}

func (r *runner) runRequestStep(step int, fs FlowStep) (*TraceEvent, error) {
	rs := fs.Request
	var body io.Reader
	if rs.JSON != nil {
		data, err := json.Marshal(rs.JSON)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(rs.Method, r.ts.URL+rs.Path, body)
	if err != nil {
		return nil, err
	}
	if rs.JSON != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range rs.Headers {
		req.Header.Set(k, v)
	}
	if rs.As != "" {
		session, err := r.sessionFor(rs.As)
		if err != nil {
			return nil, err
		}
		req.Header.Set(auth.SessionHeader, session)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	ev := &TraceEvent{
		Step:     step,
		Method:   rs.Method,
		Path:     rs.Path,
		Status:   resp.StatusCode,
		Revision: resp.Header.Get("X-Revision-Number"),
	}
	if fs.Expect == nil {
		return ev, nil
	}

	if fs.Expect.Status != 0 && resp.StatusCode != fs.Expect.Status {
		return nil, fmt.Errorf("%s %s: expected status %d, got %d (body %q)",
			rs.Method, rs.Path, fs.Expect.Status, resp.StatusCode, respBody)
	}
	for k, want := range fs.Expect.Headers {
		if got := resp.Header.Get(k); got != want {
			return nil, fmt.Errorf("%s %s: expected header %s=%q, got %q", rs.Method, rs.Path, k, want, got)
		}
	}
	for _, substr := range fs.Expect.BodyContains {
		if !strings.Contains(string(respBody), substr) {
			return nil, fmt.Errorf("%s %s: body does not contain %q", rs.Method, rs.Path, substr)
		}
	}
	return ev, nil
}

func (r *runner) runFeedStep(step int, fs FlowStep) (*TraceEvent, error) {
	feed := fs.Feed
	url := fmt.Sprintf("%s/recipes/%s/events?last_known_tiddler_id=%d", r.ts.URL, feed.Recipe, feed.Cursor)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if feed.As != "" {
		session, err := r.sessionFor(feed.As)
		if err != nil {
			return nil, err
		}
		req.Header.Set(auth.SessionHeader, session)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("feed %s: status %d", feed.Recipe, resp.StatusCode)
	}

	ids := collectFeedIDs(resp)

	ev := &TraceEvent{
		Step:     step,
		Feed:     feed.Recipe,
		EventIDs: joinIDs(ids),
	}
	if fs.Expect != nil && fs.Expect.EventIDs != nil {
		if joinIDs(ids) != joinIDs(fs.Expect.EventIDs) {
			return nil, fmt.Errorf("feed %s from cursor %d: expected event ids %v, got %v",
				feed.Recipe, feed.Cursor, fs.Expect.EventIDs, ids)
		}
	}
	return ev, nil
}

// collectFeedIDs reads SSE lines until the stream is quiet, then closes
// it and returns the event ids seen.
func collectFeedIDs(resp *http.Response) []int64 {
	lines := make(chan string)
	go func() {
		defer close(lines)
		rd := bufio.NewReader(resp.Body)
		for {
			line, err := rd.ReadString('\n')
			if err != nil {
				return
			}
			lines <- line
		}
	}()

	var ids []int64
	timer := time.NewTimer(feedIdle)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return ids
			}
			if strings.HasPrefix(line, "id: ") {
				raw := strings.TrimSpace(strings.TrimPrefix(line, "id: "))
				if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
					ids = append(ids, id)
				}
			}
			timer.Reset(feedIdle)
		case <-timer.C:
			resp.Body.Close()
			for range lines {
				// drain until the reader goroutine exits
			}
			return ids
		}
	}
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
