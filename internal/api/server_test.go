package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IliaW/name-check-worker/config"
	"github.com/IliaW/name-check-worker/internal/analyser"
	"github.com/IliaW/name-check-worker/internal/crawler"
	"github.com/IliaW/name-check-worker/internal/llm"
	"github.com/IliaW/name-check-worker/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type memCache struct {
	mu   sync.Mutex
	data map[string]model.NameCheckResult
	sets int
}

func (c *memCache) key(payload any) string {
	b, _ := json.Marshal(payload)
	return string(b)
}

func (c *memCache) Get(payload any) (*model.NameCheckResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.data[c.key(payload)]
	if !ok {
		return nil, false
	}
	r.Cached = true
	return &r, true
}

func (c *memCache) Set(payload any, result *model.NameCheckResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = map[string]model.NameCheckResult{}
	}
	c.data[c.key(payload)] = *result
	c.sets++
}

func (c *memCache) Close() {}

type fixedStatus struct{ online bool }

func (f fixedStatus) Check(context.Context) *crawler.Status {
	return &crawler.Status{Online: f.online, Message: "MCA website is up and running."}
}

func newServer(tasks chan *model.NameCheckTask, c *memCache) *Server {
	cfg := &config.Config{Version: "test", Port: "0"}
	a := analyser.New(llm.NewService(nil, &config.LlmConfig{}, discard), discard)
	return NewServer(tasks, a, c, fixedStatus{online: true}, cfg, discard)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newServer(nil, &memCache{}), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"status":"healthy","version":"test"}}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	rec := do(t, newServer(nil, &memCache{}), http.MethodGet, "/status", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gjson.Get(rec.Body.String(), "success").Bool())
	assert.Equal(t, "MCA website is up and running.", gjson.Get(rec.Body.String(), "data.message").String())
}

func TestCheckName(t *testing.T) {
	tasks := make(chan *model.NameCheckTask, 1)
	s := newServer(tasks, &memCache{})
	go func() {
		task := <-tasks
		task.Reply <- &model.NameCheckResult{ID: task.ID, Name: task.Name, Success: true,
			Analysis: &model.Analysis{Verdict: model.Valid}}
	}()

	rec := do(t, s, http.MethodPost, "/check_name", `{"names":[" ACME ROBOTICS ","other"],"check_type":"company","nic_code":"62011"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, gjson.Get(body, "success").Bool())
	assert.Equal(t, "ACME ROBOTICS", gjson.Get(body, "data.name").String())
	assert.Equal(t, "VALID", gjson.Get(body, "data.analysis.verdict").String())
	assert.NotEmpty(t, gjson.Get(body, "data.id").String())
}

func TestCheckNameFailureEnvelope(t *testing.T) {
	tasks := make(chan *model.NameCheckTask, 1)
	s := newServer(tasks, &memCache{})
	go func() {
		task := <-tasks
		task.Reply <- &model.NameCheckResult{ID: task.ID, Error: "Login to the portal failed. Please try again later."}
	}()

	rec := do(t, s, http.MethodPost, "/check_name", `{"names":["ACME ROBOTICS"]}`)

	assert.JSONEq(t, `{"success":false,"data":null,"error":"Login to the portal failed. Please try again later."}`,
		rec.Body.String())
}

func TestCheckNameValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{`, "invalid request body"},
		{"no names", `{"names":[]}`, "no names provided"},
		{"blank name", `{"names":["  "]}`, "name cannot be empty or whitespace"},
		{"too many", `{"names":[` + strings.Repeat(`"a",`, maxNames) + `"a"]}`, "too many names provided"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newServer(make(chan *model.NameCheckTask, 1), &memCache{}), http.MethodPost, "/check_name", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, gjson.Get(rec.Body.String(), "error").String())
		})
	}
}

func TestCheckNameQueueFull(t *testing.T) {
	tasks := make(chan *model.NameCheckTask)

	rec := do(t, newServer(tasks, &memCache{}), http.MethodPost, "/check_name", `{"names":["ACME ROBOTICS"]}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, gjson.Get(rec.Body.String(), "success").Bool())
	assert.Equal(t, "The server is busy. Please try again later.", gjson.Get(rec.Body.String(), "error").String())
}

func TestCheckNameAfterStop(t *testing.T) {
	tasks := make(chan *model.NameCheckTask, 1)
	s := newServer(tasks, &memCache{})
	s.Stop()
	close(tasks)

	var rec *httptest.ResponseRecorder
	assert.NotPanics(t, func() {
		rec = do(t, s, http.MethodPost, "/check_name", `{"names":["ACME ROBOTICS"]}`)
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "The service is shutting down. Please try again later.", gjson.Get(rec.Body.String(), "error").String())
}

const conflictJSON = `{
	"error": [{"severity": "Error", "subject": "Name", "message": "Name is too similar to an existing company"}],
	"name_similarity": [{"name": "ACME ROBOTICS PRIVATE LIMITED"}]
}`

func TestConflictCheck(t *testing.T) {
	c := &memCache{}
	s := newServer(nil, c)

	rec := do(t, s, http.MethodPost, "/conflict-check", conflictJSON)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "NOT VALID", gjson.Get(body, "data.analysis.verdict").String())
	n := gjson.Get(body, "data.analysis.recommended_names.#").Int()
	assert.GreaterOrEqual(t, n, int64(3))
	assert.LessOrEqual(t, n, int64(7))
	assert.False(t, gjson.Get(body, "data.cached").Bool())

	again := do(t, s, http.MethodPost, "/conflict-check", conflictJSON)
	assert.True(t, gjson.Get(again.Body.String(), "data.cached").Bool())
	assert.Equal(t, 1, c.sets)
}

func TestConflictCheckRejectsInput(t *testing.T) {
	s := newServer(nil, &memCache{})

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/conflict-check", `[1,2]`).Code)

	rec := do(t, s, http.MethodPost, "/conflict-check", `{"trademark":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "The portal did not return any name check results.", gjson.Get(rec.Body.String(), "error").String())
}

func TestRunStopsOnCancel(t *testing.T) {
	s := newServer(nil, &memCache{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
