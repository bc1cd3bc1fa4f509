package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keepsake-go/internal/models"
	"keepsake-go/internal/push"
	"keepsake-go/internal/reminder"
	"keepsake-go/internal/store"
)

// memStore is an in-memory store.Store.
type memStore struct {
	mu     sync.Mutex
	users  map[string]models.User
	todos  map[int]models.Todo
	subs   map[string]models.PushSubscription
	nextID int
}

func newMemStore(t *testing.T) *memStore {
	t.Helper()
	hash, err := models.HashPassword("hunter2")
	require.NoError(t, err)
	return &memStore{
		users: map[string]models.User{"germaine": {ID: 1, Username: "germaine", PasswordHash: hash}},
		todos: map[int]models.Todo{},
		subs:  map[string]models.PushSubscription{},
	}
}

func (m *memStore) CreateUser(ctx context.Context, username, password string) (models.User, error) {
	return models.User{}, fmt.Errorf("not supported")
}

func (m *memStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *memStore) GetTodos(ctx context.Context, userID int) ([]models.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Todo{}
	for _, t := range m.todos {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) CreateTodo(ctx context.Context, userID int, t models.Todo) (models.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	t.UserID = userID
	m.todos[t.ID] = t
	return t, nil
}

func (m *memStore) UpdateTodo(ctx context.Context, userID, id int, u models.TodoUpdate) (models.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.todos[id]
	if !ok || t.UserID != userID {
		return models.Todo{}, store.ErrNotFound
	}
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.ReminderTime != nil {
		t.ReminderTime = u.ReminderTime
		t.ReminderSent = false
	}
	if u.TimezoneOffset != nil {
		t.TimezoneOffset = u.TimezoneOffset
	}
	if u.Completed != nil {
		t.Completed = *u.Completed
	}
	m.todos[id] = t
	return t, nil
}

func (m *memStore) DeleteTodo(ctx context.Context, userID, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.todos[id]
	if !ok || t.UserID != userID {
		return store.ErrNotFound
	}
	delete(m.todos, id)
	return nil
}

func (m *memStore) GetReminderCandidates(ctx context.Context) ([]models.ReminderCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ReminderCandidate
	for _, t := range m.todos {
		if t.ReminderTime == nil || t.ReminderSent || t.Completed {
			continue
		}
		offset := 0
		if t.TimezoneOffset != nil {
			offset = *t.TimezoneOffset
		}
		out = append(out, models.ReminderCandidate{ID: t.ID, UserID: t.UserID, Title: t.Title, ReminderTime: *t.ReminderTime, TimezoneOffset: offset})
	}
	return out, nil
}

func (m *memStore) MarkReminderSent(ctx context.Context, todoID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.todos[todoID]; ok {
		t.ReminderSent = true
		m.todos[todoID] = t
	}
	return nil
}

func (m *memStore) SavePushSubscription(ctx context.Context, userID int, endpoint, p256dh, auth string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[endpoint] = models.PushSubscription{Endpoint: endpoint, UserID: userID, P256dh: p256dh, Auth: auth}
	return nil
}

func (m *memStore) DeleteUserPushSubscription(ctx context.Context, userID int, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subs[endpoint]; ok && s.UserID == userID {
		delete(m.subs, endpoint)
	}
	return nil
}

func (m *memStore) GetPushSubscriptionsByUser(ctx context.Context, userID int) ([]models.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PushSubscription
	for _, s := range m.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) DeletePushSubscriptions(ctx context.Context, endpoints []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range endpoints {
		delete(m.subs, e)
	}
	return nil
}

type testServer struct {
	*httptest.Server
	store  *memStore
	cookie *http.Cookie
}

func newTestServer(t *testing.T, enabled bool) *testServer {
	t.Helper()
	s := newMemStore(t)

	gate := push.Configure(push.Credentials{})
	var sched *reminder.Scheduler
	if enabled {
		creds, err := push.GenerateKeys()
		require.NoError(t, err)
		creds.Subscriber = "test@example.com"
		gate = push.Configure(creds)
		sched, err = reminder.NewScheduler(gate, s, s)
		require.NoError(t, err)
	}

	h := NewHandler(s, gate, sched, "test-secret-test-secret-test-sec")
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: s}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if ts.cookie != nil {
		req.AddCookie(ts.cookie)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) login(t *testing.T) {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/login", map[string]string{"username": "germaine", "password": "hunter2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, c := range resp.Cookies() {
		if c.Name == sessionName {
			ts.cookie = c
		}
	}
	require.NotNil(t, ts.cookie)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t, false)

	resp := ts.do(t, http.MethodPost, "/api/login", map[string]string{"username": "germaine", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/login", map[string]string{"username": "nobody", "password": "hunter2"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	ts.login(t)
	resp = ts.do(t, http.MethodGet, "/api/todos", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoutesRequireSession(t *testing.T) {
	ts := newTestServer(t, true)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/todos"},
		{http.MethodPost, "/api/todos"},
		{http.MethodPut, "/api/todos/1"},
		{http.MethodPost, "/api/push/subscribe"},
		{http.MethodPost, "/api/push/unsubscribe"},
		{http.MethodPost, "/api/reminders/check"},
	} {
		resp := ts.do(t, tc.method, tc.path, map[string]string{})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", tc.method, tc.path)
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	ts := newTestServer(t, true)
	ts.login(t)

	resp := ts.do(t, http.MethodPost, "/api/push/subscribe", map[string]any{"endpoint": "https://push/1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	sub := map[string]any{"endpoint": "https://push/1", "keys": map[string]string{"p256dh": "key", "auth": "secret"}}
	resp = ts.do(t, http.MethodPost, "/api/push/subscribe", sub)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.PushSubscription{Endpoint: "https://push/1", UserID: 1, P256dh: "key", Auth: "secret"}, ts.store.subs["https://push/1"])

	resp = ts.do(t, http.MethodPost, "/api/push/unsubscribe", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/push/unsubscribe", map[string]string{"endpoint": "https://push/1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, ts.store.subs)
}

func TestVAPIDKey(t *testing.T) {
	disabled := newTestServer(t, false)
	resp := disabled.do(t, http.MethodGet, "/api/push/vapid-public-key", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	enabled := newTestServer(t, true)
	resp = enabled.do(t, http.MethodGet, "/api/push/vapid-public-key", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.NotEmpty(t, body["publicKey"])
}

func TestTodoLifecycle(t *testing.T) {
	ts := newTestServer(t, true)
	ts.login(t)

	resp := ts.do(t, http.MethodPost, "/api/todos", map[string]any{"title": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/todos", map[string]any{"title": "x", "reminder_time": "next tuesday"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/todos", map[string]any{"title": "x", "timezone_offset": 5000})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/todos", map[string]any{
		"title":           " book table ",
		"reminder_time":   "2025-06-01 09:00:00",
		"timezone_offset": -480,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[models.Todo](t, resp)
	assert.Equal(t, "book table", created.Title)
	require.NotNil(t, created.ReminderTime)
	assert.Equal(t, "2025-06-01T09:00", *created.ReminderTime)

	require.NoError(t, ts.store.MarkReminderSent(context.Background(), created.ID))

	path := fmt.Sprintf("/api/todos/%d", created.ID)
	resp = ts.do(t, http.MethodPut, path, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPut, path, map[string]any{"reminder_time": "2025-06-02T09:30"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[models.Todo](t, resp)
	assert.False(t, updated.ReminderSent)
	assert.Equal(t, "2025-06-02T09:30", *updated.ReminderTime)

	resp = ts.do(t, http.MethodPut, "/api/todos/999", map[string]any{"completed": true})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodPut, "/api/todos/abc", map[string]any{"completed": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/todos", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.Todo](t, resp), 1)

	resp = ts.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = ts.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCheckRemindersRoute(t *testing.T) {
	disabled := newTestServer(t, false)
	disabled.login(t)
	resp := disabled.do(t, http.MethodPost, "/api/reminders/check", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "manual run is unreachable without push credentials")

	enabled := newTestServer(t, true)
	enabled.login(t)
	resp = enabled.do(t, http.MethodPost, "/api/todos", map[string]any{"title": "long ago", "reminder_time": "2000-01-01T00:00"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = enabled.do(t, http.MethodPost, "/api/reminders/check", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[reminder.TickResult](t, resp)
	assert.True(t, res.Checked)
	assert.Equal(t, 1, res.Reminders)

	resp = enabled.do(t, http.MethodGet, "/api/reminders/check", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, false)

	resp := ts.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "ok", "push_enabled": false}, decode[map[string]any](t, resp))

	resp = ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPathID(t *testing.T) {
	id, ok := pathID("/api/todos/42", "/api/todos/")
	assert.True(t, ok)
	assert.Equal(t, 42, id)

	_, ok = pathID("/api/todos/", "/api/todos/")
	assert.False(t, ok)
	_, ok = pathID("/api/todos/-3", "/api/todos/")
	assert.False(t, ok)
}
