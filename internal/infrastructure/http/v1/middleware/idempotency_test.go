package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerd/internal/core/apperror"
	"ledgerd/internal/infrastructure/http/v1/middleware"
	"ledgerd/internal/infrastructure/storage/postgres"
)

type storedResponse struct {
	status      int
	contentType string
	body        []byte
	final       string
}

type fakeIdempotencyStore struct {
	mu      sync.Mutex
	keys    map[string]*storedResponse
	actors  map[string]string
	release int
}

func newFakeStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{keys: map[string]*storedResponse{}, actors: map[string]string{}}
}

func (s *fakeIdempotencyStore) AcquireKey(_ context.Context, key, actorID, _, _ string) (*postgres.IdempotencyReplay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.keys[key]; ok {
		if r.final == "" {
			return nil, apperror.NewConcurrentModification("idempotency_key", key)
		}
		return &postgres.IdempotencyReplay{StatusCode: r.status, ContentType: r.contentType, Body: r.body}, nil
	}
	s.keys[key] = &storedResponse{}
	s.actors[key] = actorID
	return nil, nil
}

func (s *fakeIdempotencyStore) finish(key, final string, status int, contentType string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = &storedResponse{status: status, contentType: contentType, body: body, final: final}
}

func (s *fakeIdempotencyStore) CompleteKey(_ context.Context, key string, status int, contentType string, body []byte) error {
	s.finish(key, "completed", status, contentType, body)
	return nil
}

func (s *fakeIdempotencyStore) FailKey(_ context.Context, key string, status int, contentType string, body []byte) error {
	s.finish(key, "failed", status, contentType, body)
	return nil
}

func (s *fakeIdempotencyStore) ReleaseKey(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	s.release++
	return nil
}

func newIdempotentRouter(store middleware.IdempotencyStore, handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Actor(), middleware.Idempotency(store), middleware.ErrorHandler())
	r.POST("/things", handler)
	r.GET("/things", handler)
	return r
}

func post(r http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/things", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderActorID, "clerk-1")
	if key != "" {
		req.Header.Set(middleware.HeaderIdempotencyKey, key)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestIdempotency_ReplaysCompletedResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	r := newIdempotentRouter(store, func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"call": calls})
	})

	first := post(r, "k-1", `{"a":1}`)
	second := post(r, "k-1", `{"a":1}`)

	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, 1, calls)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(middleware.HeaderReplayed))
	assert.Empty(t, first.Header().Get(middleware.HeaderReplayed))
	assert.Equal(t, "clerk-1", store.actors["k-1"])
}

func TestIdempotency_StoresBusinessErrors(t *testing.T) {
	store := newFakeStore()
	r := newIdempotentRouter(store, func(c *gin.Context) {
		_ = c.Error(apperror.NewBusinessRule("RULE", "not allowed"))
		c.Abort()
	})

	rec := post(r, "k-2", `{}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, store.keys, "k-2")
	assert.Equal(t, "failed", store.keys["k-2"].final)
	assert.Contains(t, string(store.keys["k-2"].body), "not allowed")
}

func TestIdempotency_ReleasesRetryableErrors(t *testing.T) {
	store := newFakeStore()
	r := newIdempotentRouter(store, func(c *gin.Context) {
		_ = c.Error(apperror.NewConcurrentModification("invoice", "x"))
		c.Abort()
	})

	rec := post(r, "k-3", `{}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NotContains(t, store.keys, "k-3")
	assert.Equal(t, 1, store.release)
}

func TestIdempotency_PassThrough(t *testing.T) {
	calls := 0
	handler := func(c *gin.Context) {
		calls++
		c.Status(http.StatusNoContent)
	}

	t.Run("no key", func(t *testing.T) {
		store := newFakeStore()
		r := newIdempotentRouter(store, handler)
		post(r, "", `{}`)
		post(r, "", `{}`)
		assert.Empty(t, store.keys)
	})

	t.Run("nil store", func(t *testing.T) {
		r := newIdempotentRouter(nil, handler)
		rec := post(r, "k-4", `{}`)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	assert.Equal(t, 3, calls)
}
