package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "modernc.org/sqlite"

	"nimbuschat/backend/internal/auth"
	"nimbuschat/backend/internal/billing"
	"nimbuschat/backend/internal/config"
	"nimbuschat/backend/internal/db"
	"nimbuschat/backend/internal/openrouter"
	"nimbuschat/backend/internal/store"
)

const testSigningSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"

func testConfig() config.Config {
	return config.Config{
		Environment:            "test",
		SiteBaseURL:            "http://localhost:3000",
		DefaultModel:           "openrouter/free",
		SessionJWTSecret:       "test-session-secret",
		IdentityWebhookSecret:  testSigningSecret,
		GenerateTimeoutSeconds: 5,
	}
}

func newTestHandler(t *testing.T, streamer completionStreamer) (Handler, *sql.DB) {
	return newTestHandlerWith(t, streamer, nil, nil, nil)
}

func newTestHandlerWith(
	t *testing.T,
	streamer completionStreamer,
	subscriptions billing.SubscriptionLookup,
	catalog modelLister,
	files fileObjectStore,
) (Handler, *sql.DB) {
	t.Helper()

	database, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	// A :memory: database exists per connection; one pooled connection keeps
	// the handler goroutines and the test on the same database.
	database.SetMaxOpenConns(1)
	if err := db.Migrate(database); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	cfg := testConfig()
	webhooks, err := auth.NewWebhookVerifier(cfg.IdentityWebhookSecret)
	if err != nil {
		t.Fatalf("webhook verifier: %v", err)
	}

	handler := NewHandler(
		cfg,
		database,
		store.New(database),
		auth.NewTokenParser(cfg.SessionJWTSecret),
		webhooks,
		subscriptions,
		streamer,
		catalog,
		files,
	)
	return handler, database
}

func seedModel(t *testing.T, st store.Store, backingModel string, premium bool) store.Model {
	t.Helper()
	model, err := st.UpsertModel(context.Background(), store.Model{
		Name:      "Test " + backingModel,
		Model:     backingModel,
		Provider:  "openrouter",
		Icon:      "openrouter",
		IsPremium: premium,
		Cost:      boolCost(premium),
	})
	if err != nil {
		t.Fatalf("seed model: %v", err)
	}
	return model
}

func boolCost(premium bool) int {
	if premium {
		return 5
	}
	return 0
}

func seedUser(t *testing.T, st store.Store, authID string, model store.Model) store.User {
	t.Helper()
	user, err := st.CreateUser(context.Background(), authID, model.ID, authID+"@example.com")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func requestWithUser(req *http.Request, user store.User) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), requestUserContextKey, user))
}

func requestWithURLParam(req *http.Request, key, value string) *http.Request {
	routeContext, ok := req.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok {
		routeContext = chi.NewRouteContext()
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeContext))
	}
	routeContext.URLParams.Add(key, value)
	return req
}

func decodeJSONBody(t *testing.T, resp *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(resp.Body.Bytes(), target); err != nil {
		t.Fatalf("decode response: %v (body=%s)", err, resp.Body.String())
	}
}

// waitForChatStatus polls until the background generation moves the chat to
// the wanted status.
func waitForChatStatus(t *testing.T, st store.Store, chatID string, want store.ChatStatus) store.Chat {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		chat, err := st.GetChatByID(context.Background(), chatID)
		if err != nil {
			t.Fatalf("read chat: %v", err)
		}
		if chat.Status == want {
			return chat
		}
		time.Sleep(10 * time.Millisecond)
	}
	chat, _ := st.GetChatByID(context.Background(), chatID)
	t.Fatalf("chat %s never reached status %s (last %s)", chatID, want, chat.Status)
	return store.Chat{}
}

type stubStreamer struct {
	tokens    []string
	usage     *openrouter.Usage
	err       error
	onRequest func(openrouter.StreamRequest)
}

func (s stubStreamer) StreamChatCompletion(
	_ context.Context,
	req openrouter.StreamRequest,
	onStart func() error,
	onDelta func(string) error,
	onUsage func(openrouter.Usage) error,
) error {
	if s.onRequest != nil {
		s.onRequest(req)
	}
	if onStart != nil {
		if err := onStart(); err != nil {
			return err
		}
	}
	for _, token := range s.tokens {
		if err := onDelta(token); err != nil {
			return err
		}
	}
	if s.usage != nil && onUsage != nil {
		if err := onUsage(*s.usage); err != nil {
			return err
		}
	}
	return s.err
}

type stubCatalog struct {
	models []openrouter.Model
	err    error
}

func (s stubCatalog) ListModels(context.Context) ([]openrouter.Model, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.models, nil
}

type stubBilling struct {
	subscription *billing.Subscription
	err          error
}

func (s stubBilling) ActiveSubscription(context.Context, string) (*billing.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.subscription, nil
}

type stubFileStore struct {
	objects map[string][]byte
	putErr  error
}

func newStubFileStore() *stubFileStore {
	return &stubFileStore{objects: make(map[string][]byte)}
}

func (s *stubFileStore) Backend() string { return "stub" }

func (s *stubFileStore) ObjectKey(userID, fileID, filename string) string {
	return userScopedKey("", userID, fileID, filename)
}

func (s *stubFileStore) PutObject(_ context.Context, objectPath, _ string, data []byte) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[objectPath] = data
	return nil
}

func (s *stubFileStore) DeleteObject(_ context.Context, objectPath string) error {
	delete(s.objects, objectPath)
	return nil
}
