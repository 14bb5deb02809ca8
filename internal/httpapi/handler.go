package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"

	"nimbuschat/backend/internal/auth"
	"nimbuschat/backend/internal/billing"
	"nimbuschat/backend/internal/config"
	"nimbuschat/backend/internal/openrouter"
	"nimbuschat/backend/internal/store"
	"nimbuschat/backend/internal/stream"
)

type completionStreamer interface {
	StreamChatCompletion(
		ctx context.Context,
		req openrouter.StreamRequest,
		onStart func() error,
		onDelta func(string) error,
		onUsage func(openrouter.Usage) error,
	) error
}

type modelLister interface {
	ListModels(ctx context.Context) ([]openrouter.Model, error)
}

type Handler struct {
	cfg      config.Config
	db       *sql.DB
	store    store.Store
	tokens   auth.TokenParser
	webhooks auth.WebhookVerifier
	billing  billing.SubscriptionLookup
	llm      completionStreamer
	catalog  modelLister
	files    fileObjectStore
	driven   *drivenRegistry
}

func NewHandler(
	cfg config.Config,
	db *sql.DB,
	st store.Store,
	tokens auth.TokenParser,
	webhooks auth.WebhookVerifier,
	subscriptions billing.SubscriptionLookup,
	llm completionStreamer,
	catalog modelLister,
	files fileObjectStore,
) Handler {
	return Handler{
		cfg:      cfg,
		db:       db,
		store:    st,
		tokens:   tokens,
		webhooks: webhooks,
		billing:  subscriptions,
		llm:      llm,
		catalog:  catalog,
		files:    files,
		driven:   newDrivenRegistry(),
	}
}

type contextKey string

const requestUserContextKey contextKey = "request_user"

func (h Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// WithIdentity resolves an optional Bearer session token into a user. Absent
// or invalid credentials leave the request anonymous; handlers that need a
// user stack RequireUser on top.
func (h Handler) WithIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawToken := bearerToken(r)
		if rawToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := h.tokens.Parse(rawToken)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		user, err := h.store.GetUserByAuthID(r.Context(), identity.AuthID)
		if errors.Is(err, store.ErrNotFound) {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error", "failed to resolve user")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestUserContextKey, user)))
	})
}

func (h Handler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requestUserFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid session token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type authMeResponse struct {
	User      *store.User `json:"user"`
	IsFree    bool        `json:"isFree"`
	IsPremium bool        `json:"isPremium"`
}

// AuthMe is a public read: anonymous callers get a null user rather than an
// error so the client can render the signed-out state from the same call.
func (h Handler) AuthMe(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, authMeResponse{User: nil})
		return
	}

	isPremium := h.userIsPremium(r.Context(), user)
	writeJSON(w, http.StatusOK, authMeResponse{
		User:      &user,
		IsFree:    !isPremium,
		IsPremium: isPremium,
	})
}

// userIsPremium asks the billing provider for a live subscription. A lookup
// failure degrades to free so the read path never blocks on billing.
func (h Handler) userIsPremium(ctx context.Context, user store.User) bool {
	if h.billing == nil {
		return false
	}
	subscription, err := h.billing.ActiveSubscription(ctx, user.AuthID)
	if err != nil {
		log.Printf("subscription lookup failed: user_id=%s err=%v", user.ID, err)
		return false
	}
	return subscription != nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

func requestUserFromContext(ctx context.Context) (store.User, bool) {
	value := ctx.Value(requestUserContextKey)
	if value == nil {
		return store.User{}, false
	}
	user, ok := value.(store.User)
	return user, ok
}

// drivenRegistry holds one driven-id set per user so a regenerate issued in
// one session never changes how another user's reads render.
type drivenRegistry struct {
	mu   sync.Mutex
	sets map[string]*stream.DrivenSet
}

func newDrivenRegistry() *drivenRegistry {
	return &drivenRegistry{sets: make(map[string]*stream.DrivenSet)}
}

func (r *drivenRegistry) forUser(userID string) *stream.DrivenSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sets[userID]
	if !ok {
		set = stream.NewDrivenSet()
		r.sets[userID] = set
	}
	return set
}
