package httpapi

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"nimbuschat/backend/internal/auth"
	"nimbuschat/backend/internal/store"
)

const maxWebhookBodyBytes = 1 << 20

// IdentityWebhook receives user lifecycle events from the identity provider.
// The signature check runs before anything from the payload is trusted; every
// branch after a valid signature answers {"status":"success"} so the provider
// stops retrying, except a missing default model which must surface as a 500.
func (h Handler) IdentityWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read webhook body")
		return
	}

	event, err := h.webhooks.Verify(payload, r.Header)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_signature", "webhook signature verification failed")
		return
	}

	switch event.Type {
	case auth.EventUserCreated:
		if err := h.handleUserCreated(r, event); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				log.Printf("webhook user.created failed: auth_id=%s err=default model %q is not in the catalog", event.Data.ID, h.cfg.DefaultModel)
				writeError(w, http.StatusInternalServerError, "default_model_missing", "default model is not in the catalog")
				return
			}
			log.Printf("webhook user.created failed: auth_id=%s err=%v", event.Data.ID, err)
			writeError(w, http.StatusInternalServerError, "db_error", "failed to create user")
			return
		}
	case auth.EventUserDeleted:
		if err := h.handleUserDeleted(r, event); err != nil {
			log.Printf("webhook user.deleted failed: auth_id=%s err=%v", event.Data.ID, err)
			writeError(w, http.StatusInternalServerError, "db_error", "failed to delete user")
			return
		}
	default:
		// user.updated and anything unrecognized are acknowledged no-ops.
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h Handler) handleUserCreated(r *http.Request, event auth.Event) error {
	authID := strings.TrimSpace(event.Data.ID)
	if authID == "" {
		return nil
	}

	_, err := h.store.GetUserByAuthID(r.Context(), authID)
	if err == nil {
		// Redelivered event; the user already exists.
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	model, err := h.store.GetModelByModel(r.Context(), h.cfg.DefaultModel)
	if err != nil {
		return err
	}

	user, err := h.store.CreateUser(r.Context(), authID, model.ID, event.PrimaryEmail())
	if err != nil {
		return err
	}
	log.Printf("user created from webhook: user_id=%s auth_id=%s", user.ID, authID)
	return nil
}

func (h Handler) handleUserDeleted(r *http.Request, event auth.Event) error {
	authID := strings.TrimSpace(event.Data.ID)
	if authID == "" {
		return nil
	}

	user, err := h.store.GetUserByAuthID(r.Context(), authID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := h.store.DeleteUser(r.Context(), user.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	log.Printf("user deleted from webhook: user_id=%s auth_id=%s", user.ID, authID)
	return nil
}
