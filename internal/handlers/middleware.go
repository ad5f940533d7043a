package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"converse-backend/internal/apperr"
	"converse-backend/internal/jwt"
)

type userIDKeyType struct{}

const userExistsTTL = 15 * time.Minute

func userID(r *http.Request) int64 {
	return r.Context().Value(userIDKeyType{}).(int64)
}

// bearerToken takes the credential from the Authorization header, falling
// back to the JWT cookie browsers send on the websocket handshake.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		token, found := strings.CutPrefix(header, "Bearer ")
		if found {
			return strings.TrimSpace(token)
		}
		return ""
	}

	cookie, err := r.Cookie(jwt.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (h *Handler) UserVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			h.Error(w, r, apperr.New(apperr.Unauthenticated, "No token provided. Please login first."))
			return
		}

		userToken, err := h.issuer.VerifyToken(token)
		if err != nil {
			h.sugar.Debug(err)
			h.Error(w, r, apperr.New(apperr.Unauthenticated, "Token is not valid"))
			return
		}

		userFound, err := h.userExists(r.Context(), userToken.UserID)
		if err != nil {
			h.Error(w, r, err)
			return
		}

		// the account is gone but the token was kept
		if !userFound {
			expired := jwt.ExpiredCookie()
			http.SetCookie(w, &expired)
			h.Error(w, r, apperr.New(apperr.Unauthenticated, "User not found"))
			return
		}

		// only cookie sessions are renewed, bearer clients log in again
		if _, err := r.Cookie(jwt.CookieName); err == nil && h.issuer.NeedsRenewal(userToken) {
			renewed, expires, err := h.issuer.CreateToken(userToken.Remember, userToken.UserID)
			if err != nil {
				h.Error(w, r, fmt.Errorf("renewing token: %w", err))
				return
			}
			cookie := h.issuer.Cookie(renewed, userToken.Remember, expires)
			http.SetCookie(w, &cookie)
		}

		ctx := context.WithValue(r.Context(), userIDKeyType{}, userToken.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userExists asks the key value cache before going to the database.
func (h *Handler) userExists(ctx context.Context, userID int64) (bool, error) {
	key := fmt.Sprintf("user_exists:%d", userID)

	value, err := h.keyValue.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("reading user cache: %w", err)
	}
	if value != "" {
		h.sugar.Debugf("User ID [%d] was found in cache", userID)
		return true, nil
	}

	found, err := h.store.UserExists(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("checking user %d: %w", userID, err)
	}
	if !found {
		h.sugar.Debugf("User ID [%d] was not found in database", userID)
		return false, nil
	}

	if err := h.keyValue.Set(ctx, key, "y", userExistsTTL); err != nil {
		return false, fmt.Errorf("caching user: %w", err)
	}
	h.sugar.Debugf("User ID [%d] was found in database and was cached", userID)
	return true, nil
}
