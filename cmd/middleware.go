package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"messengerBack/internal/auth"
	"messengerBack/internal/handlers"
	"messengerBack/internal/models"
)

var errUnauthenticated = errors.New("unauthenticated")

func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("X-Frame-Options", "deny")
		next.ServeHTTP(w, r)
	})
}

func makeResponseJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (app *application) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app.infoLog.Printf("%s - %s %s %s", r.RemoteAddr, r.Proto, r.Method, r.URL.RequestURI())
		next.ServeHTTP(w, r)
	})
}

func (app *application) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")
				app.serverError(w, fmt.Errorf("%s", err))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// principal is the caller resolved from an access token, a Firebase ID token
// or a refresh session.
type principal struct {
	UserID   string
	Role     string
	Identity *auth.Identity
	// RenewedAccess is set when the access token was reissued from the
	// refresh session.
	RenewedAccess string
}

func (app *application) authenticate(ctx context.Context, accessToken, refreshToken string) (principal, error) {
	if accessToken != "" {
		// 1) our own access token
		if claims, err := app.issuer.Parse(accessToken); err == nil {
			return principal{UserID: claims.UserID, Role: claims.Role}, nil
		}

		// 2) Firebase ID token from the mobile client
		if app.firebaseAuth != nil {
			if identity, err := app.firebaseAuth.Verify(ctx, accessToken); err == nil {
				role := models.RoleUser
				if user, err := app.userRepo.GetUserByID(ctx, identity.UID); err == nil && user.Role != "" {
					role = user.Role
				}
				return principal{UserID: identity.UID, Role: role, Identity: &identity}, nil
			}
		}
	}

	// 3) access token missing or invalid, fall back to the refresh session
	if refreshToken == "" {
		return principal{}, errUnauthenticated
	}
	newAccessToken, session, err := app.userService.RefreshAccessToken(ctx, refreshToken)
	if err != nil {
		return principal{}, err
	}
	return principal{UserID: session.UserID, Role: session.Role, RenewedAccess: newAccessToken}, nil
}

func (app *application) JWTMiddleware(next http.Handler, requiredRole string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken, err := auth.BearerTokenFromRequest(r)
		refreshToken := strings.TrimSpace(r.Header.Get("Refresh-Token"))
		if err != nil && refreshToken == "" {
			app.clientError(w, http.StatusUnauthorized, "Authorization header missing or invalid")
			return
		}

		p, err := app.authenticate(r.Context(), accessToken, refreshToken)
		if err != nil {
			if refreshToken != "" {
				app.clientError(w, http.StatusUnauthorized, "Invalid refresh token")
				return
			}
			app.clientError(w, http.StatusUnauthorized, "Invalid access token")
			return
		}
		if p.RenewedAccess != "" {
			w.Header().Set("Authorization", "Bearer "+p.RenewedAccess)
		}

		switch requiredRole {
		case models.RoleAdmin:
			if p.Role != models.RoleAdmin {
				app.clientError(w, http.StatusForbidden, "Forbidden: only admins allowed")
				return
			}
		case models.RoleUser:
			if p.Role != models.RoleUser && p.Role != models.RoleAdmin {
				app.clientError(w, http.StatusForbidden, "Forbidden: only users or admins allowed")
				return
			}
		}

		ctx := handlers.ContextWithUser(r.Context(), p.UserID, p.Role)
		if p.Identity != nil {
			ctx = handlers.ContextWithIdentity(ctx, *p.Identity)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
