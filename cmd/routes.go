package main

import (
	"net/http"
	"strings"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"

	"messengerBack/internal/models"
)

func (app *application) JWTMiddlewareWithRole(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return app.JWTMiddleware(next, requiredRole)
	}
}

func (app *application) routes() http.Handler {
	standardMiddleware := alice.New(app.recoverPanic, app.logRequest, secureHeaders, makeResponseJSON)
	authMiddleware := standardMiddleware.Append(app.JWTMiddlewareWithRole(models.RoleUser))
	adminAuthMiddleware := standardMiddleware.Append(app.JWTMiddlewareWithRole(models.RoleAdmin))

	mux := pat.New()

	// Users, public
	mux.Post("/user/sign_up", standardMiddleware.ThenFunc(app.userHandler.SignUp))
	mux.Post("/user/sign_in", standardMiddleware.ThenFunc(app.userHandler.SignIn))
	mux.Post("/user/refresh", standardMiddleware.ThenFunc(app.userHandler.Refresh))
	mux.Post("/user/request_reset", standardMiddleware.ThenFunc(app.userHandler.RequestPasswordReset))
	mux.Post("/user/verify_reset_code", standardMiddleware.ThenFunc(app.userHandler.VerifyResetCode))
	mux.Post("/user/reset_password", standardMiddleware.ThenFunc(app.userHandler.ResetPassword))

	// Users, authenticated. /user/me must be registered before /user/:id.
	mux.Post("/user/sign_out", authMiddleware.ThenFunc(app.userHandler.SignOut))
	mux.Post("/user/profile", authMiddleware.ThenFunc(app.userHandler.CreateProfile))
	mux.Get("/user/me", authMiddleware.ThenFunc(app.userHandler.Me))
	mux.Put("/user/me", authMiddleware.ThenFunc(app.userHandler.UpdateMe))
	mux.Del("/user/me", authMiddleware.ThenFunc(app.userHandler.DeleteMe))
	mux.Post("/user/me/password", authMiddleware.ThenFunc(app.userHandler.ChangePassword))
	mux.Post("/user/me/avatar", authMiddleware.ThenFunc(app.userHandler.UploadAvatar))
	mux.Del("/user/me/avatar", authMiddleware.ThenFunc(app.userHandler.DeleteAvatar))
	mux.Get("/user/:id", authMiddleware.ThenFunc(app.userHandler.GetUserByID))

	// Contacts
	mux.Get("/api/contacts", authMiddleware.ThenFunc(app.contactHandler.SearchContacts))

	// Chats. /api/chats/search must be registered before /api/chats/:id.
	mux.Post("/api/chats", authMiddleware.ThenFunc(app.chatHandler.CreateChat))
	mux.Get("/api/chats", authMiddleware.ThenFunc(app.chatHandler.ListChats))
	mux.Get("/api/chats/search", authMiddleware.ThenFunc(app.chatHandler.SearchChats))
	mux.Get("/api/chats/:id", authMiddleware.ThenFunc(app.chatHandler.GetChatByID))
	mux.Del("/api/chats/:id", authMiddleware.ThenFunc(app.chatHandler.DeleteChat))
	mux.Post("/api/chats/:id/leave", authMiddleware.ThenFunc(app.chatHandler.LeaveChat))
	mux.Post("/api/chats/:id/participants", authMiddleware.ThenFunc(app.chatHandler.AddParticipants))

	// Messages
	mux.Post("/api/chats/:id/messages", authMiddleware.ThenFunc(app.messageHandler.CreateMessage))
	mux.Get("/api/chats/:id/messages", authMiddleware.ThenFunc(app.messageHandler.GetMessagesForChat))
	mux.Del("/api/messages/:id", authMiddleware.ThenFunc(app.messageHandler.DeleteMessage))

	// Push tokens
	mux.Post("/api/device_tokens", authMiddleware.ThenFunc(app.fcmHandler.CreateToken))
	mux.Del("/api/device_tokens/:token", authMiddleware.ThenFunc(app.fcmHandler.DeleteToken))

	// Admin
	mux.Get("/admin/chats", adminAuthMiddleware.ThenFunc(app.chatHandler.GetAllChats))

	// Realtime. The upgrade authenticates on its own so that browsers can pass
	// the token as a query parameter or in the first frame.
	mux.Get("/ws", alice.New(app.recoverPanic, app.logRequest).ThenFunc(app.WebSocketHandler))

	if app.uploadsDir != "" {
		prefix := strings.TrimRight(app.cfg.Storage.LocalURL, "/") + "/"
		mux.Get(prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(app.uploadsDir))))
	}

	return mux
}
