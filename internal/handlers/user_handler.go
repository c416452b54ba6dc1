package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"messengerBack/internal/models"
	"messengerBack/internal/services"
)

type UserHandler struct {
	Service *services.UserService
}

func (h *UserHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req models.SignUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.Service.SignUp(r.Context(), req)
	if err != nil {
		writeServiceError(w, "SignUp", err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *UserHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req models.SignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.Service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, "SignIn", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Refresh exchanges a refresh token, from the body or the Refresh-Token
// header, for a new access token.
func (h *UserHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := refreshTokenFromRequest(r)

	accessToken, _, err := h.Service.RefreshAccessToken(r.Context(), refreshToken)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) || errors.Is(err, models.ErrSessionExpired) {
			writeError(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}
		writeServiceError(w, "Refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, models.Tokens{AccessToken: accessToken, RefreshToken: refreshToken})
}

func (h *UserHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.Service.SignOut(r.Context(), userID, refreshTokenFromRequest(r)); err != nil {
		writeServiceError(w, "SignOut", err)
		return
	}
	writeMessage(w, http.StatusOK, "signed out")
}

func (h *UserHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req models.PasswordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.Service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, "RequestPasswordReset", err)
		return
	}
	writeMessage(w, http.StatusOK, "If the email is registered, a reset code has been sent")
}

func (h *UserHandler) VerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyResetCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, err := h.Service.VerifyResetCode(r.Context(), req.Email, req.Code)
	if err != nil {
		writeServiceError(w, "VerifyResetCode", err)
		return
	}
	writeJSON(w, http.StatusOK, models.VerifyResetCodeResponse{ResetToken: token})
}

func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req models.NewPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.Service.ResetPassword(r.Context(), req.ResetToken, req.NewPassword); err != nil {
		writeServiceError(w, "ResetPassword", err)
		return
	}
	writeMessage(w, http.StatusOK, "password changed")
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	user, err := h.Service.GetUserByID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "Me", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req models.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.Service.UpdateProfile(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, "UpdateMe", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// CreateProfile stores the profile of a Firebase-authenticated account.
func (h *UserHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "a Firebase ID token is required")
		return
	}
	var req models.CreateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.Service.CreateProfile(r.Context(), identity, req)
	if err != nil {
		writeServiceError(w, "CreateProfile", err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.Service.DeleteAccount(r.Context(), userID); err != nil {
		writeServiceError(w, "DeleteMe", err)
		return
	}
	writeMessage(w, http.StatusOK, "account deleted")
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req models.UpdatePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		writeServiceError(w, "ChangePassword", models.ErrMissingFields)
		return
	}

	if err := h.Service.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		writeServiceError(w, "ChangePassword", err)
		return
	}
	writeMessage(w, http.StatusOK, "password changed")
}

func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	upload, err := readImageUpload(r, "avatar")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.Service.UploadAvatar(r.Context(), userID, upload.Data, upload.ContentType, upload.Ext)
	if err != nil {
		writeServiceError(w, "UploadAvatar", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) DeleteAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	user, err := h.Service.DeleteAvatar(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "DeleteAvatar", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// GetUserByID returns the public summary of another user.
func (h *UserHandler) GetUserByID(w http.ResponseWriter, r *http.Request) {
	id := getParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing user ID")
		return
	}

	user, err := h.Service.GetUserSummary(r.Context(), id)
	if err != nil {
		writeServiceError(w, "GetUserByID", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func refreshTokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get("Refresh-Token")); token != "" {
		return token
	}
	if r.Body == nil || r.ContentLength == 0 {
		return ""
	}
	var req models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ""
	}
	return strings.TrimSpace(req.RefreshToken)
}
