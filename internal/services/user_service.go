package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"messengerBack/internal/auth"
	"messengerBack/internal/models"
	"messengerBack/utils"
)

const (
	minPasswordLength = 6
	resetCodeAttempts = 5
	resetRequestLimit = 5
	resetWindow       = time.Hour
	avatarFolder      = "avatars"
	dateLayout        = "2006-01-02"

	defaultRefreshTTL = 60 * 24 * time.Hour
	defaultResetTTL   = 15 * time.Minute
)

type UserService struct {
	UserRepo     UserStore
	Sessions     SessionStore
	ResetCodes   ResetCodeStore
	DeviceTokens DeviceTokenStore
	Storage      utils.FileStorage
	Mailer       Mailer
	Issuer       *auth.TokenIssuer
	TokenManager *utils.Manager
	RefreshTTL   time.Duration
	ResetTTL     time.Duration
	Logger       Logger
}

func (s *UserService) logger() Logger {
	if s.Logger == nil {
		return nopLogger{}
	}
	return s.Logger
}

func (s *UserService) SignUp(ctx context.Context, req models.SignUpRequest) (models.AuthResponse, error) {
	req.Email = models.NormalizeEmail(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.Email == "" || req.Password == "" || req.FirstName == "" || req.LastName == "" {
		return models.AuthResponse{}, models.ErrMissingFields
	}
	if len(req.Password) < minPasswordLength {
		return models.AuthResponse{}, models.ErrWeakPassword
	}

	_, err := s.UserRepo.GetUserByEmail(ctx, req.Email)
	if err == nil {
		return models.AuthResponse{}, models.ErrDuplicateEmail
	}
	if !errors.Is(err, models.ErrUserNotFound) {
		return models.AuthResponse{}, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.AuthResponse{}, err
	}

	user, err := s.UserRepo.CreateUser(ctx, models.User{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  string(hashedPassword),
		Role:      models.RoleUser,
	})
	if err != nil {
		return models.AuthResponse{}, err
	}

	tokens, err := s.CreateSession(ctx, user)
	if err != nil {
		return models.AuthResponse{}, err
	}
	s.logger().Infof("user %s signed up", user.ID)
	return models.AuthResponse{User: user, Tokens: tokens}, nil
}

func (s *UserService) SignIn(ctx context.Context, email, password string) (models.AuthResponse, error) {
	user, err := s.UserRepo.GetUserByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return models.AuthResponse{}, models.ErrInvalidCredentials
		}
		return models.AuthResponse{}, err
	}

	if user.Password == "" {
		return models.AuthResponse{}, models.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return models.AuthResponse{}, models.ErrInvalidCredentials
	}

	tokens, err := s.CreateSession(ctx, user)
	if err != nil {
		return models.AuthResponse{}, err
	}
	return models.AuthResponse{User: user, Tokens: tokens}, nil
}

// CreateSession issues an access token and stores a new refresh session.
func (s *UserService) CreateSession(ctx context.Context, user models.User) (models.Tokens, error) {
	var (
		res models.Tokens
		err error
	)

	res.AccessToken, err = s.Issuer.Issue(user.ID, user.Role)
	if err != nil {
		return res, err
	}

	res.RefreshToken = uuid.New().String()
	if s.TokenManager != nil {
		res.RefreshToken, err = s.TokenManager.NewRefreshToken()
		if err != nil {
			return res, err
		}
	}

	ttl := s.RefreshTTL
	if ttl == 0 {
		ttl = defaultRefreshTTL
	}
	session := models.Session{
		UserID:       user.ID,
		Role:         user.Role,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    time.Now().Add(ttl),
	}
	if err := s.Sessions.SetSession(ctx, session); err != nil {
		return res, err
	}

	return res, nil
}

// RefreshAccessToken issues a new access token for a live refresh session.
func (s *UserService) RefreshAccessToken(ctx context.Context, refreshToken string) (string, models.Session, error) {
	if refreshToken == "" {
		return "", models.Session{}, models.ErrSessionNotFound
	}
	session, err := s.Sessions.GetSession(ctx, refreshToken)
	if err != nil {
		return "", models.Session{}, err
	}
	if session.RefreshToken != refreshToken {
		return "", models.Session{}, models.ErrSessionNotFound
	}
	if session.ExpiresAt.Before(time.Now()) {
		return "", models.Session{}, models.ErrSessionExpired
	}

	accessToken, err := s.Issuer.Issue(session.UserID, session.Role)
	if err != nil {
		return "", models.Session{}, err
	}
	return accessToken, session, nil
}

// SignOut ends one session, or every session of the user when refreshToken is
// empty.
func (s *UserService) SignOut(ctx context.Context, userID, refreshToken string) error {
	if refreshToken == "" {
		return s.Sessions.DeleteUserSessions(ctx, userID)
	}
	session, err := s.Sessions.GetSession(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if session.UserID != userID {
		return models.ErrForbidden
	}
	return s.Sessions.DeleteSession(ctx, refreshToken)
}

// RequestPasswordReset mails a one-time code. Unknown emails are accepted
// silently.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	email = models.NormalizeEmail(email)
	if email == "" {
		return models.ErrMissingFields
	}

	// Counted before the lookup so unknown emails are limited the same way.
	n, err := s.ResetCodes.CountResetRequest(ctx, email, resetWindow)
	if err != nil {
		return err
	}
	if n > resetRequestLimit {
		return models.ErrTooManyResetRequests
	}

	user, err := s.UserRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil
		}
		return err
	}

	code, err := generateResetCode()
	if err != nil {
		return err
	}
	if err := s.ResetCodes.SaveResetCode(ctx, email, code, s.resetTTL()); err != nil {
		return err
	}

	body := fmt.Sprintf("Hello %s,\n\nYour password reset code is %s. It expires in %d minutes.\n",
		user.FirstName, code, int(s.resetTTL().Minutes()))
	if err := s.Mailer.Send(ctx, email, "Password reset code", body); err != nil {
		return err
	}
	s.logger().Infof("password reset requested for user %s", user.ID)
	return nil
}

// VerifyResetCode consumes a valid code and returns a reset token.
func (s *UserService) VerifyResetCode(ctx context.Context, email, code string) (string, error) {
	email = models.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return "", models.ErrMissingFields
	}

	ok, err := s.ResetCodes.CheckResetCode(ctx, email, code, resetCodeAttempts)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", models.ErrInvalidResetCode
	}

	user, err := s.UserRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return "", models.ErrInvalidResetCode
		}
		return "", err
	}
	return s.TokenManager.NewJWT(user.ID, s.resetTTL())
}

func (s *UserService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return models.ErrWeakPassword
	}
	claims, err := s.TokenManager.Parse(resetToken)
	if err != nil {
		return models.ErrInvalidResetToken
	}
	fresh, err := s.ResetCodes.ConsumeResetToken(ctx, claims.TokenID, time.Until(claims.ExpiresAt))
	if err != nil {
		return err
	}
	if !fresh {
		return models.ErrInvalidResetToken
	}
	if err := s.setPassword(ctx, claims.UserID, newPassword); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return models.ErrInvalidResetToken
		}
		return err
	}
	return s.Sessions.DeleteUserSessions(ctx, claims.UserID)
}

func (s *UserService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.UserRepo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)); err != nil {
		return models.ErrInvalidPassword
	}
	if len(newPassword) < minPasswordLength {
		return models.ErrWeakPassword
	}
	return s.setPassword(ctx, userID, newPassword)
}

func (s *UserService) setPassword(ctx context.Context, userID, password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.UserRepo.UpdatePassword(ctx, userID, string(hashedPassword))
}

func (s *UserService) GetUserByID(ctx context.Context, id string) (models.User, error) {
	return s.UserRepo.GetUserByID(ctx, id)
}

func (s *UserService) GetUserSummary(ctx context.Context, id string) (models.UserSummary, error) {
	user, err := s.UserRepo.GetUserByID(ctx, id)
	if err != nil {
		return models.UserSummary{}, err
	}
	return user.Summary(), nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (models.User, error) {
	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)
	if firstName == "" || lastName == "" {
		return models.User{}, models.ErrMissingFields
	}
	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		return models.User{}, err
	}

	return s.UserRepo.UpdateProfile(ctx, models.User{
		ID:          userID,
		FirstName:   firstName,
		LastName:    lastName,
		DateOfBirth: dob,
	})
}

// CreateProfile stores the users document of an account that signed up with
// Firebase Authentication.
func (s *UserService) CreateProfile(ctx context.Context, identity auth.Identity, req models.CreateProfileRequest) (models.User, error) {
	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)
	email := models.NormalizeEmail(identity.Email)
	if identity.UID == "" || email == "" || firstName == "" || lastName == "" {
		return models.User{}, models.ErrMissingFields
	}
	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		return models.User{}, err
	}

	return s.UserRepo.CreateUser(ctx, models.User{
		ID:          identity.UID,
		FirstName:   firstName,
		LastName:    lastName,
		Email:       email,
		DateOfBirth: dob,
		Role:        models.RoleUser,
	})
}

func (s *UserService) UploadAvatar(ctx context.Context, userID string, data []byte, contentType, ext string) (models.User, error) {
	user, err := s.UserRepo.GetUserByID(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	if len(data) == 0 {
		return models.User{}, models.ErrInvalidInput
	}

	fileName := fmt.Sprintf("%s_%d%s", userID, time.Now().UnixNano(), ext)
	url, err := s.Storage.Save(ctx, data, avatarFolder, path.Base(fileName), contentType)
	if err != nil {
		return models.User{}, err
	}
	if err := s.UserRepo.UpdateAvatar(ctx, userID, &url); err != nil {
		return models.User{}, err
	}
	if user.AvatarURL != nil {
		if err := s.Storage.Delete(ctx, *user.AvatarURL); err != nil {
			s.logger().Errorf("delete old avatar of %s: %v", userID, err)
		}
	}
	user.AvatarURL = &url
	return user, nil
}

func (s *UserService) DeleteAvatar(ctx context.Context, userID string) (models.User, error) {
	user, err := s.UserRepo.GetUserByID(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	if user.AvatarURL == nil {
		return user, nil
	}
	if err := s.UserRepo.UpdateAvatar(ctx, userID, nil); err != nil {
		return models.User{}, err
	}
	if err := s.Storage.Delete(ctx, *user.AvatarURL); err != nil {
		s.logger().Errorf("delete avatar of %s: %v", userID, err)
	}
	user.AvatarURL = nil
	return user, nil
}

// DeleteAccount removes the user with their sessions and device tokens.
// Chats stay for the other participants.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	user, err := s.UserRepo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.Sessions.DeleteUserSessions(ctx, userID); err != nil {
		return err
	}
	if s.DeviceTokens != nil {
		if err := s.DeviceTokens.DeleteTokensByUserID(ctx, userID); err != nil {
			return err
		}
	}
	if err := s.UserRepo.DeleteUser(ctx, userID); err != nil {
		return err
	}
	if user.AvatarURL != nil && s.Storage != nil {
		if err := s.Storage.Delete(ctx, *user.AvatarURL); err != nil {
			s.logger().Errorf("delete avatar of %s: %v", userID, err)
		}
	}
	s.logger().Infof("user %s deleted their account", userID)
	return nil
}

func (s *UserService) resetTTL() time.Duration {
	if s.ResetTTL == 0 {
		return defaultResetTTL
	}
	return s.ResetTTL
}

func generateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func parseDate(value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(*value))
	if err != nil {
		return nil, fmt.Errorf("%w: date_of_birth must be YYYY-MM-DD", models.ErrInvalidInput)
	}
	return &t, nil
}
