package services

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messengerBack/internal/auth"
	"messengerBack/internal/models"
	"messengerBack/utils"
)

func TestSignUpRequiresAllFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []models.SignUpRequest{
		{Email: "a@b.c", Password: "secret123", FirstName: "Ann"},
		{Email: "a@b.c", Password: "secret123", LastName: "Lee"},
		{Email: "  ", Password: "secret123", FirstName: "Ann", LastName: "Lee"},
		{Email: "a@b.c", FirstName: "Ann", LastName: "Lee"},
	}
	for _, req := range cases {
		_, err := f.users.SignUp(ctx, req)
		assert.ErrorIs(t, err, models.ErrMissingFields)
	}

	_, err := f.users.SignUp(ctx, models.SignUpRequest{Email: "a@b.c", Password: "123", FirstName: "Ann", LastName: "Lee"})
	assert.ErrorIs(t, err, models.ErrWeakPassword)
}

func TestSignUpAndSignIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.users.SignUp(ctx, models.SignUpRequest{
		Email:     " Ann@Example.COM ",
		Password:  "secret123",
		FirstName: "Ann",
		LastName:  "Lee",
	})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", res.User.Email)
	assert.Equal(t, models.RoleUser, res.User.Role)
	assert.NotEmpty(t, res.Tokens.AccessToken)
	assert.Len(t, res.Tokens.RefreshToken, 64)

	_, err = f.users.SignUp(ctx, models.SignUpRequest{Email: "ann@example.com", Password: "secret123", FirstName: "A", LastName: "B"})
	assert.ErrorIs(t, err, models.ErrDuplicateEmail)

	_, err = f.users.SignIn(ctx, "ann@example.com", "wrong-pass")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	_, err = f.users.SignIn(ctx, "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	in, err := f.users.SignIn(ctx, "ANN@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, in.User.ID)

	claims, err := f.users.Issuer.Parse(in.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)
}

func TestRefreshAndSignOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.users.SignUp(ctx, models.SignUpRequest{Email: "a@x.io", Password: "secret123", FirstName: "A", LastName: "B"})
	require.NoError(t, err)

	access, session, err := f.users.RefreshAccessToken(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.Equal(t, res.User.ID, session.UserID)

	_, _, err = f.users.RefreshAccessToken(ctx, "unknown")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	require.NoError(t, f.users.SignOut(ctx, res.User.ID, res.Tokens.RefreshToken))
	_, _, err = f.users.RefreshAccessToken(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestSignOutRejectsForeignSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.users.SignUp(ctx, models.SignUpRequest{Email: "a@x.io", Password: "secret123", FirstName: "A", LastName: "A"})
	require.NoError(t, err)
	b := f.signUp(t, "B", "B", "b@x.io")

	err = f.users.SignOut(ctx, b.ID, a.Tokens.RefreshToken)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.users.SignUp(ctx, models.SignUpRequest{Email: "a@x.io", Password: "secret123", FirstName: "A", LastName: "B"})
	require.NoError(t, err)

	require.NoError(t, f.users.RequestPasswordReset(ctx, "nobody@x.io"))
	assert.Empty(t, f.mailer.sent)

	require.NoError(t, f.users.RequestPasswordReset(ctx, "A@x.io"))
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "a@x.io", f.mailer.sent[0].To)
	m := codePattern.FindStringSubmatch(f.mailer.sent[0].Body)
	require.Len(t, m, 2)
	code := m[1]

	_, err = f.users.VerifyResetCode(ctx, "a@x.io", "not-it")
	assert.ErrorIs(t, err, models.ErrInvalidResetCode)

	resetToken, err := f.users.VerifyResetCode(ctx, "a@x.io", code)
	require.NoError(t, err)

	_, err = f.users.VerifyResetCode(ctx, "a@x.io", code)
	assert.ErrorIs(t, err, models.ErrInvalidResetCode, "codes are single use")

	assert.ErrorIs(t, f.users.ResetPassword(ctx, "garbage", "newsecret"), models.ErrInvalidResetToken)
	assert.ErrorIs(t, f.users.ResetPassword(ctx, resetToken, "x"), models.ErrWeakPassword)
	require.NoError(t, f.users.ResetPassword(ctx, resetToken, "newsecret"))
	assert.ErrorIs(t, f.users.ResetPassword(ctx, resetToken, "another1"), models.ErrInvalidResetToken, "reset tokens are single use")

	_, _, err = f.users.RefreshAccessToken(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, models.ErrSessionNotFound, "reset revokes sessions")

	_, err = f.users.SignIn(ctx, "a@x.io", "newsecret")
	assert.NoError(t, err)
}

func TestResetCodeLockedAfterFailedAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signUp(t, "A", "B", "a@x.io")

	require.NoError(t, f.users.RequestPasswordReset(ctx, "a@x.io"))
	code := codePattern.FindStringSubmatch(f.mailer.sent[0].Body)[1]

	for i := 0; i < resetCodeAttempts; i++ {
		_, err := f.users.VerifyResetCode(ctx, "a@x.io", "000000x")
		require.ErrorIs(t, err, models.ErrInvalidResetCode)
	}
	_, err := f.users.VerifyResetCode(ctx, "a@x.io", code)
	assert.ErrorIs(t, err, models.ErrInvalidResetCode)
}

func TestResetPasswordRejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Even with a shared key an access token lacks the reset purpose claim.
	shared, err := utils.NewManager("access-secret")
	require.NoError(t, err)
	f.users.TokenManager = shared

	res, err := f.users.SignUp(ctx, models.SignUpRequest{Email: "a@x.io", Password: "secret123", FirstName: "A", LastName: "B"})
	require.NoError(t, err)

	err = f.users.ResetPassword(ctx, res.Tokens.AccessToken, "hijacked")
	assert.ErrorIs(t, err, models.ErrInvalidResetToken)

	_, err = f.users.SignIn(ctx, "a@x.io", "secret123")
	assert.NoError(t, err, "password unchanged")
}

func TestRequestPasswordResetIsRateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signUp(t, "A", "B", "a@x.io")

	for i := 0; i < resetRequestLimit; i++ {
		require.NoError(t, f.users.RequestPasswordReset(ctx, "a@x.io"))
	}
	assert.ErrorIs(t, f.users.RequestPasswordReset(ctx, "a@x.io"), models.ErrTooManyResetRequests)
	assert.Len(t, f.mailer.sent, resetRequestLimit)

	// unknown emails share the limit so the response does not reveal accounts
	for i := 0; i < resetRequestLimit; i++ {
		require.NoError(t, f.users.RequestPasswordReset(ctx, "ghost@x.io"))
	}
	assert.ErrorIs(t, f.users.RequestPasswordReset(ctx, "ghost@x.io"), models.ErrTooManyResetRequests)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signUp(t, "A", "B", "a@x.io")

	assert.ErrorIs(t, f.users.ChangePassword(ctx, u.ID, "wrong", "another1"), models.ErrInvalidPassword)
	assert.ErrorIs(t, f.users.ChangePassword(ctx, u.ID, "secret123", "abc"), models.ErrWeakPassword)
	require.NoError(t, f.users.ChangePassword(ctx, u.ID, "secret123", "another1"))

	_, err := f.users.SignIn(ctx, "a@x.io", "another1")
	assert.NoError(t, err)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signUp(t, "A", "B", "a@x.io")

	bad := "31/12/1990"
	_, err := f.users.UpdateProfile(ctx, u.ID, models.UpdateProfileRequest{FirstName: "Anna", LastName: "Lee", DateOfBirth: &bad})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = f.users.UpdateProfile(ctx, u.ID, models.UpdateProfileRequest{FirstName: " ", LastName: "Lee"})
	assert.ErrorIs(t, err, models.ErrMissingFields)

	dob := "1990-12-31"
	updated, err := f.users.UpdateProfile(ctx, u.ID, models.UpdateProfileRequest{FirstName: "Anna", LastName: "Lee", DateOfBirth: &dob})
	require.NoError(t, err)
	assert.Equal(t, "Anna Lee", updated.FullName())
	require.NotNil(t, updated.DateOfBirth)
	assert.Equal(t, dob, updated.DateOfBirth.Format(dateLayout))
}

func TestCreateProfileForFirebaseIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := auth.Identity{UID: "fb-uid-1", Email: "Fire@Base.io"}
	user, err := f.users.CreateProfile(ctx, id, models.CreateProfileRequest{FirstName: "Fi", LastName: "Re"})
	require.NoError(t, err)
	assert.Equal(t, "fb-uid-1", user.ID)
	assert.Equal(t, "fire@base.io", user.Email)

	_, err = f.users.CreateProfile(ctx, id, models.CreateProfileRequest{FirstName: "Fi", LastName: "Re"})
	assert.True(t, errors.Is(err, models.ErrProfileExists) || errors.Is(err, models.ErrDuplicateEmail))

	_, err = f.users.SignIn(ctx, "fire@base.io", "anything")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials, "firebase accounts have no local password")
}

type memStorage struct {
	saved   map[string][]byte
	deleted []string
}

func (s *memStorage) Save(_ context.Context, data []byte, folder, fileName, _ string) (string, error) {
	url := "https://cdn.test/" + folder + "/" + fileName
	s.saved[url] = data
	return url, nil
}

func (s *memStorage) Delete(_ context.Context, url string) error {
	s.deleted = append(s.deleted, url)
	delete(s.saved, url)
	return nil
}

func TestAvatarLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storage := &memStorage{saved: map[string][]byte{}}
	f.users.Storage = storage
	u := f.signUp(t, "A", "B", "a@x.io")

	_, err := f.users.UploadAvatar(ctx, u.ID, nil, "image/png", ".png")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	first, err := f.users.UploadAvatar(ctx, u.ID, []byte("png1"), "image/png", ".png")
	require.NoError(t, err)
	require.NotNil(t, first.AvatarURL)

	second, err := f.users.UploadAvatar(ctx, u.ID, []byte("png2"), "image/png", ".png")
	require.NoError(t, err)
	assert.Equal(t, []string{*first.AvatarURL}, storage.deleted)

	cleared, err := f.users.DeleteAvatar(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, cleared.AvatarURL)
	assert.Contains(t, storage.deleted, *second.AvatarURL)
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.users.SignUp(ctx, models.SignUpRequest{Email: "a@x.io", Password: "secret123", FirstName: "A", LastName: "B"})
	require.NoError(t, err)
	require.NoError(t, f.store.SaveToken(ctx, models.DeviceToken{Token: "tok", UserID: res.User.ID}))

	require.NoError(t, f.users.DeleteAccount(ctx, res.User.ID))

	_, err = f.users.GetUserByID(ctx, res.User.ID)
	assert.ErrorIs(t, err, models.ErrUserNotFound)
	_, _, err = f.users.RefreshAccessToken(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	tokens, err := f.store.GetTokensByUserID(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}
