package auth

import (
	"context"
	"strings"

	fbauth "firebase.google.com/go/auth"
)

// Identity is a verified Firebase account.
type Identity struct {
	UID   string
	Email string
}

// FirebaseVerifier accepts Firebase ID tokens issued to the mobile client.
type FirebaseVerifier struct {
	client *fbauth.Client
}

func NewFirebaseVerifier(client *fbauth.Client) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (Identity, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UID: token.UID, Email: claimString(token.Claims, "email")}, nil
}

func claimString(claims map[string]interface{}, key string) string {
	v, _ := claims[key].(string)
	return strings.ToLower(strings.TrimSpace(v))
}
