package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	svcerr "github.com/unimart/unimart/internal/errors"
)

// Auth returns an auth client.
func (c *Client) Auth() *AuthClient {
	return &AuthClient{client: c}
}

// AuthClient handles GoTrue authentication operations.
type AuthClient struct {
	client *Client
}

// SignUpMetadata is the profile data attached to a new account. A backend
// trigger copies it into the profiles row.
type SignUpMetadata struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	RoomNumber   string `json:"room_number"`
	AcademicYear string `json:"academic_year"`
}

// Session is an authenticated session.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// User represents a Supabase user.
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	Phone            string         `json:"phone"`
	Role             string         `json:"role"`
	EmailConfirmedAt string         `json:"email_confirmed_at"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
	AppMetadata      map[string]any `json:"app_metadata"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

// SignUp creates a new user with the given profile metadata.
func (a *AuthClient) SignUp(ctx context.Context, email, password string, meta SignUpMetadata) (*Session, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
		"data":     meta,
	}
	var session Session
	if err := a.post(ctx, "/auth/v1/signup", payload, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SignIn signs in a user with email and password.
func (a *AuthClient) SignIn(ctx context.Context, email, password string) (*Session, error) {
	payload := map[string]string{
		"email":    email,
		"password": password,
	}
	var session Session
	if err := a.post(ctx, "/auth/v1/token?grant_type=password", payload, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SignOut revokes the session behind accessToken.
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	reqURL := a.client.baseURL + "/auth/v1/logout"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	a.client.setHeaders(req, accessToken)
	_, err = a.client.do(req)
	return err
}

// GetUser returns the user behind accessToken.
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	reqURL := a.client.baseURL + "/auth/v1/user"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	a.client.setHeaders(req, accessToken)

	body, err := a.client.do(req)
	if err != nil {
		return nil, err
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, svcerr.Internal("decode user response", err)
	}
	return &user, nil
}

// MagicLink is an admin-generated sign-in link.
type MagicLink struct {
	ActionLink string `json:"action_link"`
	EmailOTP   string `json:"email_otp"`
	HashedLink string `json:"hashed_token"`
}

// GenerateMagicLink asks the admin API for a magic sign-in link for the
// given email. Requires the service role key.
func (a *AuthClient) GenerateMagicLink(ctx context.Context, email string) (*MagicLink, error) {
	payload := map[string]string{
		"type":  "magiclink",
		"email": email,
	}
	var link MagicLink
	if err := a.post(ctx, "/auth/v1/admin/generate_link", payload, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (a *AuthClient) post(ctx context.Context, path string, payload, dest any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.client.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	a.client.setHeaders(req, "")
	req.Header.Set("Content-Type", "application/json")

	body, err := a.client.do(req)
	if err != nil {
		return err
	}
	if dest == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return svcerr.Internal("decode auth response", err)
	}
	return nil
}
