package api

import (
	"context"
	"net/http"

	"github.com/fjod/storefront/internal/domain"
)

type AuthService struct {
	c *Client
}

func NewAuthService(c *Client) *AuthService {
	return &AuthService{c: c}
}

type authResponse struct {
	Data struct {
		Token string `json:"token"`
		User  struct {
			ID      string `json:"id"`
			MongoID string `json:"_id"`
			Name    string `json:"name"`
			Email   string `json:"email"`
		} `json:"user"`
	} `json:"data"`
}

func (r authResponse) session() domain.Session {
	u := r.Data.User
	id := u.ID
	if id == "" {
		id = u.MongoID
	}
	return domain.Session{
		Token: r.Data.Token,
		User:  &domain.User{ID: id, Name: u.Name, Email: u.Email},
	}
}

// Login exchanges credentials for a session. A 401 here means bad
// credentials, so it never reaches the unauthorized handler.
func (s *AuthService) Login(ctx context.Context, email, password string) (domain.Session, error) {
	var resp authResponse
	err := s.c.send(ctx, call{
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   map[string]string{"email": email, "password": password},
		out:    &resp,
		public: true,
	})
	if err != nil {
		return domain.Session{}, err
	}
	return resp.session(), nil
}

func (s *AuthService) Register(ctx context.Context, name, email, password string) (domain.Session, error) {
	var resp authResponse
	err := s.c.send(ctx, call{
		method: http.MethodPost,
		path:   "/api/auth/signup",
		body:   map[string]string{"name": name, "email": email, "password": password},
		out:    &resp,
		public: true,
	})
	if err != nil {
		return domain.Session{}, err
	}
	return resp.session(), nil
}
