package core

import (
	"context"
	"fmt"
)

// User mirrors the backend's user response.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

// UserInput is the admin create/update payload.
type UserInput struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	Status   string `json:"status,omitempty"`
}

// CheckLogin verifies username/password against the backend. A wrong
// password surfaces as a BusinessError; only a successful reply means the
// caller may store the credential locally.
func (c *APIClient) CheckLogin(ctx context.Context, username, password string) (User, error) {
	body := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{Username: username, Password: password}
	var user User
	if err := c.Post(ctx, "/auth/login", body, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// RegisterUser creates a new account.
func (c *APIClient) RegisterUser(ctx context.Context, username, password, email string) (User, error) {
	body := struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Email    string `json:"email,omitempty"`
	}{Username: username, Password: password, Email: email}
	var user User
	if err := c.Post(ctx, "/auth/register", body, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// CurrentUser returns the authenticated principal for the request credential.
func (c *APIClient) CurrentUser(ctx context.Context) (User, error) {
	var user User
	if err := c.Get(ctx, "/auth/current", nil, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// AdminUsers lists all users.
func (c *APIClient) AdminUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.Get(ctx, "/admin/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// AdminUser fetches one user by id.
func (c *APIClient) AdminUser(ctx context.Context, id int64) (User, error) {
	var user User
	if err := c.Get(ctx, fmt.Sprintf("/admin/users/%d", id), nil, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// CreateUser creates a user with an explicit role.
func (c *APIClient) CreateUser(ctx context.Context, input UserInput) (User, error) {
	var user User
	if err := c.Post(ctx, "/admin/users", input, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// UpdateUser updates a user's profile, role or status.
func (c *APIClient) UpdateUser(ctx context.Context, id int64, input UserInput) (User, error) {
	var user User
	if err := c.Put(ctx, fmt.Sprintf("/admin/users/%d", id), input, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// DeleteUser removes a user.
func (c *APIClient) DeleteUser(ctx context.Context, id int64) error {
	return c.Delete(ctx, fmt.Sprintf("/admin/users/%d", id), nil, nil)
}
