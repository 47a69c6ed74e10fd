package auth

import (
	"errors"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/conduit-lang/hierroutes/internal/web/response"
)

// MaxPasswordLength is bcrypt's input limit
const MaxPasswordLength = 72

// ErrPasswordTooLong is returned by HashPassword for inputs bcrypt would
// silently truncate
var ErrPasswordTooLong = errors.New("password exceeds maximum length of 72 bytes")

// HashPassword hashes a plain text password using bcrypt
func HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordLength {
		return "", ErrPasswordTooLong
	}
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword reports whether password matches hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// User is an admin account that may exchange its password for a token
type User struct {
	PasswordHash string
	Roles        []string
}

// Users maps user names to accounts
type Users map[string]User

// Verify returns the account of name when password matches
func (u Users) Verify(name, password string) (User, bool) {
	user, ok := u[name]
	if !ok || user.PasswordHash == "" {
		return User{}, false
	}
	if !CheckPassword(password, user.PasswordHash) {
		return User{}, false
	}
	return user, true
}

// TokenResponse is the body written by Login
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login exchanges HTTP basic credentials for a bearer token carrying the
// user's roles
func Login(users Users, tokens *TokenService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="hierroutes"`)
			response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "Basic credentials required")
			return
		}

		user, ok := users.Verify(name, password)
		if !ok {
			response.Unauthorized(w, r, "Invalid credentials")
			return
		}

		token, err := tokens.Issue(name, user.Roles)
		if err != nil {
			response.InternalServerError(w, r, err, false)
			return
		}
		response.JSON(w, http.StatusOK, TokenResponse{
			Token:     token,
			TokenType: "Bearer",
			ExpiresAt: tokens.now().Add(tokens.ttl).UTC().Truncate(time.Second),
		})
	}
}
