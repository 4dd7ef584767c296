package auth

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
)

// ErrNoSession is returned when the configured session cookie is absent or
// fails validation; the upgrade handler (httpapi.Handler.HandleUpgrade) maps
// this to a 403 upgrade rejection (spec §4.5).
var ErrNoSession = errors.New("auth: no valid session")

// Identity is everything the rest of the engine needs to know about the
// user for the lifetime of one connection. Identity is fixed at handshake
// time; no other auth tokens are accepted on the socket afterward.
type Identity struct {
	UserID   uuid.UUID
	Username string
}

// Authenticator resolves an inbound HTTP request's session cookie to an
// Identity. The session identifier is itself a JWT, signed at login time by
// the out-of-scope session-establishment flow (spec §1); this avoids a
// second server-side session store lookup while keeping the cookie-then-403
// contract spec §4.5 describes.
type Authenticator struct {
	jwt        *JWTManager
	cookieName string
}

func NewAuthenticator(jwt *JWTManager, cookieName string) *Authenticator {
	return &Authenticator{jwt: jwt, cookieName: cookieName}
}

// Authenticate extracts and validates the session cookie. It returns
// ErrNoSession on any failure: missing cookie, malformed token, expired
// token, or a signature that does not verify. Callers must not distinguish
// these cases further — the handshake response is 403 regardless (spec
// §4.5).
func (a *Authenticator) Authenticate(r *http.Request) (Identity, error) {
	cookie, err := r.Cookie(a.cookieName)
	if err != nil || cookie.Value == "" {
		return Identity{}, ErrNoSession
	}

	claims, err := a.jwt.ValidateAccessToken(cookie.Value)
	if err != nil {
		return Identity{}, ErrNoSession
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return Identity{}, ErrNoSession
	}

	return Identity{UserID: userID, Username: claims.Name}, nil
}
