package socks5

import (
	"context"
	"crypto/subtle"
	"io"

	"golang.org/x/crypto/bcrypt"
)

// Authenticator is the single authentication scheme a host advertises for a
// listener. Unlike a method-selection table, a host picks exactly one
// Authenticator; Method reports the handshake method it implements and
// Authenticate runs the corresponding sub-negotiation once the client has
// selected that method.
//
// The error return is reserved for a sub-negotiation the driver could not
// complete at all - a transport I/O failure or a frame that fails to parse.
// A well-formed sub-negotiation that simply rejects the client's
// credentials is not an error: Authenticate reports that outcome through
// the returned identity instead, after writing whatever failure response
// the sub-negotiation's wire format requires. The driver does not interpret
// the identity value to decide whether to proceed - that decision belongs
// to the caller.
type Authenticator interface {
	Method() Method
	Authenticate(ctx context.Context, rw io.ReadWriter) (identity any, err error)
}

// NoAuth is the trivial Authenticator for method 0x00: every client is
// accepted without a sub-negotiation round trip.
type NoAuth struct{}

func (NoAuth) Method() Method { return MethodNoAuth }

func (NoAuth) Authenticate(context.Context, io.ReadWriter) (any, error) {
	return nil, nil
}

// CredentialStore validates a username/password pair presented during the
// RFC 1929 sub-negotiation. Implementations should make Valid take the same
// amount of time whether or not username exists, to avoid leaking account
// existence through a timing side channel.
type CredentialStore interface {
	Valid(username, password []byte) bool
}

// dummyHash is compared against on every lookup miss so HashedCredentials
// takes the same code path - and roughly the same time - regardless of
// whether the username exists.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// HashedCredentials stores username to bcrypt hash mappings. This is the
// recommended CredentialStore for anything other than throwaway testing.
type HashedCredentials map[string]string

func (h HashedCredentials) Valid(username, password []byte) bool {
	storedHash, ok := h[string(username)]
	if !ok {
		bcrypt.CompareHashAndPassword([]byte(dummyHash), password)
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), password) == nil
}

// StaticCredentials is a plaintext CredentialStore. It compares with
// crypto/subtle to avoid a content timing leak per comparison; the
// comparison returns early when the lengths differ, so a length mismatch is
// still visible in timing. It offers no protection for credentials at rest.
type StaticCredentials map[string]string

func (s StaticCredentials) Valid(username, password []byte) bool {
	storedPass, ok := s[string(username)]
	if !ok {
		subtle.ConstantTimeCompare(password, password)
		return false
	}
	return subtle.ConstantTimeCompare([]byte(storedPass), password) == 1
}

// HashPassword bcrypt-hashes password for storage in a HashedCredentials map.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// PasswordIdentity is the identity value PasswordAuth.Authenticate returns:
// the username the client presented and whether it validated. Authenticated
// is the caller's signal to decide whether the connection may proceed - the
// driver itself advances to NeedCommand either way, since a rejected
// password is a completed sub-negotiation, not a protocol failure.
type PasswordIdentity struct {
	Username      string
	Authenticated bool
}

// PasswordAuth is the Authenticator for method 0x02 (RFC 1929 username/
// password). It always returns a PasswordIdentity; err is non-nil only if
// the sub-negotiation frames themselves could not be read or written.
type PasswordAuth struct {
	Credentials CredentialStore
}

func (PasswordAuth) Method() Method { return MethodPassword }

func (a PasswordAuth) Authenticate(ctx context.Context, rw io.ReadWriter) (any, error) {
	req, err := DecodePasswordRequest(rw)
	if err != nil {
		return nil, err
	}

	ok := a.Credentials.Valid(req.Username, req.Password)
	resp := PasswordResponse{Success: ok}
	if err := resp.Encode(rw); err != nil {
		return nil, err
	}

	return PasswordIdentity{Username: string(req.Username), Authenticated: ok}, nil
}
