package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TokenExpiry is how long an issued token stays valid.
const TokenExpiry = 7 * 24 * time.Hour

// signatureLen is the truncated hex length of the HMAC signature.
const signatureLen = 20

// ErrInvalidToken is the only error surfaced to callers. Expired and
// malformed tokens are distinguished internally via wrapping but both must be
// treated as unauthenticated, never as a partial identity.
var ErrInvalidToken = errors.New("invalid token")

var (
	errMalformed = fmt.Errorf("%w: malformed", ErrInvalidToken)
	errExpired   = fmt.Errorf("%w: expired", ErrInvalidToken)
	errSignature = fmt.Errorf("%w: bad signature", ErrInvalidToken)
)

// Identity is the authenticated principal carried by a valid token.
type Identity struct {
	TenantID int64
	UserID   int64
}

// Issue creates a signed bearer token for the given tenant and user.
// Format: "tenant:user:issuedAt:signature" where signature is the first 20
// hex characters of HMAC-SHA256(secret, "tenant:user:issuedAt").
func Issue(secret string, tenantID, userID int64) string {
	return IssueAt(secret, tenantID, userID, time.Now())
}

// IssueAt is Issue with an explicit issue time, for tests.
func IssueAt(secret string, tenantID, userID int64, issuedAt time.Time) string {
	msg := fmt.Sprintf("%d:%d:%d", tenantID, userID, issuedAt.Unix())
	return msg + ":" + sign(secret, msg)
}

// Validate checks the token's shape, signature, and age. It returns the
// embedded identity only when all three hold.
func Validate(secret, token string) (Identity, error) {
	return ValidateAt(secret, token, time.Now())
}

// ValidateAt is Validate with an explicit current time, for tests.
func ValidateAt(secret, token string, now time.Time) (Identity, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 4 {
		return Identity{}, errMalformed
	}

	tenantID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Identity{}, errMalformed
	}
	userID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Identity{}, errMalformed
	}
	issuedAt, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Identity{}, errMalformed
	}

	if now.Unix()-issuedAt > int64(TokenExpiry/time.Second) {
		return Identity{}, errExpired
	}

	msg := parts[0] + ":" + parts[1] + ":" + parts[2]
	if !hmac.Equal([]byte(parts[3]), []byte(sign(secret, msg))) {
		return Identity{}, errSignature
	}

	return Identity{TenantID: tenantID, UserID: userID}, nil
}

func sign(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))[:signatureLen]
}
