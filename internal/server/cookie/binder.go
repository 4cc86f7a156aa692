package cookie

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Snshadow/update-server-server-sync/internal/common"
	"github.com/Snshadow/update-server-server-sync/internal/cryptox"
)

// Binder seals the cookie payload on issue and opens it on decode. The
// default performs no binding at all, matching the historical server; the
// other implementations exist for deployments that want cookies to be
// tamper-evident.
type Binder interface {
	Seal(payload []byte) ([]byte, error)
	Open(data []byte) ([]byte, error)
}

// NopBinder passes the payload through untouched.
type NopBinder struct{}

func (NopBinder) Seal(payload []byte) ([]byte, error) { return payload, nil }
func (NopBinder) Open(data []byte) ([]byte, error)    { return data, nil }

// MACBinder wraps the payload in a signed token (HS256) with an expiry
// claim, so a cookie presented after tampering or past its lifetime fails
// to open.
type MACBinder struct {
	Secret []byte
	TTL    time.Duration
}

type macClaims struct {
	jwt.RegisteredClaims
	ComputerID string
}

func (b MACBinder) Seal(payload []byte) ([]byte, error) {
	ttl := b.TTL
	if ttl <= 0 {
		ttl = common.CookieExpiration
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, macClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		ComputerID: string(payload),
	})

	signed, err := token.SignedString(b.Secret)
	if err != nil {
		return nil, err
	}
	return []byte(signed), nil
}

func (b MACBinder) Open(data []byte) ([]byte, error) {
	claims := &macClaims{}
	token, err := jwt.ParseWithClaims(string(data), claims, func(t *jwt.Token) (interface{}, error) {
		return b.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInvalidCookie, err)
	}
	if !token.Valid {
		return nil, common.ErrorInvalidCookie
	}
	return []byte(claims.ComputerID), nil
}

// AESBinder encrypts the payload with AES-GCM. Decryption failure means the
// cookie was not minted by this server.
type AESBinder struct {
	Key []byte
}

func (b AESBinder) Seal(payload []byte) ([]byte, error) {
	return cryptox.Seal(payload, b.Key)
}

func (b AESBinder) Open(data []byte) ([]byte, error) {
	raw, err := cryptox.Open(data, b.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInvalidCookie, err)
	}
	return raw, nil
}
