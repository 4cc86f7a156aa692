// Package cookie issues and decodes the opaque client cookie. The core
// treats the payload as identification only; the pluggable Binder decides
// whether the bytes carry any integrity protection.
package cookie

import (
	"bytes"
	"time"

	"github.com/Snshadow/update-server-server-sync/internal/common"
)

// Cookie is the opaque token handed to clients. EncryptedData carries the
// computer id in whatever form the server's Binder produced.
type Cookie struct {
	Expiration    time.Time
	EncryptedData []byte
}

// IsZero reports whether the cookie is unset.
func (c Cookie) IsZero() bool {
	return c.Expiration.IsZero() && len(c.EncryptedData) == 0
}

// Issuer mints and decodes cookies with a fixed lifetime.
type Issuer struct {
	binder Binder
	ttl    time.Duration

	// now is a test seam.
	now func() time.Time
}

// NewIssuer builds an Issuer. A nil binder means the payload travels as
// plain bytes.
func NewIssuer(binder Binder, ttl time.Duration) *Issuer {
	if binder == nil {
		binder = NopBinder{}
	}
	if ttl <= 0 {
		ttl = common.CookieExpiration
	}
	return &Issuer{binder: binder, ttl: ttl, now: time.Now}
}

// Issue mints a cookie for the given computer id, expiring ttl from now.
func (i *Issuer) Issue(computerID string) (Cookie, error) {
	data, err := i.binder.Seal([]byte(computerID))
	if err != nil {
		return Cookie{}, err
	}
	return Cookie{
		Expiration:    i.now().Add(i.ttl).UTC(),
		EncryptedData: data,
	}, nil
}

// ComputerID recovers the computer id from a cookie: the payload is opened
// by the binder and the UTF-8 result is trimmed of terminating NULs.
func (i *Issuer) ComputerID(c Cookie) (string, error) {
	raw, err := i.binder.Open(c.EncryptedData)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimRight(raw, "\x00")), nil
}
