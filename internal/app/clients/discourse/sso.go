package discourse

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrBadSignature = errors.New("sso signature mismatch")
	ErrMalformedSSO = errors.New("malformed sso payload")
)

// Sign returns the lowercase hex HMAC-SHA256 of payload.
func Sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares sig to Sign(secret, payload) in constant time. The
// comparison is on the hex text, so a case change in sig is a mismatch.
func Verify(secret, payload, sig string) bool {
	return hmac.Equal([]byte(Sign(secret, payload)), []byte(sig))
}

// SSORequest is a verified inbound Discourse Connect request.
type SSORequest struct {
	Nonce        string
	ReturnSSOURL string
	Values       url.Values
}

// ParseRequest verifies sig over the raw sso value and decodes it.
func ParseRequest(secret, sso, sig string) (SSORequest, error) {
	if sso == "" || sig == "" || !Verify(secret, sso, sig) {
		return SSORequest{}, ErrBadSignature
	}

	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' {
			return -1
		}
		return r
	}, sso)
	raw, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return SSORequest{}, ErrMalformedSSO
	}
	vals, err := url.ParseQuery(string(raw))
	if err != nil {
		return SSORequest{}, ErrMalformedSSO
	}
	req := SSORequest{
		Nonce:        vals.Get("nonce"),
		ReturnSSOURL: vals.Get("return_sso_url"),
		Values:       vals,
	}
	if req.Nonce == "" {
		return SSORequest{}, ErrMalformedSSO
	}
	return req, nil
}

// SSOIdentity is the user handed back to the forum.
type SSOIdentity struct {
	Nonce      string
	Email      string
	ExternalID string
	Username   string
	Name       string
	AvatarURL  string
	Admin      bool
	Moderator  bool
}

// Encode returns the base64 payload and its signature.
func (id SSOIdentity) Encode(secret string) (sso, sig string) {
	v := url.Values{}
	v.Set("nonce", id.Nonce)
	v.Set("email", id.Email)
	v.Set("external_id", id.ExternalID)
	v.Set("username", id.Username)
	v.Set("name", id.Name)
	v.Set("avatar_url", id.AvatarURL)
	v.Set("admin", strconv.FormatBool(id.Admin))
	v.Set("moderator", strconv.FormatBool(id.Moderator))

	sso = base64.StdEncoding.EncodeToString([]byte(v.Encode()))
	return sso, Sign(secret, sso)
}

// RedirectURL builds returnURL?sso=...&sig=... for id, keeping any query
// parameters already on returnURL.
func RedirectURL(returnURL, secret string, id SSOIdentity) (string, error) {
	u, err := url.Parse(returnURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", ErrMalformedSSO
	}
	sso, sig := id.Encode(secret)
	q := u.Query()
	q.Set("sso", sso)
	q.Set("sig", sig)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// BuildRequest encodes an inbound-style request. The forum normally does
// this; it is exported for tests and local tooling.
func BuildRequest(secret, nonce, returnURL string) (sso, sig string) {
	v := url.Values{"nonce": {nonce}, "return_sso_url": {returnURL}}
	sso = base64.StdEncoding.EncodeToString([]byte(v.Encode()))
	return sso, Sign(secret, sso)
}
