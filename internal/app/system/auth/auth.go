package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Session constants                                                          |
*─────────────────────────────────────────────────────────────────────────────*/

const (
	isAuthKey   = "is_authenticated"
	userUIDKey  = "user_uid"
	userName    = "user_name"
	userEmail   = "user_email"
	ssoUIDKey   = "sso_uid"
	pendingName = "commonshub-sso-pending"
	pendingTTL  = 10 * time.Minute
)

var ErrInvalidToken = errors.New("invalid or expired token")

// SessionUser is what we cache in the session or token and inject into r.Context().
type SessionUser struct {
	UID   string
	Name  string
	Email string
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user and a "found?" flag.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok
}

// WithTestUser injects u into the request context. Used by handler tests.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

// ResolveUID returns the signed-in user's uid, or fallback when nobody is
// signed in. Request bodies from the SPA carry the uid explicitly.
func ResolveUID(r *http.Request, fallback string) string {
	if u, ok := CurrentUser(r); ok && u.UID != "" {
		return u.UID
	}
	return strings.TrimSpace(fallback)
}

/*─────────────────────────────────────────────────────────────────────────────*
| SessionManager                                                             |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionManager owns the cookie session store, the bearer token key and
// the codec for the pending-SSO cookie.
type SessionManager struct {
	store    *sessions.CookieStore
	name     string
	tokenKey []byte
	tokenTTL time.Duration
	pending  *securecookie.SecureCookie
	secure   bool
	log      *zap.Logger
}

// NewSessionManager builds a SessionManager. The secure flag controls
// whether cookies are marked Secure and which SameSite mode is used.
func NewSessionManager(sessionKey, name, domain string, maxAge, tokenTTL time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("session key is empty; provide ≥32 random chars")
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	store.Options = &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if secure {
		store.Options.SameSite = http.SameSiteNoneMode
	}

	tokenKey := sha256.Sum256([]byte("token:" + sessionKey))
	blockKey := sha256.Sum256([]byte("sso-pending:" + sessionKey))
	pending := securecookie.New([]byte(sessionKey), blockKey[:])
	pending.MaxAge(int(pendingTTL.Seconds()))

	logger.Info("session manager initialized",
		zap.String("name", name),
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{
		store:    store,
		name:     name,
		tokenKey: tokenKey[:],
		tokenTTL: tokenTTL,
		pending:  pending,
		secure:   secure,
		log:      logger,
	}, nil
}

// LoadSessionUser injects the user into context from a bearer token or,
// failing that, the session cookie. A bad token is ignored, not rejected.
func (sm *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := bearerToken(r); tok != "" {
			u, err := sm.ParseToken(tok)
			if err == nil {
				next.ServeHTTP(w, withUser(r, u))
				return
			}
			sm.log.Debug("ignoring invalid bearer token", zap.Error(err))
		}

		sess, _ := sm.store.Get(r, sm.name)
		if isAuth, _ := sess.Values[isAuthKey].(bool); isAuth {
			r = withUser(r, &SessionUser{
				UID:   getString(sess, userUIDKey),
				Name:  getString(sess, userName),
				Email: getString(sess, userEmail),
			})
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSignedIn responds 401 when LoadSessionUser found nobody.
func (sm *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
	})
}

// SignIn writes u into the session cookie.
func (sm *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, u *SessionUser) error {
	sess, _ := sm.store.Get(r, sm.name)
	sess.Values[isAuthKey] = true
	sess.Values[userUIDKey] = u.UID
	sess.Values[userName] = u.Name
	sess.Values[userEmail] = u.Email
	return sess.Save(r, w)
}

// SignOut expires the session cookie.
func (sm *SessionManager) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess, _ := sm.store.Get(r, sm.name)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// RememberUID keeps uid in the session for the forum SSO hand-off.
func (sm *SessionManager) RememberUID(w http.ResponseWriter, r *http.Request, uid string) error {
	sess, _ := sm.store.Get(r, sm.name)
	sess.Values[ssoUIDKey] = uid
	return sess.Save(r, w)
}

// RememberedUID returns the uid stored by RememberUID, if any.
func (sm *SessionManager) RememberedUID(r *http.Request) string {
	sess, _ := sm.store.Get(r, sm.name)
	return getString(sess, ssoUIDKey)
}

// IssueToken returns a signed HS256 bearer token for u and its expiry.
func (sm *SessionManager) IssueToken(u *SessionUser) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(sm.tokenTTL)
	claims := jwt.MapClaims{
		"sub":   u.UID,
		"name":  u.Name,
		"email": u.Email,
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sm.tokenKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// ParseToken validates a bearer token and returns its user.
func (sm *SessionManager) ParseToken(tokenString string) (*SessionUser, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return sm.tokenKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil, ErrInvalidToken
	}
	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)
	return &SessionUser{UID: sub, Name: name, Email: email}, nil
}

// PendingSSO is the forum's SSO request parked while the user signs in.
type PendingSSO struct {
	SSO         string
	Sig         string
	CommunityID string
}

// StashPendingSSO stores p in a short-lived encrypted cookie.
func (sm *SessionManager) StashPendingSSO(w http.ResponseWriter, p PendingSSO) error {
	encoded, err := sm.pending.Encode(pendingName, map[string]string{
		"sso": p.SSO, "sig": p.Sig, "community": p.CommunityID,
	})
	if err != nil {
		return fmt.Errorf("encode pending sso: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     pendingName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(pendingTTL.Seconds()),
		Secure:   sm.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// TakePendingSSO reads and clears the pending SSO cookie.
func (sm *SessionManager) TakePendingSSO(w http.ResponseWriter, r *http.Request) (PendingSSO, bool) {
	c, err := r.Cookie(pendingName)
	if err != nil {
		return PendingSSO{}, false
	}
	http.SetCookie(w, &http.Cookie{Name: pendingName, Value: "", Path: "/", MaxAge: -1})

	var v map[string]string
	if err := sm.pending.Decode(pendingName, c.Value, &v); err != nil {
		sm.log.Debug("discarding undecodable pending sso cookie", zap.Error(err))
		return PendingSSO{}, false
	}
	if v["sso"] == "" || v["sig"] == "" {
		return PendingSSO{}, false
	}
	return PendingSSO{SSO: v["sso"], Sig: v["sig"], CommunityID: v["community"]}, true
}

// helpers

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

// getString safely extracts a string from a session value.
func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
