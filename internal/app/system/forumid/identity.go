// Package forumid links application users to the forum accounts provisioned
// for them in each community.
package forumid

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

const maxUsernameLen = 20

// UsernameFor derives a forum username from email: the lowercased local
// part with every non-alphanumeric run folded to "_", then "_" and the
// base-36 unix-millis time. The base is trimmed so the whole fits in 20
// characters.
func UsernameFor(email string, now time.Time) string {
	local := strings.ToLower(strings.TrimSpace(email))
	if i := strings.Index(local, "@"); i >= 0 {
		local = local[:i]
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range local {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	suffix := "_" + strconv.FormatInt(now.UnixMilli(), 36)
	base := strings.Trim(b.String(), "_")
	if room := maxUsernameLen - len(suffix); len(base) > room {
		base = strings.TrimRight(base[:room], "_")
	}
	if base == "" {
		base = "user"
	}
	return base + suffix
}

// NewPassword returns 20 hex characters drawn from crypto/rand.
func NewPassword() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:])[:20], nil
}

// Tier names how a forum user id was obtained.
type Tier string

const (
	TierDirect      Tier = "direct"
	TierAdminSearch Tier = "admin_search"
	TierPending     Tier = "pending"
)

// Resolution is either a resolved forum user id or Pending. The zero value
// is Pending.
type Resolution struct {
	id   int64
	tier Tier
}

// Resolved returns a resolution holding id, found through tier.
func Resolved(id int64, tier Tier) Resolution {
	return Resolution{id: id, tier: tier}
}

// Pending returns the unresolved resolution.
func Pending() Resolution { return Resolution{tier: TierPending} }

// ID returns the forum id and whether there is one.
func (r Resolution) ID() (int64, bool) { return r.id, r.id > 0 }

func (r Resolution) IsPending() bool { return r.id <= 0 }

func (r Resolution) Tier() Tier {
	if r.IsPending() {
		return TierPending
	}
	return r.tier
}

// Ptr returns the id as stored on a mapping: nil while pending.
func (r Resolution) Ptr() *int64 {
	if r.IsPending() {
		return nil
	}
	id := r.id
	return &id
}
