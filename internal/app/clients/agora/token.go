// Package agora builds Agora AccessToken2 ("007") RTC tokens.
package agora

import (
	"bytes"
	"compress/zlib"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math/big"
	"sort"
	"strconv"
	"time"
)

const version = "007"

// Role decides which RTC privileges a token grants.
type Role int

const (
	RolePublisher Role = 1
	RoleSubscriber Role = 2
)

// ParseRole maps "publisher"/"subscriber" (or "1"/"2"). Empty is publisher.
func ParseRole(s string) (Role, error) {
	switch s {
	case "", "publisher", "1":
		return RolePublisher, nil
	case "subscriber", "audience", "2":
		return RoleSubscriber, nil
	}
	return 0, errors.New("role must be publisher or subscriber")
}

const serviceRTC uint16 = 1

const (
	privJoinChannel        uint16 = 1
	privPublishAudioStream uint16 = 2
	privPublishVideoStream uint16 = 3
	privPublishDataStream  uint16 = 4
)

// Builder signs tokens for one Agora project.
type Builder struct {
	appID   string
	appCert string
	now     func() time.Time
	salt    func() uint32
}

func NewBuilder(appID, appCertificate string) *Builder {
	return &Builder{appID: appID, appCert: appCertificate, now: time.Now, salt: randomSalt}
}

var ErrNotConfigured = errors.New("agora app id or certificate missing")

// RTCToken returns a token for channel and uid valid for expire. uid 0
// means any user.
func (b *Builder) RTCToken(channel string, uid uint32, role Role, expire time.Duration) (string, error) {
	if b.appID == "" || b.appCert == "" {
		return "", ErrNotConfigured
	}
	if channel == "" {
		return "", errors.New("channel name is required")
	}
	secs := uint32(expire / time.Second)

	privs := map[uint16]uint32{privJoinChannel: secs}
	if role == RolePublisher {
		privs[privPublishAudioStream] = secs
		privs[privPublishVideoStream] = secs
		privs[privPublishDataStream] = secs
	}

	account := ""
	if uid != 0 {
		account = strconv.FormatUint(uint64(uid), 10)
	}

	issueTs := uint32(b.now().Unix())
	salt := b.salt()

	var info bytes.Buffer
	packString(&info, b.appID)
	packUint32(&info, issueTs)
	packUint32(&info, secs)
	packUint32(&info, salt)
	packUint16(&info, 1) // service count
	packUint16(&info, serviceRTC)
	packPrivileges(&info, privs)
	packString(&info, channel)
	packString(&info, account)

	sig := sign(signingKey(b.appCert, issueTs, salt), info.Bytes())

	var content bytes.Buffer
	packString(&content, string(sig))
	content.Write(info.Bytes())

	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	if _, err := zw.Write(content.Bytes()); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return version + base64.StdEncoding.EncodeToString(z.Bytes()), nil
}

func signingKey(appCert string, issueTs, salt uint32) []byte {
	var ts, sl bytes.Buffer
	packUint32(&ts, issueTs)
	packUint32(&sl, salt)
	k := sign(ts.Bytes(), []byte(appCert))
	return sign(sl.Bytes(), k)
}

func sign(key, msg []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(msg)
	return m.Sum(nil)
}

func packUint16(b *bytes.Buffer, v uint16) { _ = binary.Write(b, binary.LittleEndian, v) }
func packUint32(b *bytes.Buffer, v uint32) { _ = binary.Write(b, binary.LittleEndian, v) }

func packString(b *bytes.Buffer, s string) {
	packUint16(b, uint16(len(s)))
	b.WriteString(s)
}

func packPrivileges(b *bytes.Buffer, m map[uint16]uint32) {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)
	packUint16(b, uint16(len(keys)))
	for _, k := range keys {
		packUint16(b, uint16(k))
		packUint32(b, m[uint16(k)])
	}
}

func randomSalt() uint32 {
	n, err := rand.Int(rand.Reader, big.NewInt(99999999))
	if err != nil {
		return uint32(time.Now().UnixNano()%99999999) + 1
	}
	return uint32(n.Int64()) + 1
}
