package agora

import (
	"bytes"
	"compress/zlib"
	"crypto/hmac"
	"encoding/base64"
	"encoding/binary"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reader struct {
	t *testing.T
	r *bytes.Reader
}

func (r reader) u16() uint16 {
	var v uint16
	require.NoError(r.t, binary.Read(r.r, binary.LittleEndian, &v))
	return v
}

func (r reader) u32() uint32 {
	var v uint32
	require.NoError(r.t, binary.Read(r.r, binary.LittleEndian, &v))
	return v
}

func (r reader) str() string {
	n := r.u16()
	b := make([]byte, n)
	_, err := io.ReadFull(r.r, b)
	require.NoError(r.t, err)
	return string(b)
}

func fixedBuilder() *Builder {
	b := NewBuilder("970CA35de60c44645bbae8a215061b33", "5CFd2fd1755d40ecb72977518be15d3b")
	b.now = func() time.Time { return time.Unix(1700000000, 0) }
	b.salt = func() uint32 { return 12345 }
	return b
}

func TestRTCToken_DecodesAndVerifies(t *testing.T) {
	b := fixedBuilder()
	tok, err := b.RTCToken("room-1", 2882341273, RolePublisher, time.Hour)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(tok, "007"))

	compressed, err := base64.StdEncoding.DecodeString(tok[3:])
	require.NoError(t, err)
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	content, err := io.ReadAll(zr)
	require.NoError(t, err)

	r := reader{t: t, r: bytes.NewReader(content)}
	sig := r.str()
	info := content[2+len(sig):]

	assert.True(t, hmac.Equal([]byte(sig), sign(signingKey(b.appCert, 1700000000, 12345), info)), "signature")

	assert.Equal(t, b.appID, r.str())
	assert.Equal(t, uint32(1700000000), r.u32())
	assert.Equal(t, uint32(3600), r.u32())
	assert.Equal(t, uint32(12345), r.u32())
	assert.Equal(t, uint16(1), r.u16(), "service count")
	assert.Equal(t, serviceRTC, r.u16())

	n := r.u16()
	require.Equal(t, uint16(4), n, "publisher privileges")
	for want := uint16(1); want <= 4; want++ {
		assert.Equal(t, want, r.u16())
		assert.Equal(t, uint32(3600), r.u32())
	}
	assert.Equal(t, "room-1", r.str())
	assert.Equal(t, "2882341273", r.str())
	assert.Zero(t, r.r.Len())
}

func TestRTCToken_SubscriberJoinOnly(t *testing.T) {
	tok, err := fixedBuilder().RTCToken("room-1", 0, RoleSubscriber, time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, tok, mustToken(t, fixedBuilder(), RolePublisher))
}

func mustToken(t *testing.T, b *Builder, role Role) string {
	tok, err := b.RTCToken("room-1", 0, role, time.Minute)
	require.NoError(t, err)
	return tok
}

func TestRTCToken_Errors(t *testing.T) {
	_, err := NewBuilder("", "").RTCToken("c", 1, RolePublisher, time.Minute)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = fixedBuilder().RTCToken("", 1, RolePublisher, time.Minute)
	assert.Error(t, err)
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{"": RolePublisher, "publisher": RolePublisher, "subscriber": RoleSubscriber, "2": RoleSubscriber} {
		got, err := ParseRole(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseRole("admin")
	assert.Error(t, err)
}
