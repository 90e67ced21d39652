package signing

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cr3t-signing-key"

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestParseTTL(t *testing.T) {
	cases := map[string]time.Duration{
		"1h":    time.Hour,
		"30m":   30 * time.Minute,
		"7d":    7 * 24 * time.Hour,
		"2w":    14 * 24 * time.Hour,
		"45s":   45 * time.Second,
		"500ms": 500 * time.Millisecond,
		"1y":    365 * 24 * time.Hour,
		"3600":  time.Hour,
		" 2H ":  2 * time.Hour,
		"1.5h":  90 * time.Minute,
	}
	for spec, want := range cases {
		got, err := ParseTTL(spec)
		require.NoError(t, err, spec)
		assert.Equal(t, want, got, spec)
	}

	for _, bad := range []string{"", "h", "10 parsecs", "0", "-1h", "1x"} {
		_, err := ParseTTL(bad)
		assert.Error(t, err, bad)
	}
}

func TestSigner_SignVerifyRoundTrip(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 17, 3, 0, time.UTC)
	s, err := NewSigner(testSecret, "1h", WithClock(fixedClock(&now)))
	require.NoError(t, err)

	tok := s.Sign("/media/covers/s1.webp")
	assert.Equal(t, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC).Unix(), tok.Issued)
	assert.Equal(t, time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC).Unix(), tok.Expires)
	assert.Len(t, tok.Signature, 64)

	v := s.Verify("/media/covers/s1.webp", tok.Params())
	assert.True(t, v.Valid)
	assert.Empty(t, v.Reason)
}

func TestSigner_BucketIdempotence(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 1, 0, time.UTC)
	s, err := NewSigner(testSecret, "1h", WithClock(fixedClock(&now)), WithMemo(16))
	require.NoError(t, err)

	first := s.Sign("/p")
	now = now.Add(58 * time.Minute)
	assert.Equal(t, first, s.Sign("/p"))

	now = now.Add(2 * time.Minute)
	next := s.Sign("/p")
	assert.NotEqual(t, first.Signature, next.Signature)
	assert.Equal(t, first.Expires, next.Issued)

	// memo 关闭时结果相同
	plain, err := NewSigner(testSecret, "1h", WithClock(fixedClock(&now)))
	require.NoError(t, err)
	assert.Equal(t, next, plain.Sign("/p"))
}

func TestSigner_Expired(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 59, 59, 0, time.UTC)
	s, err := NewSigner(testSecret, "1h", WithClock(fixedClock(&now)))
	require.NoError(t, err)
	p := s.Sign("/p").Params()

	now = now.Add(time.Second)
	assert.True(t, s.Verify("/p", p).Valid, "valid up to the bucket boundary")

	now = now.Add(time.Second)
	assert.Equal(t, Verification{Reason: ReasonExpired}, s.Verify("/p", p))
}

func TestSigner_InvalidSignature(t *testing.T) {
	s, err := NewSigner(testSecret, "1h")
	require.NoError(t, err)
	p := s.Sign("/p").Params()

	assert.Equal(t, ReasonInvalidSignature, s.Verify("/other", p).Reason)

	other, err := NewSigner("different-secret", "1h")
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidSignature, other.Verify("/p", p).Reason)

	tampered := p
	tampered.Is = "0"
	assert.Equal(t, ReasonInvalidSignature, s.Verify("/p", tampered).Reason)

	garbage := p
	garbage.Ex = "zz"
	assert.Equal(t, ReasonInvalidSignature, s.Verify("/p", garbage).Reason)
}

func TestSigner_ReasonOrder(t *testing.T) {
	s, err := NewSigner(testSecret, "1h")
	require.NoError(t, err)

	assert.Equal(t, ReasonMissingParams, s.Verify("/p", Params{Ex: "1", Is: "1"}).Reason)
	assert.Equal(t, ReasonMissingParams, s.Verify("/p", Params{}).Reason)
	// 过期优先于签名错误
	assert.Equal(t, ReasonExpired, s.Verify("/p", Params{Ex: "1", Is: "0", Hm: "deadbeef"}).Reason)
}

func TestSigner_SignURL(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	s, err := NewSigner(testSecret, "30m", WithClock(fixedClock(&now)))
	require.NoError(t, err)

	signed, err := s.SignURL("https://cdn.example.com/media/pages/c1/001.webp?w=800")
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "800", u.Query().Get("w"))
	assert.True(t, s.Verify(u.Path, ParamsFromQuery(u.Query())).Valid)

	_, err = s.SignURL("://bad")
	assert.Error(t, err)
}

func TestPackageLevelHelpers(t *testing.T) {
	p, err := SignURL(testSecret, "/a", "1h")
	require.NoError(t, err)
	assert.True(t, VerifySignature(testSecret, "/a", p).Valid)
	assert.Equal(t, ReasonInvalidSignature, VerifySignature("nope", "/a", p).Reason)

	_, err = SignURL("", "/a", "1h")
	assert.Error(t, err)
	_, err = SignURL(testSecret, "/a", "soon")
	assert.Error(t, err)
}

func TestSigner_SubSecondTTLUsesOneSecondBuckets(t *testing.T) {
	s, err := NewSigner(testSecret, "500ms")
	require.NoError(t, err)
	assert.Equal(t, time.Second, s.BucketWidth())
}
