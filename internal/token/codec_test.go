package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCodec(t *testing.T, now func() time.Time) *Codec {
	t.Helper()
	c, err := NewCodec(Config{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "authd",
		Now:           now,
	})
	require.NoError(t, err)
	return c
}

func TestNewCodec_RejectsSharedSecret(t *testing.T) {
	_, err := NewCodec(Config{
		AccessSecret:  []byte("same"),
		RefreshSecret: []byte("same"),
	})
	require.Error(t, err)
}

func TestAccessRoundTrip(t *testing.T) {
	c := testCodec(t, nil)

	raw, err := c.IssueAccess("user-1", "sess-1")
	require.NoError(t, err)

	p, err := c.VerifyAccess(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, "sess-1", p.SessionID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), p.ExpiresAt, 5*time.Second)
}

func TestRefreshRoundTrip(t *testing.T) {
	c := testCodec(t, nil)

	raw, err := c.IssueRefresh("sess-9")
	require.NoError(t, err)

	p, err := c.VerifyRefresh(raw)
	require.NoError(t, err)
	assert.Equal(t, "sess-9", p.SessionID)
}

func TestVerify_ExpiredIsDistinctFromInvalid(t *testing.T) {
	issued := time.Now().UTC()
	clock := issued
	c := testCodec(t, func() time.Time { return clock })

	raw, err := c.IssueAccess("user-1", "sess-1")
	require.NoError(t, err)

	clock = issued.Add(16 * time.Minute)
	_, err = c.VerifyAccess(raw)
	assert.ErrorIs(t, err, ErrExpired)

	_, err = c.VerifyAccess("not-a-token")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerify_CrossKindFails(t *testing.T) {
	c := testCodec(t, nil)

	access, err := c.IssueAccess("user-1", "sess-1")
	require.NoError(t, err)
	refresh, err := c.IssueRefresh("sess-1")
	require.NoError(t, err)

	_, err = c.VerifyRefresh(access)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = c.VerifyAccess(refresh)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerify_TamperedSignature(t *testing.T) {
	c := testCodec(t, nil)

	raw, err := c.IssueAccess("user-1", "sess-1")
	require.NoError(t, err)

	tampered := raw[:len(raw)-2] + "xx"
	_, err = c.VerifyAccess(tampered)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerify_WrongIssuer(t *testing.T) {
	other, err := NewCodec(Config{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
		Issuer:        "someone-else",
	})
	require.NoError(t, err)

	raw, err := other.IssueAccess("user-1", "sess-1")
	require.NoError(t, err)

	c := testCodec(t, nil)
	_, err = c.VerifyAccess(raw)
	assert.ErrorIs(t, err, ErrInvalid)
}
