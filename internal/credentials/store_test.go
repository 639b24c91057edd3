package credentials

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedAccess(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"user_id": 7, "exp": exp.Unix()}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestSave_RecordsExpiryFromClaims(t *testing.T) {
	exp := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	s := NewMemoryStore()

	s.Save(signedAccess(t, exp), "renew-1")

	tok := s.Token()
	require.NotNil(t, tok)
	assert.True(t, tok.Expiry.Equal(exp))
	assert.Equal(t, "renew-1", s.Renewal())
	assert.False(t, s.IsExpired())
}

func TestSave_UndecodableTokenKeepsPriorState(t *testing.T) {
	s := NewMemoryStore()
	good := signedAccess(t, time.Now().Add(time.Hour))
	s.Save(good, "renew-1")

	err := s.Save("not-a-jwt", "renew-2")
	assert.ErrorIs(t, err, ErrUndecodable)

	assert.Equal(t, good, s.Access())
	assert.Equal(t, "renew-1", s.Renewal())
}

func TestIsExpired_FailsClosedWithoutExpiry(t *testing.T) {
	s := NewMemoryStore()
	assert.True(t, s.IsExpired())
	assert.Empty(t, s.Access())
	assert.Nil(t, s.Token())
}

func TestExpiringSoon(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.SetClock(func() time.Time { return now })
	s.Save(signedAccess(t, now.Add(90*time.Second)), "r")

	assert.False(t, s.IsExpired())
	assert.True(t, s.ExpiringSoon(DefaultExpiryThreshold))
	assert.False(t, s.ExpiringSoon(time.Minute))

	s.SetClock(func() time.Time { return now.Add(90 * time.Second) })
	assert.True(t, s.IsExpired())
}

func TestClear(t *testing.T) {
	s := NewMemoryStore()
	s.Save(signedAccess(t, time.Now().Add(time.Hour)), "r")
	s.Clear()

	assert.Empty(t, s.Access())
	assert.Empty(t, s.Renewal())
	assert.True(t, s.IsExpired())
}

func TestFileStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	access := signedAccess(t, exp)

	fs, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, fs.Save(access, "renew-1"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, access, reopened.Access())
	assert.Equal(t, "renew-1", reopened.Renewal())
	assert.True(t, reopened.Token().Expiry.Equal(exp))

	reopened.Clear()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileStore_CorruptFileIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0600))

	_, err := OpenFileStore(path)
	require.Error(t, err)
}

func TestFileStore_WriteFailureKeepsPriorState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	fs, err := OpenFileStore(path)
	require.NoError(t, err)
	first := signedAccess(t, time.Now().Add(time.Hour))
	require.NoError(t, fs.Save(first, "renew-1"))

	require.NoError(t, os.Mkdir(path+".tmp", 0700))
	err = fs.Save(signedAccess(t, time.Now().Add(2*time.Hour)), "renew-2")
	assert.ErrorIs(t, err, ErrNotPersisted)
	assert.NotErrorIs(t, err, ErrUndecodable)

	assert.Equal(t, first, fs.Access())
	assert.Equal(t, "renew-1", fs.Renewal())
}
