package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/internal/apierr"
	"github.com/taskdeck/internal/challenge"
	"github.com/taskdeck/internal/credentials"
	"github.com/taskdeck/internal/gateway"
	"github.com/taskdeck/internal/notify"
	"github.com/taskdeck/internal/testutil"
)

type harness struct {
	backend *testutil.Backend
	store   *credentials.MemoryStore
	ch      *challenge.State
	notes   *notify.Recorder
	ctrl    *Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		backend: testutil.NewBackend(t),
		store:   credentials.NewMemoryStore(),
		ch:      challenge.New(),
		notes:   &notify.Recorder{},
	}
	gw := gateway.New(h.backend.URL(), h.store, h.ch, gateway.WithNotifier(h.notes))
	h.ctrl = NewController(gw, h.store, h.ch, h.notes)
	h.backend.AddUser("alice", "Passw0rd1", "developer", true)
	return h
}

func TestLogin_StoresCredentialsAndFetchesProfile(t *testing.T) {
	h := newHarness(t)
	access, refresh := h.backend.Issue(t, "alice")
	h.backend.Fail(http.MethodPost, "/auth/login/", testutil.Fault{
		Status: http.StatusOK,
		Body:   fmt.Sprintf(`{"access":%q,"refresh":%q}`, access, refresh),
	})

	require.NoError(t, h.ctrl.Login(context.Background(), "alice", "Passw0rd1"))

	logins := h.backend.RequestsTo(http.MethodPost, "/auth/login/")
	require.Len(t, logins, 1)
	assert.Empty(t, logins[0].Header.Get(gateway.HeaderCaptchaAnswer))
	var body map[string]string
	require.NoError(t, json.Unmarshal(logins[0].Body, &body))
	assert.Equal(t, map[string]string{"username": "alice", "password": "Passw0rd1"}, body)

	assert.Equal(t, access, h.store.Access())
	assert.Equal(t, refresh, h.store.Renewal())

	profile := h.backend.RequestsTo(http.MethodGet, "/auth/me/")
	require.Len(t, profile, 1)
	assert.Equal(t, "Bearer "+access, profile[0].Header.Get("Authorization"))

	assert.Equal(t, Authenticated, h.ctrl.State())
	assert.Equal(t, "alice", h.ctrl.User().Username)
	assert.Equal(t, []string{"Login successful!"}, h.notes.Messages(notify.Success))
}

func TestLogin_UnverifiedProfile(t *testing.T) {
	h := newHarness(t)
	h.backend.AddUser("bob", "Passw0rd1", "manager", false)

	require.NoError(t, h.ctrl.Login(context.Background(), "bob", "Passw0rd1"))
	assert.Equal(t, EmailUnverified, h.ctrl.State())
	assert.True(t, h.ctrl.IsAuthenticated())
	assert.False(t, h.ctrl.IsEmailVerified())
}

func TestLogin_ChallengeArmsThenAnswerIsSent(t *testing.T) {
	h := newHarness(t)
	h.backend.RequireCaptcha("2+2?", "4")

	err := h.ctrl.Login(context.Background(), "alice", "Passw0rd1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ChallengeRequired))
	assert.Equal(t, "2+2?", h.ch.Question())
	assert.Equal(t, Anonymous, h.ctrl.State())
	assert.NotEmpty(t, h.notes.Messages(notify.Error))

	h.ch.SetAnswer("4")
	require.NoError(t, h.ctrl.Login(context.Background(), "alice", "Passw0rd1"))

	logins := h.backend.RequestsTo(http.MethodPost, "/auth/login/")
	require.Len(t, logins, 2)
	assert.Equal(t, "4", logins[1].Header.Get(gateway.HeaderCaptchaAnswer))
	assert.False(t, h.ch.Armed(), "challenge is cleared after a successful login")
	assert.Equal(t, Authenticated, h.ctrl.State())
}

func TestLogin_WrongAnswerRearmsAndClearsAnswer(t *testing.T) {
	h := newHarness(t)
	h.backend.RequireCaptcha("3+4?", "7")
	h.ch.Arm("3+4?")
	h.ch.SetAnswer("8")

	err := h.ctrl.Login(context.Background(), "alice", "Passw0rd1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ChallengeRequired))
	assert.Equal(t, "3+4?", h.ch.Question())
	_, ok := h.ch.Answer()
	assert.False(t, ok)
}

func TestLogin_BadPasswordSurfacesServerMessage(t *testing.T) {
	h := newHarness(t)

	err := h.ctrl.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.Equal(t, Anonymous, h.ctrl.State())
	assert.Empty(t, h.store.Access())
	assert.Equal(t, []string{"No active account found with the given credentials"}, h.notes.Messages(notify.Error))
}

func TestLogin_UndecodableCredentialFails(t *testing.T) {
	h := newHarness(t)
	h.backend.Fail(http.MethodPost, "/auth/login/", testutil.Fault{
		Status: http.StatusOK,
		Body:   `{"access":"A","refresh":"R"}`,
	})

	err := h.ctrl.Login(context.Background(), "alice", "Passw0rd1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.CredentialDecodeFailure))
	assert.Empty(t, h.store.Access())
	assert.Empty(t, h.backend.RequestsTo(http.MethodGet, "/auth/me/"))
	assert.Equal(t, Anonymous, h.ctrl.State())
}

func TestRegister_DoesNotTouchSession(t *testing.T) {
	h := newHarness(t)

	err := h.ctrl.Register(context.Background(), Registration{
		Username: "carol", Email: "carol@example.com", Password: "Passw0rd1", Role: RoleAuditor,
	})
	require.NoError(t, err)

	assert.Len(t, h.backend.RequestsTo(http.MethodPost, "/auth/register/"), 1)
	assert.Empty(t, h.backend.RequestsTo(http.MethodPost, "/auth/login/"))
	assert.Empty(t, h.store.Access())
	assert.Equal(t, Anonymous, h.ctrl.State())
	assert.Equal(t, []string{"Registration successful! Please verify your email."}, h.notes.Messages(notify.Success))
}

func TestRegister_LocalValidationSendsNothing(t *testing.T) {
	h := newHarness(t)

	err := h.ctrl.Register(context.Background(), Registration{
		Username: "dave", Email: "not-an-email", Password: "short", Role: "admin",
	})
	require.Error(t, err)

	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierr.ValidationRejected, apiErr.Kind)
	assert.Contains(t, apiErr.Fields, "email")
	assert.Contains(t, apiErr.Fields, "password")
	assert.Contains(t, apiErr.Fields, "role")
	assert.Empty(t, h.backend.Requests())
}

func TestRegister_ServerValidationEchoed(t *testing.T) {
	h := newHarness(t)

	err := h.ctrl.Register(context.Background(), Registration{
		Username: "alice", Email: "alice2@example.com", Password: "Passw0rd1", Role: RoleDeveloper,
	})
	require.Error(t, err)

	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, []string{"A user with that username already exists."}, apiErr.Fields["username"])
}

func TestLogout_RevokesAndClears(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Login(context.Background(), "alice", "Passw0rd1"))
	refresh := h.store.Renewal()
	h.ch.Arm("stale?")

	h.ctrl.Logout(context.Background())

	assert.Equal(t, []string{refresh}, h.backend.Revoked())
	assert.Empty(t, h.store.Access())
	assert.Empty(t, h.store.Renewal())
	assert.False(t, h.ch.Armed())
	assert.Equal(t, Anonymous, h.ctrl.State())
	assert.Nil(t, h.ctrl.User())
}

func TestLogout_IgnoresRevokeFailure(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Login(context.Background(), "alice", "Passw0rd1"))
	h.backend.Fail(http.MethodPost, "/auth/logout/", testutil.Fault{Status: http.StatusBadGateway})

	h.ctrl.Logout(context.Background())

	assert.Empty(t, h.store.Access())
	assert.Equal(t, Anonymous, h.ctrl.State())
}

func TestVerifyEmail_RefreshesProfile(t *testing.T) {
	h := newHarness(t)
	h.backend.AddUser("bob", "Passw0rd1", "developer", false)
	require.NoError(t, h.ctrl.Login(context.Background(), "bob", "Passw0rd1"))
	require.Equal(t, EmailUnverified, h.ctrl.State())

	require.NoError(t, h.ctrl.VerifyEmail(context.Background(), "code-bob"))
	assert.Equal(t, Authenticated, h.ctrl.State())
	assert.Len(t, h.backend.RequestsTo(http.MethodGet, "/auth/verify-email/code-bob/"), 1)
}

func TestVerifyEmail_WithoutSession(t *testing.T) {
	h := newHarness(t)
	h.backend.AddUser("bob", "Passw0rd1", "developer", false)

	require.NoError(t, h.ctrl.VerifyEmail(context.Background(), "code-bob"))
	assert.Empty(t, h.backend.RequestsTo(http.MethodGet, "/auth/me/"))
	assert.Equal(t, Anonymous, h.ctrl.State())

	err := h.ctrl.VerifyEmail(context.Background(), "bogus")
	require.Error(t, err)
	assert.Contains(t, h.notes.Messages(notify.Error), "Invalid or expired token")
}

func TestStart_RestoresSession(t *testing.T) {
	h := newHarness(t)
	access, refresh := h.backend.Issue(t, "alice")
	h.store.Save(access, refresh)
	require.True(t, h.ctrl.Loading())

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, Authenticated, h.ctrl.State())
	assert.False(t, h.ctrl.Loading())
}

func TestStart_ExpiredCredentialStaysAnonymous(t *testing.T) {
	h := newHarness(t)
	h.store.Save(testutil.AccessToken(t, time.Now().Add(-time.Minute)), "r")

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, Anonymous, h.ctrl.State())
	assert.Empty(t, h.backend.Requests())
	assert.False(t, h.ctrl.Loading())
}

func TestStart_FailureClearsCredentials(t *testing.T) {
	h := newHarness(t)
	access, refresh := h.backend.Issue(t, "alice")
	h.store.Save(access, refresh)
	h.backend.Fail(http.MethodGet, "/auth/me/", testutil.Fault{Status: http.StatusInternalServerError})

	require.Error(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, Anonymous, h.ctrl.State())
	assert.Empty(t, h.store.Access())
}

func TestStart_CancelledCheckLeavesStateAlone(t *testing.T) {
	h := newHarness(t)
	access, refresh := h.backend.Issue(t, "alice")
	h.store.Save(access, refresh)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.ctrl.Start(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, access, h.store.Access(), "credentials survive an aborted check")
	assert.Equal(t, Anonymous, h.ctrl.State())
	assert.Nil(t, h.ctrl.User())

	// A fresh start after remount resolves normally.
	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, Authenticated, h.ctrl.State())
}

func TestStart_CancelledDuringRenewalKeepsCredentials(t *testing.T) {
	h := newHarness(t)
	access, refresh := h.backend.Issue(t, "alice")
	h.store.Save(access, refresh)
	h.backend.Fail(http.MethodGet, "/auth/me/", testutil.Fault{Status: http.StatusUnauthorized})
	h.backend.Fail(http.MethodPost, gateway.RefreshPath, testutil.Fault{Stall: true})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err := h.ctrl.Start(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, access, h.store.Access())
	assert.Equal(t, refresh, h.store.Renewal())
	assert.Equal(t, Anonymous, h.ctrl.State())
	assert.Nil(t, h.ctrl.User())
}

func TestLogin_PersistenceFailureIsReported(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "credentials.json")
	store, err := credentials.OpenFileStore(path)
	require.NoError(t, err)
	// The store writes through path+".tmp"; a directory there makes every write fail.
	require.NoError(t, os.Mkdir(path+".tmp", 0o700))
	gw := gateway.New(h.backend.URL(), store, h.ch, gateway.WithNotifier(h.notes))
	ctrl := NewController(gw, store, h.ch, h.notes)

	err = ctrl.Login(context.Background(), "alice", "Passw0rd1")
	require.Error(t, err)
	assert.ErrorIs(t, err, credentials.ErrNotPersisted)
	assert.False(t, errors.Is(err, apierr.CredentialDecodeFailure))
	assert.Equal(t, []string{"failed to store credentials"}, h.notes.Messages(notify.Error))
	assert.Empty(t, store.Access())
	assert.Equal(t, Anonymous, ctrl.State())
	assert.Empty(t, h.backend.RequestsTo(http.MethodGet, "/auth/me/"))
}

func TestGatewayGivingUpResetsSession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Login(context.Background(), "alice", "Passw0rd1"))
	h.backend.ExpireAccessTokens()
	h.backend.FailRefresh(true)

	err := h.ctrl.RefreshUser(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.AuthUnrecoverable))
	assert.Equal(t, Anonymous, h.ctrl.State())
	assert.Nil(t, h.ctrl.User())
}

func TestStaff_ResolvesNames(t *testing.T) {
	h := newHarness(t)
	h.backend.AddUser("bob", "Passw0rd1", "manager", true)
	h.backend.AddUser("eve", "Passw0rd1", "auditor", true)
	require.NoError(t, h.ctrl.Login(context.Background(), "alice", "Passw0rd1"))

	staff, err := h.ctrl.Staff(context.Background())
	require.NoError(t, err)
	require.Len(t, staff, 2)

	id, ok := staff.ResolveUserID("bob")
	assert.True(t, ok)
	assert.Equal(t, int64(2), id)
	_, ok = staff.ResolveUserID("eve")
	assert.False(t, ok, "auditors are not assignable")
}

func TestUser_AcceptsCamelCaseVerification(t *testing.T) {
	var u User
	require.NoError(t, json.Unmarshal([]byte(`{"id":3,"username":"x","role":"manager","isEmailVerified":true}`), &u))
	assert.True(t, u.IsEmailVerified)
	assert.Equal(t, RoleManager, u.Role)
}
