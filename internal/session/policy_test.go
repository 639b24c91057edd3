package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowed(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleManager, ActionCreateTaskForOther, true},
		{RoleDeveloper, ActionCreateTaskForOther, false},
		{RoleAuditor, ActionCreateTaskForOther, false},
		{RoleManager, ActionWrite, true},
		{RoleDeveloper, ActionWrite, true},
		{RoleAuditor, ActionWrite, false},
		{RoleAuditor, ActionRead, true},
		{RoleDeveloper, ActionRead, true},
		{RoleManager, Action("delete_everything"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Allowed(tc.role, tc.action), "%s/%s", tc.role, tc.action)
	}
}

func TestCanPerformAction_AnonymousDenied(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.ctrl.CanPerformAction(ActionRead))
	assert.False(t, h.ctrl.HasRole(RoleDeveloper))
}

func TestCanPerformAction_UsesProfileRole(t *testing.T) {
	h := newHarness(t)
	h.backend.AddUser("eve", "Passw0rd1", "auditor", true)
	require.NoError(t, h.ctrl.Login(context.Background(), "eve", "Passw0rd1"))

	assert.True(t, h.ctrl.HasRole(RoleAuditor))
	assert.True(t, h.ctrl.CanPerformAction(ActionRead))
	assert.False(t, h.ctrl.CanPerformAction(ActionWrite))
}

func TestWorkingHours(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	inside := time.Date(2026, 3, 2, 10, 30, 0, 0, ny)
	got := workingHours("America/New_York", inside)
	assert.True(t, got.Allowed)

	evening := time.Date(2026, 3, 2, 19, 0, 0, 0, ny)
	got = workingHours("America/New_York", evening)
	assert.False(t, got.Allowed)
	assert.Contains(t, got.Message, "(America/New_York)")
	assert.True(t, got.NextAvailable.Equal(time.Date(2026, 3, 3, 9, 0, 0, 0, ny)))

	early := time.Date(2026, 3, 2, 7, 0, 0, 0, ny)
	got = workingHours("America/New_York", early)
	assert.False(t, got.Allowed)
	assert.True(t, got.NextAvailable.Equal(time.Date(2026, 3, 2, 9, 0, 0, 0, ny)))
}

func TestCanUpdateNow(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Login(context.Background(), "alice", "Passw0rd1"))
	night := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)

	assert.False(t, h.ctrl.CanUpdateNow("high", night).Allowed)
	assert.True(t, h.ctrl.CanUpdateNow("critical", night).Allowed)
	assert.True(t, h.ctrl.CanUpdateNow("high", night.Add(-10*time.Hour)).Allowed)
}
