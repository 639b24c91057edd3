package session

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Action names an operation checked by CanPerformAction.
type Action string

const (
	ActionRead               Action = "read"
	ActionWrite              Action = "write"
	ActionCreateTaskForOther Action = "create_task_for_others"
)

// Working hours during which developers may update non-critical tasks.
const (
	WorkdayStartHour = 9
	WorkdayEndHour   = 18
)

func (c *Controller) HasRole(role Role) bool {
	u := c.User()
	return u != nil && u.Role == role
}

// CanPerformAction applies the authorization policy to the current profile.
// Anonymous sessions and unknown actions are denied.
func (c *Controller) CanPerformAction(action Action) bool {
	u := c.User()
	if u == nil {
		return false
	}
	return Allowed(u.Role, action)
}

// Allowed is the policy behind CanPerformAction.
func Allowed(role Role, action Action) bool {
	switch action {
	case ActionCreateTaskForOther:
		return role == RoleManager
	case ActionWrite:
		return role != RoleAuditor
	case ActionRead:
		return true
	default:
		return false
	}
}

// TemporalAccess is the outcome of a working-hours check.
type TemporalAccess struct {
	Allowed       bool
	Message       string
	NextAvailable time.Time
}

// CanUpdateNow reports whether the current user may update a task of the
// given priority at now. Developers are limited to working hours in their
// own timezone unless the task is critical.
func (c *Controller) CanUpdateNow(priority string, now time.Time) TemporalAccess {
	u := c.User()
	if u == nil || u.Role != RoleDeveloper || priority == "critical" {
		return TemporalAccess{Allowed: true}
	}
	return workingHours(u.Timezone, now)
}

func workingHours(timezone string, now time.Time) TemporalAccess {
	loc, err := time.LoadLocation(timezone)
	if timezone == "" || err != nil {
		if err != nil {
			log.Warn().Err(err).Str("timezone", timezone).Msg("Unknown timezone, using UTC")
		}
		loc = time.UTC
		timezone = "UTC"
	}

	local := now.In(loc)
	if local.Hour() >= WorkdayStartHour && local.Hour() < WorkdayEndHour {
		return TemporalAccess{Allowed: true}
	}

	next := time.Date(local.Year(), local.Month(), local.Day(), WorkdayStartHour, 0, 0, 0, loc)
	if local.Hour() >= WorkdayEndHour {
		next = next.AddDate(0, 0, 1)
	}
	return TemporalAccess{
		Allowed:       false,
		Message:       fmt.Sprintf("You can only update tasks between 9 AM - 6 PM in your timezone (%s).", timezone),
		NextAvailable: next,
	}
}
