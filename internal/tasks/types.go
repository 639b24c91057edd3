// Package tasks holds the task read models, the REST client for the task
// endpoints and the optimistic mutation coordinator over the local cache.
package tasks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusCompleted  Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusBlocked, StatusCompleted:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// UserRef is an assignee reference. Reads carry a display name; some
// responses echo the write shape and carry the numeric id instead.
type UserRef struct {
	Name string
	ID   int64
	// Numeric is set when the reference is an id rather than a name.
	Numeric bool
}

func Named(name string) UserRef { return UserRef{Name: name} }

func ByID(id int64) UserRef { return UserRef{ID: id, Numeric: true} }

func (r UserRef) String() string {
	if r.Numeric {
		return strconv.FormatInt(r.ID, 10)
	}
	return r.Name
}

func (r UserRef) MarshalJSON() ([]byte, error) {
	if r.Numeric {
		return []byte(strconv.FormatInt(r.ID, 10)), nil
	}
	return json.Marshal(r.Name)
}

func (r *UserRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = UserRef{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*r = Named(name)
		return nil
	}
	id, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("assignee must be a name or an id, got %s", data)
	}
	*r = ByID(id)
	return nil
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Task is the read shape returned by the task endpoints.
type Task struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         Status     `json:"status"`
	Priority       Priority   `json:"priority"`
	AssignedTo     UserRef    `json:"assigned_to"`
	CreatedBy      string     `json:"created_by"`
	ParentTask     *int64     `json:"parent_task"`
	EstimatedHours *string    `json:"estimated_hours"`
	ActualHours    *string    `json:"actual_hours"`
	Deadline       *time.Time `json:"deadline"`
	Tags           []Tag      `json:"tags"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Clone returns a copy sharing no memory with t.
func (t Task) Clone() Task {
	c := t
	c.ParentTask = clonePtr(t.ParentTask)
	c.EstimatedHours = clonePtr(t.EstimatedHours)
	c.ActualHours = clonePtr(t.ActualHours)
	c.Deadline = clonePtr(t.Deadline)
	if t.Tags != nil {
		c.Tags = append([]Tag(nil), t.Tags...)
	}
	return c
}

// TagNames returns the names of t's tags in order.
func (t Task) TagNames() []string {
	names := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		names = append(names, tag.Name)
	}
	return names
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// TaskWrite is the full-record payload accepted by create and update.
type TaskWrite struct {
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         Status     `json:"status,omitempty"`
	Priority       Priority   `json:"priority,omitempty"`
	AssignedTo     int64      `json:"assigned_to"`
	ParentTask     *int64     `json:"parent_task"`
	EstimatedHours *string    `json:"estimated_hours"`
	ActualHours    *string    `json:"actual_hours"`
	Deadline       *time.Time `json:"deadline"`
	Tags           []string   `json:"tags"`
}

// HistoryEntry is one recorded status transition.
type HistoryEntry struct {
	ID             int64     `json:"id"`
	Task           int64     `json:"task"`
	TaskTitle      string    `json:"task_title"`
	ChangedBy      *int64    `json:"changed_by"`
	ChangedByName  string    `json:"changed_by_name"`
	PreviousStatus Status    `json:"previous_status"`
	NewStatus      Status    `json:"new_status"`
	Timestamp      time.Time `json:"timestamp"`
	Notes          *string   `json:"notes"`
}

type BlockedTask struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type MyTasks struct {
	Total             int            `json:"total"`
	ByStatus          map[Status]int `json:"by_status"`
	OverdueCount      int            `json:"overdue_count"`
	AvgCompletionTime string         `json:"avg_completion_time"`
}

type TeamTasks struct {
	Total                        int              `json:"total"`
	BlockedTasksNeedingAttention []BlockedTask    `json:"blocked_tasks_needing_attention"`
	PriorityDistribution         map[Priority]int `json:"priority_distribution"`
}

// Analytics is the dashboard summary for the signed-in user.
type Analytics struct {
	MyTasks         MyTasks   `json:"my_tasks"`
	TeamTasks       TeamTasks `json:"team_tasks"`
	EfficiencyScore float64   `json:"efficiency_score"`
}

// BulkUpdate is the payload of the bulk status endpoint.
type BulkUpdate struct {
	TaskIDs []int64 `json:"task_ids"`
	Status  Status  `json:"status"`
}

type BulkResult struct {
	UpdatedCount int `json:"updated_count"`
}
