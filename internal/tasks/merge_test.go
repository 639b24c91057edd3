package tasks

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/internal/apierr"
)

type directory map[string]int64

func (d directory) ResolveUserID(name string) (int64, bool) {
	id, ok := d[name]
	return id, ok
}

func ptr[T any](v T) *T { return &v }

func sampleTask() Task {
	deadline := time.Date(2026, 11, 1, 17, 0, 0, 0, time.UTC)
	return Task{
		ID:             7,
		Title:          "Ship release",
		Description:    "cut the tag",
		Status:         StatusPending,
		Priority:       PriorityHigh,
		AssignedTo:     Named("alice"),
		CreatedBy:      "bob",
		ParentTask:     ptr(int64(3)),
		EstimatedHours: ptr("4.50"),
		ActualHours:    ptr(""),
		Deadline:       &deadline,
		Tags:           []Tag{{ID: 1, Name: "backend"}, {ID: 2, Name: "urgent"}},
	}
}

func TestMerge_DoesNotModifyInput(t *testing.T) {
	task := sampleTask()
	before := task.Clone()

	merged := Merge(task, Changes{
		Status: ptr(StatusInProgress),
		Tags:   &[]string{"urgent", "frontend"},
	})

	if diff := cmp.Diff(before, task); diff != "" {
		t.Fatalf("input mutated (-want +got):\n%s", diff)
	}
	assert.Equal(t, StatusInProgress, merged.Status)
	assert.Equal(t, PriorityHigh, merged.Priority)
	assert.Equal(t, []Tag{{ID: 2, Name: "urgent"}, {ID: 0, Name: "frontend"}}, merged.Tags)

	*merged.ParentTask = 99
	assert.Equal(t, int64(3), *task.ParentTask)
}

func TestExpandWrite_FullRecord(t *testing.T) {
	task := sampleTask()

	w, err := ExpandWrite(task, StatusChange(StatusCompleted), directory{"alice": 1})
	require.NoError(t, err)

	want := TaskWrite{
		Title:          "Ship release",
		Description:    "cut the tag",
		Status:         StatusCompleted,
		Priority:       PriorityHigh,
		AssignedTo:     1,
		ParentTask:     ptr(int64(3)),
		EstimatedHours: ptr("4.50"),
		ActualHours:    nil,
		Deadline:       task.Deadline,
		Tags:           []string{"backend", "urgent"},
	}
	if diff := cmp.Diff(want, w); diff != "" {
		t.Fatalf("unexpected write (-want +got):\n%s", diff)
	}
}

func TestExpandWrite_AssigneeResolution(t *testing.T) {
	task := sampleTask()

	t.Run("numeric assignee needs no directory", func(t *testing.T) {
		task := task.Clone()
		task.AssignedTo = ByID(5)
		w, err := ExpandWrite(task, Changes{}, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(5), w.AssignedTo)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := ExpandWrite(task, Changes{}, directory{"bob": 2})
		require.Error(t, err)
		assert.True(t, errors.Is(err, apierr.UnresolvedAssignee))
		assert.Contains(t, err.Error(), "alice")
	})

	t.Run("reassignment resolved the same way", func(t *testing.T) {
		w, err := ExpandWrite(task, Changes{AssignedTo: ptr(Named("bob"))}, directory{"bob": 2})
		require.NoError(t, err)
		assert.Equal(t, int64(2), w.AssignedTo)
	})

	t.Run("nil directory", func(t *testing.T) {
		_, err := ExpandWrite(task, Changes{}, nil)
		assert.True(t, errors.Is(err, apierr.UnresolvedAssignee))
	})
}

func TestUserRef_JSON(t *testing.T) {
	var task Task
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"assigned_to":"alice"}`), &task))
	assert.Equal(t, Named("alice"), task.AssignedTo)

	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"assigned_to":4}`), &task))
	assert.Equal(t, ByID(4), task.AssignedTo)

	out, err := json.Marshal(ByID(4))
	require.NoError(t, err)
	assert.JSONEq(t, `4`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"assigned_to":true}`), &task))
}

func TestFilters_Values(t *testing.T) {
	overdue := true
	f := Filters{
		Status:     StatusPending,
		Priority:   PriorityHigh,
		AssignedTo: 2,
		Tags:       []string{"a", "b"},
		Overdue:    &overdue,
		Search:     "bug",
	}
	assert.Equal(t, "assigned_to=2&overdue=true&priority=high&search=bug&status=pending&tags=a&tags=b", f.Values().Encode())
	assert.Empty(t, Filters{}.Values())
}
