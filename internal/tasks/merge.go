package tasks

import (
	"time"

	"github.com/taskdeck/internal/apierr"
)

// Directory resolves assignee display names to numeric user ids.
type Directory interface {
	ResolveUserID(username string) (int64, bool)
}

// Changes is a partial update. Nil fields are left as they are.
type Changes struct {
	Title          *string
	Description    *string
	Status         *Status
	Priority       *Priority
	AssignedTo     *UserRef
	EstimatedHours *string
	ActualHours    *string
	Deadline       *time.Time
	Tags           *[]string
}

// Merge returns task with changes applied. task is not modified.
func Merge(task Task, changes Changes) Task {
	out := task.Clone()
	if changes.Title != nil {
		out.Title = *changes.Title
	}
	if changes.Description != nil {
		out.Description = *changes.Description
	}
	if changes.Status != nil {
		out.Status = *changes.Status
	}
	if changes.Priority != nil {
		out.Priority = *changes.Priority
	}
	if changes.AssignedTo != nil {
		out.AssignedTo = *changes.AssignedTo
	}
	if changes.EstimatedHours != nil {
		out.EstimatedHours = clonePtr(changes.EstimatedHours)
	}
	if changes.ActualHours != nil {
		out.ActualHours = clonePtr(changes.ActualHours)
	}
	if changes.Deadline != nil {
		out.Deadline = clonePtr(changes.Deadline)
	}
	if changes.Tags != nil {
		out.Tags = mergeTags(task.Tags, *changes.Tags)
	}
	return out
}

// mergeTags keeps the ids of tags that survive; new names get id 0 until the
// server assigns one.
func mergeTags(current []Tag, names []string) []Tag {
	ids := make(map[string]int64, len(current))
	for _, t := range current {
		ids[t.Name] = t.ID
	}
	out := make([]Tag, 0, len(names))
	for _, n := range names {
		out = append(out, Tag{ID: ids[n], Name: n})
	}
	return out
}

// ResolveAssignee returns the numeric id behind ref.
func ResolveAssignee(ref UserRef, dir Directory) (int64, error) {
	if ref.Numeric {
		return ref.ID, nil
	}
	if dir != nil && ref.Name != "" {
		if id, ok := dir.ResolveUserID(ref.Name); ok {
			return id, nil
		}
	}
	return 0, apierr.New(apierr.UnresolvedAssignee,
		"Cannot find user ID for assigned user: %s. Please ensure users are loaded.", ref.Name)
}

// ExpandWrite turns a partial change to task into the full record the update
// endpoint requires.
func ExpandWrite(task Task, changes Changes, dir Directory) (TaskWrite, error) {
	merged := Merge(task, changes)
	assignee, err := ResolveAssignee(merged.AssignedTo, dir)
	if err != nil {
		return TaskWrite{}, err
	}
	return TaskWrite{
		Title:          merged.Title,
		Description:    merged.Description,
		Status:         merged.Status,
		Priority:       merged.Priority,
		AssignedTo:     assignee,
		ParentTask:     merged.ParentTask,
		EstimatedHours: blankToNil(merged.EstimatedHours),
		ActualHours:    blankToNil(merged.ActualHours),
		Deadline:       merged.Deadline,
		Tags:           merged.TagNames(),
	}, nil
}

func blankToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// StatusChange is the common single-field change.
func StatusChange(s Status) Changes {
	return Changes{Status: &s}
}
