package tasks

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/taskdeck/internal/apierr"
	"github.com/taskdeck/internal/notify"
)

// Coordinator applies task mutations to the server and keeps the shared
// cache consistent with the outcome.
type Coordinator struct {
	service  *Service
	cache    *Cache
	notifier notify.Notifier
}

func NewCoordinator(s *Service, c *Cache, n notify.Notifier) *Coordinator {
	if n == nil {
		n = notify.Discard
	}
	return &Coordinator{service: s, cache: c, notifier: n}
}

func (c *Coordinator) Cache() *Cache { return c.cache }

func (c *Coordinator) Service() *Service { return c.service }

// Refetch reloads the full task list into the cache.
func (c *Coordinator) Refetch(ctx context.Context) error {
	return c.cache.Refresh(ctx, func(ctx context.Context) ([]Task, error) {
		return c.service.List(ctx, Filters{})
	})
}

func (c *Coordinator) refetchAfterWrite(ctx context.Context) {
	if err := c.Refetch(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to refetch tasks after write")
	}
}

func find(tasks []Task, id int64) (Task, bool) {
	for _, t := range tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// ApplyOptimistic shows changes in the cache immediately, then writes the
// full record. On success the cache is refetched; on failure it is restored
// to exactly what it held before the call. current is the task list the
// caller is looking at; when empty the cache contents are used.
//
// A missing task or an assignee that cannot be resolved to a user id fails
// before anything is sent or cached.
func (c *Coordinator) ApplyOptimistic(ctx context.Context, taskID int64, changes Changes, current []Task, dir Directory) error {
	if len(current) == 0 {
		current = c.cache.All()
	}
	task, ok := find(current, taskID)
	if !ok {
		err := apierr.New(apierr.TaskNotFound, "Task not found")
		log.Error().Int64("task_id", taskID).Int("known_tasks", len(current)).Msg("Task not found")
		c.notifier.Notify(notify.Error, err.Message)
		return err
	}

	write, err := ExpandWrite(task, changes, dir)
	if err != nil {
		log.Error().Err(err).Int64("task_id", taskID).Str("assigned_to", task.AssignedTo.String()).Msg("Cannot build full task record")
		c.notifier.Notify(notify.Error, apierr.Message(err, "Failed to update task"))
		return err
	}

	snapshot := c.cache.Snapshot()
	base := task
	if cached, ok := c.cache.Get(taskID); ok {
		base = cached
	}
	c.cache.Put(Merge(base, changes))

	log.Debug().Int64("task_id", taskID).Str("status", string(write.Status)).Msg("Sending full task record")
	updated, err := c.service.Update(ctx, taskID, write)
	if err != nil {
		c.cache.Restore(snapshot)
		log.Warn().Err(err).Int64("task_id", taskID).Msg("Update failed, rolled back")
		c.notifier.Notify(notify.Error, "Failed to update task. Changes reverted.")
		return fmt.Errorf("failed to update task %d: %w", taskID, err)
	}

	c.cache.Put(*updated)
	c.refetchAfterWrite(ctx)
	c.notifier.Notify(notify.Success, "Task updated successfully!")
	return nil
}

// BulkUpdateStatus moves every task in ids to status and returns the number
// the server reports as updated.
func (c *Coordinator) BulkUpdateStatus(ctx context.Context, ids []int64, status Status) (int, error) {
	if !status.Valid() {
		err := apierr.New(apierr.ValidationRejected, "Invalid status %q", status)
		err.Fields = map[string][]string{"status": {"A valid status is required."}}
		c.notifier.Notify(notify.Error, err.Message)
		return 0, err
	}

	res, err := c.service.BulkUpdate(ctx, BulkUpdate{TaskIDs: ids, Status: status})
	if err != nil {
		log.Error().Err(err).Int("tasks", len(ids)).Msg("Bulk update failed")
		c.notifier.Notify(notify.Error, apierr.Message(err, "Bulk update failed"))
		return 0, err
	}

	count := res.UpdatedCount
	if count == 0 {
		count = len(ids)
	}
	c.refetchAfterWrite(ctx)
	c.notifier.Notify(notify.Success, fmt.Sprintf("%d %s updated successfully!", count, plural(count, "task")))
	return count, nil
}

func plural(n int, noun string) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}

func (c *Coordinator) Create(ctx context.Context, w TaskWrite) (*Task, error) {
	t, err := c.service.Create(ctx, w)
	if err != nil {
		c.notifier.Notify(notify.Error, apierr.Message(err, "Failed to create task"))
		return nil, err
	}
	c.cache.Put(*t)
	c.refetchAfterWrite(ctx)
	c.notifier.Notify(notify.Success, "Task created successfully!")
	return t, nil
}

// Update writes a full record without touching the cache first.
func (c *Coordinator) Update(ctx context.Context, id int64, w TaskWrite) (*Task, error) {
	t, err := c.service.Update(ctx, id, w)
	if err != nil {
		c.notifier.Notify(notify.Error, apierr.Message(err, "Failed to update task"))
		return nil, err
	}
	c.cache.Put(*t)
	c.refetchAfterWrite(ctx)
	c.notifier.Notify(notify.Success, "Task updated successfully!")
	return t, nil
}

func (c *Coordinator) Delete(ctx context.Context, id int64) error {
	if err := c.service.Delete(ctx, id); err != nil {
		c.notifier.Notify(notify.Error, apierr.Message(err, "Failed to delete task"))
		return err
	}
	c.cache.Remove(id)
	c.refetchAfterWrite(ctx)
	c.notifier.Notify(notify.Success, "Task deleted successfully!")
	return nil
}
