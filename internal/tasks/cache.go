package tasks

import (
	"context"
	"sort"
	"sync"
)

// Snapshot is a detached copy of the cache contents ordered by task id.
type Snapshot []Task

// Cache is the shared id to task map readers render from. Writers are not
// serialized against each other: the last write wins.
type Cache struct {
	mu     sync.RWMutex
	tasks  map[int64]Task
	loaded bool
}

func NewCache() *Cache {
	return &Cache{tasks: make(map[int64]Task)}
}

// Loaded reports whether the cache has ever been filled from the server.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func (c *Cache) Get(id int64) (Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.Clone(), true
}

// All returns the cached tasks ordered by id.
func (c *Cache) All() []Task {
	return []Task(c.Snapshot())
}

func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(Snapshot, 0, len(c.tasks))
	for _, t := range c.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore makes the cache equal to s, dropping anything written since.
func (c *Cache) Restore(s Snapshot) {
	next := make(map[int64]Task, len(s))
	for _, t := range s {
		next[t.ID] = t.Clone()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = next
}

func (c *Cache) Put(t Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks[t.ID] = t.Clone()
}

func (c *Cache) Remove(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tasks, id)
}

// Replace swaps the whole contents for tasks.
func (c *Cache) Replace(tasks []Task) {
	c.Restore(tasks)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = true
}

// Refresh reloads the cache with load. On error the cache is left unchanged.
func (c *Cache) Refresh(ctx context.Context, load func(context.Context) ([]Task, error)) error {
	tasks, err := load(ctx)
	if err != nil {
		return err
	}
	c.Replace(tasks)
	return nil
}
