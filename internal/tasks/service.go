package tasks

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/taskdeck/internal/gateway"
)

// Transport is the part of the request gateway the task client needs.
type Transport interface {
	Send(ctx context.Context, req *gateway.Request) (*gateway.Response, error)
}

// Filters narrows a task listing. Zero values are omitted.
type Filters struct {
	Status     Status
	Priority   Priority
	AssignedTo int64
	Tags       []string
	Overdue    *bool
	Search     string
	ParentTask int64
}

// Values encodes f as query parameters.
func (f Filters) Values() url.Values {
	v := url.Values{}
	if f.Status != "" {
		v.Set("status", string(f.Status))
	}
	if f.Priority != "" {
		v.Set("priority", string(f.Priority))
	}
	if f.AssignedTo != 0 {
		v.Set("assigned_to", strconv.FormatInt(f.AssignedTo, 10))
	}
	for _, tag := range f.Tags {
		v.Add("tags", tag)
	}
	if f.Overdue != nil {
		v.Set("overdue", strconv.FormatBool(*f.Overdue))
	}
	if f.Search != "" {
		v.Set("search", f.Search)
	}
	if f.ParentTask != 0 {
		v.Set("parent_task", strconv.FormatInt(f.ParentTask, 10))
	}
	return v
}

// Service is a thin client for the /tasks/ endpoints.
type Service struct {
	transport Transport
}

func NewService(t Transport) *Service {
	return &Service{transport: t}
}

func (s *Service) do(ctx context.Context, req *gateway.Request, out interface{}) error {
	resp, err := s.transport.Send(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func taskPath(id int64) string {
	return fmt.Sprintf("/tasks/%d/", id)
}

func (s *Service) List(ctx context.Context, f Filters) ([]Task, error) {
	req := gateway.NewRequest(http.MethodGet, "/tasks/", nil)
	req.Query = f.Values()
	var out []Task
	if err := s.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Task, error) {
	var t Task
	if err := s.do(ctx, gateway.NewRequest(http.MethodGet, taskPath(id), nil), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Service) Create(ctx context.Context, w TaskWrite) (*Task, error) {
	var t Task
	if err := s.do(ctx, gateway.NewRequest(http.MethodPost, "/tasks/", w), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Update replaces the task with the full record w.
func (s *Service) Update(ctx context.Context, id int64, w TaskWrite) (*Task, error) {
	var t Task
	if err := s.do(ctx, gateway.NewRequest(http.MethodPut, taskPath(id), w), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.do(ctx, gateway.NewRequest(http.MethodDelete, taskPath(id), nil), nil)
}

func (s *Service) BulkUpdate(ctx context.Context, b BulkUpdate) (*BulkResult, error) {
	var r BulkResult
	if err := s.do(ctx, gateway.NewRequest(http.MethodPut, "/tasks/bulk-update/", b), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// History lists status transitions, for one task when taskID is non-zero.
func (s *Service) History(ctx context.Context, taskID int64) ([]HistoryEntry, error) {
	req := gateway.NewRequest(http.MethodGet, "/tasks/history/", nil)
	if taskID != 0 {
		req.Query = url.Values{"task": {strconv.FormatInt(taskID, 10)}}
	}
	var out []HistoryEntry
	if err := s.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Subtasks(ctx context.Context, parentID int64) ([]Task, error) {
	return s.List(ctx, Filters{ParentTask: parentID})
}

func (s *Service) Analytics(ctx context.Context) (*Analytics, error) {
	var a Analytics
	if err := s.do(ctx, gateway.NewRequest(http.MethodGet, "/tasks/analytics/", nil), &a); err != nil {
		return nil, err
	}
	return &a, nil
}
