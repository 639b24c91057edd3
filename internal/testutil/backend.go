package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// User is the service's view of an account.
type User struct {
	ID              int64  `json:"id"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Role            string `json:"role"`
	Timezone        string `json:"timezone,omitempty"`
	IsEmailVerified bool   `json:"is_email_verified"`

	password string
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Task is the read shape served by the fake service.
type Task struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	AssignedTo     string     `json:"assigned_to"`
	CreatedBy      string     `json:"created_by"`
	ParentTask     *int64     `json:"parent_task"`
	EstimatedHours *string    `json:"estimated_hours"`
	ActualHours    *string    `json:"actual_hours"`
	Deadline       *time.Time `json:"deadline"`
	Tags           []Tag      `json:"tags"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type taskWrite struct {
	Title          *string    `json:"title"`
	Description    string     `json:"description"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	AssignedTo     *int64     `json:"assigned_to"`
	ParentTask     *int64     `json:"parent_task"`
	EstimatedHours *string    `json:"estimated_hours"`
	ActualHours    *string    `json:"actual_hours"`
	Deadline       *time.Time `json:"deadline"`
	Tags           []string   `json:"tags"`
}

type historyEntry struct {
	ID             int64     `json:"id"`
	Task           int64     `json:"task"`
	TaskTitle      string    `json:"task_title"`
	ChangedBy      *int64    `json:"changed_by"`
	ChangedByName  string    `json:"changed_by_name"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Timestamp      time.Time `json:"timestamp"`
	Notes          *string   `json:"notes"`
}

// Fault is a canned response served once instead of the real handler.
type Fault struct {
	Status int
	Header map[string]string
	Body   string
	// Stall holds the request open until the client goes away.
	Stall bool
}

// Recorded is a request observed by the fake service.
type Recorded struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// Backend is an in-memory task service speaking the real REST contract under
// the /api prefix.
type Backend struct {
	Server *httptest.Server

	// AccessTTL is the lifetime of issued access tokens.
	AccessTTL time.Duration

	mu          sync.Mutex
	users       map[string]*User
	access      map[string]int64
	refresh     map[string]int64
	revoked     []string
	tasks       map[int64]*Task
	tags        map[string]int64
	history     []historyEntry
	verifyCodes map[string]string
	faults      map[string][]Fault
	requests    []Recorded
	refreshFail bool
	rotateNext  bool
	captchaQ    string
	captchaA    string
	nextUserID  int64
	nextTaskID  int64
	nextTagID   int64
	nextHistID  int64
}

// NewBackend starts a fake service that is shut down with the test.
func NewBackend(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		AccessTTL:   5 * time.Minute,
		users:       make(map[string]*User),
		access:      make(map[string]int64),
		refresh:     make(map[string]int64),
		tasks:       make(map[int64]*Task),
		tags:        make(map[string]int64),
		verifyCodes: make(map[string]string),
		faults:      make(map[string][]Fault),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Pre(b.recordAndInject)

	api := e.Group("/api")
	api.POST("/auth/login/", b.handleLogin)
	api.POST("/auth/register/", b.handleRegister)
	api.GET("/auth/verify-email/:code/", b.handleVerifyEmail)
	api.POST("/auth/refresh/", b.handleRefresh)
	api.POST("/auth/logout/", b.handleLogout, b.requireAuth)
	api.GET("/auth/me/", b.handleMe, b.requireAuth)
	api.GET("/auth/staff/", b.handleStaff, b.requireAuth)

	api.GET("/tasks/", b.handleListTasks, b.requireAuth)
	api.POST("/tasks/", b.handleCreateTask, b.requireAuth)
	api.PUT("/tasks/bulk-update/", b.handleBulkUpdate, b.requireAuth)
	api.GET("/tasks/history/", b.handleHistory, b.requireAuth)
	api.GET("/tasks/analytics/", b.handleAnalytics, b.requireAuth)
	api.GET("/tasks/:id/", b.handleGetTask, b.requireAuth)
	api.PUT("/tasks/:id/", b.handleUpdateTask, b.requireAuth)
	api.DELETE("/tasks/:id/", b.handleDeleteTask, b.requireAuth)

	b.Server = httptest.NewServer(e)
	t.Cleanup(b.Server.Close)
	return b
}

// URL is the API base URL clients should be configured with.
func (b *Backend) URL() string { return b.Server.URL + "/api" }

// AddUser creates an account.
func (b *Backend) AddUser(username, password, role string, verified bool) User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.addUserLocked(username, username+"@example.com", password, role, verified)
}

func (b *Backend) addUserLocked(username, email, password, role string, verified bool) *User {
	b.nextUserID++
	u := &User{
		ID:              b.nextUserID,
		Username:        username,
		Email:           email,
		Role:            role,
		Timezone:        "UTC",
		IsEmailVerified: verified,
		password:        password,
	}
	b.users[username] = u
	b.verifyCodes["code-"+username] = username
	return u
}

// AddTask stores t, assigning it an id, and returns the stored copy.
func (b *Backend) AddTask(t Task) Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextTaskID++
	t.ID = b.nextTaskID
	now := time.Now().UTC().Truncate(time.Second)
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Tags == nil {
		t.Tags = []Tag{}
	}
	stored := t
	b.tasks[t.ID] = &stored
	return stored
}

// Task returns the stored task with the given id.
func (b *Backend) Task(id int64) (Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// SetTaskStatus changes a task behind the client's back.
func (b *Backend) SetTaskStatus(id int64, status string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.tasks[id]; ok {
		t.Status = status
		t.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	}
}

// Issue logs username in without going through the login endpoint.
func (b *Backend) Issue(t testing.TB, username string) (access, refresh string) {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[username]
	if !ok {
		t.Fatalf("unknown user %q", username)
	}
	access, refresh, err := b.issueLocked(u.ID)
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}
	return access, refresh
}

func (b *Backend) issueLocked(userID int64) (string, string, error) {
	access, err := IssueAccess(userID, time.Now().Add(b.AccessTTL))
	if err != nil {
		return "", "", err
	}
	refresh := uuid.NewString()
	b.access[access] = userID
	b.refresh[refresh] = userID
	return access, refresh, nil
}

// ExpireAccessTokens invalidates every issued access token.
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.access = make(map[string]int64)
}

// FailRefresh makes the refresh endpoint reject every renewal.
func (b *Backend) FailRefresh(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshFail = fail
}

// RotateOnNextCall makes the next authenticated success carry a fresh pair in
// the X-New-Token and X-New-Refresh-Token headers.
func (b *Backend) RotateOnNextCall() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rotateNext = true
}

// RequireCaptcha blocks logins until the answer is supplied.
func (b *Backend) RequireCaptcha(question, answer string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.captchaQ, b.captchaA = question, answer
}

// Fail queues a one-shot canned response for method and path (path relative
// to /api, e.g. "/tasks/1/").
func (b *Backend) Fail(method, path string, f Fault) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := method + " " + path
	b.faults[key] = append(b.faults[key], f)
}

// Requests returns every request seen so far.
func (b *Backend) Requests() []Recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Recorded(nil), b.requests...)
}

// RequestsTo returns the requests seen for method and path.
func (b *Backend) RequestsTo(method, path string) []Recorded {
	var out []Recorded
	for _, r := range b.Requests() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Revoked lists renewal tokens passed to the logout endpoint.
func (b *Backend) Revoked() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.revoked...)
}

func (b *Backend) recordAndInject(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		body, _ := io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(body))
		path := strings.TrimPrefix(req.URL.Path, "/api")

		b.mu.Lock()
		b.requests = append(b.requests, Recorded{
			Method: req.Method,
			Path:   path,
			Query:  req.URL.RawQuery,
			Header: req.Header.Clone(),
			Body:   body,
		})
		key := req.Method + " " + path
		var fault *Fault
		if queue := b.faults[key]; len(queue) > 0 {
			fault = &queue[0]
			b.faults[key] = queue[1:]
		}
		b.mu.Unlock()

		if fault != nil && fault.Stall {
			<-req.Context().Done()
			return req.Context().Err()
		}
		if fault != nil {
			for k, v := range fault.Header {
				c.Response().Header().Set(k, v)
			}
			body := fault.Body
			if body == "" {
				body = "{}"
			}
			return c.Blob(fault.Status, echo.MIMEApplicationJSON, []byte(body))
		}
		return next(c)
	}
}

func (b *Backend) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")

		b.mu.Lock()
		userID, ok := b.access[token]
		var user *User
		for _, u := range b.users {
			if u.ID == userID {
				user = u
			}
		}
		rotate := ok && b.rotateNext
		var access, refresh string
		if rotate {
			b.rotateNext = false
			var err error
			if access, refresh, err = b.issueLocked(userID); err != nil {
				b.mu.Unlock()
				return err
			}
		}
		b.mu.Unlock()

		if header == "" || !ok || user == nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
			})
		}
		if rotate {
			c.Response().Header().Set("X-New-Token", access)
			c.Response().Header().Set("X-New-Refresh-Token", refresh)
		}
		c.Set("user", *user)
		return next(c)
	}
}

func currentUser(c echo.Context) User {
	return c.Get("user").(User)
}

func (b *Backend) handleLogin(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "Invalid request body"})
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.captchaQ != "" {
		if c.Request().Header.Get("X-Captcha-Answer") != b.captchaA {
			c.Response().Header().Set("X-Captcha-Question", b.captchaQ)
			return c.JSON(http.StatusForbidden, map[string]string{
				"detail":           "IP blocked",
				"captcha_question": b.captchaQ,
			})
		}
		b.captchaQ, b.captchaA = "", ""
	}

	u, ok := b.users[req.Username]
	if !ok || u.password != req.Password {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"detail": "No active account found with the given credentials",
		})
	}
	access, refresh, err := b.issueLocked(u.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"access": access, "refresh": refresh})
}

func (b *Backend) handleRegister(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "Invalid request body"})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.users[req.Username]; exists {
		return c.JSON(http.StatusBadRequest, map[string][]string{
			"username": {"A user with that username already exists."},
		})
	}
	u := b.addUserLocked(req.Username, req.Email, req.Password, req.Role, false)
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"username": u.Username,
		"email":    u.Email,
		"role":     u.Role,
	})
}

func (b *Backend) handleVerifyEmail(c echo.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	username, ok := b.verifyCodes[c.Param("code")]
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid or expired token"})
	}
	b.users[username].IsEmailVerified = true
	return c.JSON(http.StatusOK, map[string]string{"message": "Email verified successfully"})
}

func (b *Backend) handleRefresh(c echo.Context) error {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "Invalid request body"})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	userID, ok := b.refresh[req.Refresh]
	if b.refreshFail || !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
	}
	delete(b.refresh, req.Refresh)
	access, refresh, err := b.issueLocked(userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"access": access, "refresh": refresh})
}

func (b *Backend) handleLogout(c echo.Context) error {
	var req struct {
		Refresh string `json:"refresh"`
	}
	_ = json.NewDecoder(c.Request().Body).Decode(&req)

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.refresh, req.Refresh)
	b.revoked = append(b.revoked, req.Refresh)
	return c.JSON(http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (b *Backend) handleMe(c echo.Context) error {
	u := currentUser(c)
	b.mu.Lock()
	defer b.mu.Unlock()
	return c.JSON(http.StatusOK, b.users[u.Username])
}

func (b *Backend) handleStaff(c echo.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	staff := make([]User, 0, len(b.users))
	for _, u := range b.users {
		if u.Role == "manager" || u.Role == "developer" {
			staff = append(staff, *u)
		}
	}
	sort.Slice(staff, func(i, j int) bool { return staff[i].ID < staff[j].ID })
	return c.JSON(http.StatusOK, staff)
}

func (b *Backend) handleListTasks(c echo.Context) error {
	q := c.QueryParams()

	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		if s := q.Get("status"); s != "" && t.Status != s {
			continue
		}
		if p := q.Get("priority"); p != "" && t.Priority != p {
			continue
		}
		if a := q.Get("assigned_to"); a != "" {
			id, _ := strconv.ParseInt(a, 10, 64)
			if u := b.userByIDLocked(id); u == nil || u.Username != t.AssignedTo {
				continue
			}
		}
		if p := q.Get("parent_task"); p != "" {
			id, _ := strconv.ParseInt(p, 10, 64)
			if t.ParentTask == nil || *t.ParentTask != id {
				continue
			}
		}
		if s := q.Get("search"); s != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(s)) {
			continue
		}
		if q.Get("overdue") == "true" && (t.Deadline == nil || !t.Deadline.Before(time.Now()) || t.Status == "completed") {
			continue
		}
		if tags := q["tags"]; len(tags) > 0 && !hasAnyTag(t.Tags, tags) {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return c.JSON(http.StatusOK, out)
}

func hasAnyTag(tags []Tag, names []string) bool {
	for _, t := range tags {
		for _, n := range names {
			if t.Name == n {
				return true
			}
		}
	}
	return false
}

func (b *Backend) userByIDLocked(id int64) *User {
	for _, u := range b.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (b *Backend) taskParam(c echo.Context) (*Task, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return nil, c.JSON(http.StatusNotFound, map[string]string{"detail": "Not found."})
	}
	t, ok := b.tasks[id]
	if !ok {
		return nil, c.JSON(http.StatusNotFound, map[string]string{"detail": "Not found."})
	}
	return t, nil
}

func (b *Backend) handleGetTask(c echo.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.taskParam(c)
	if t == nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

// decodeWrite validates a full-record write payload.
func (b *Backend) decodeWrite(c echo.Context) (*taskWrite, *User, map[string][]string) {
	var w taskWrite
	if err := json.NewDecoder(c.Request().Body).Decode(&w); err != nil {
		return nil, nil, map[string][]string{"non_field_errors": {fmt.Sprintf("Invalid payload: %v", err)}}
	}
	fields := make(map[string][]string)
	if w.Title == nil || *w.Title == "" {
		fields["title"] = []string{"This field is required."}
	}
	var assignee *User
	if w.AssignedTo == nil {
		fields["assigned_to"] = []string{"This field is required."}
	} else if assignee = b.userByIDLocked(*w.AssignedTo); assignee == nil {
		fields["assigned_to"] = []string{fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", *w.AssignedTo)}
	}
	if w.Status != "" && !validStatus(w.Status) {
		fields["status"] = []string{fmt.Sprintf("\"%s\" is not a valid choice.", w.Status)}
	}
	if len(fields) > 0 {
		return nil, nil, fields
	}
	return &w, assignee, nil
}

func validStatus(s string) bool {
	switch s {
	case "pending", "in_progress", "blocked", "completed":
		return true
	}
	return false
}

func (b *Backend) tagsLocked(names []string) []Tag {
	tags := make([]Tag, 0, len(names))
	for _, n := range names {
		id, ok := b.tags[n]
		if !ok {
			b.nextTagID++
			id = b.nextTagID
			b.tags[n] = id
		}
		tags = append(tags, Tag{ID: id, Name: n})
	}
	return tags
}

func (b *Backend) handleCreateTask(c echo.Context) error {
	me := currentUser(c)
	b.mu.Lock()
	defer b.mu.Unlock()

	w, assignee, fields := b.decodeWrite(c)
	if fields != nil {
		return c.JSON(http.StatusBadRequest, fields)
	}
	b.nextTaskID++
	now := time.Now().UTC().Truncate(time.Second)
	t := &Task{ID: b.nextTaskID, CreatedBy: me.Username, CreatedAt: now}
	b.applyWriteLocked(t, w, assignee, now)
	b.tasks[t.ID] = t
	return c.JSON(http.StatusCreated, t)
}

func (b *Backend) applyWriteLocked(t *Task, w *taskWrite, assignee *User, now time.Time) {
	t.Title = *w.Title
	t.Description = w.Description
	t.Status = w.Status
	if t.Status == "" {
		t.Status = "pending"
	}
	t.Priority = w.Priority
	if t.Priority == "" {
		t.Priority = "medium"
	}
	t.AssignedTo = assignee.Username
	t.ParentTask = w.ParentTask
	t.EstimatedHours = w.EstimatedHours
	t.ActualHours = w.ActualHours
	t.Deadline = w.Deadline
	t.Tags = b.tagsLocked(w.Tags)
	t.UpdatedAt = now
}

func (b *Backend) recordStatusLocked(t *Task, previous string, by User, now time.Time) {
	if previous == t.Status {
		return
	}
	b.nextHistID++
	id := by.ID
	b.history = append(b.history, historyEntry{
		ID:             b.nextHistID,
		Task:           t.ID,
		TaskTitle:      t.Title,
		ChangedBy:      &id,
		ChangedByName:  by.Username,
		PreviousStatus: previous,
		NewStatus:      t.Status,
		Timestamp:      now,
	})
}

func (b *Backend) handleUpdateTask(c echo.Context) error {
	me := currentUser(c)
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.taskParam(c)
	if t == nil {
		return err
	}
	w, assignee, fields := b.decodeWrite(c)
	if fields != nil {
		return c.JSON(http.StatusBadRequest, fields)
	}
	now := time.Now().UTC().Truncate(time.Second)
	previous := t.Status
	b.applyWriteLocked(t, w, assignee, now)
	b.recordStatusLocked(t, previous, me, now)
	return c.JSON(http.StatusOK, t)
}

func (b *Backend) handleDeleteTask(c echo.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.taskParam(c)
	if t == nil {
		return err
	}
	delete(b.tasks, t.ID)
	return c.NoContent(http.StatusNoContent)
}

func (b *Backend) handleBulkUpdate(c echo.Context) error {
	me := currentUser(c)
	var req struct {
		TaskIDs []int64 `json:"task_ids"`
		Status  string  `json:"status"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil || !validStatus(req.Status) {
		return c.JSON(http.StatusBadRequest, map[string][]string{"status": {"A valid status is required."}})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now().UTC().Truncate(time.Second)
	updated := 0
	for _, id := range req.TaskIDs {
		t, ok := b.tasks[id]
		if !ok {
			continue
		}
		previous := t.Status
		t.Status = req.Status
		t.UpdatedAt = now
		b.recordStatusLocked(t, previous, me, now)
		updated++
	}
	return c.JSON(http.StatusOK, map[string]int{"updated_count": updated})
}

func (b *Backend) handleHistory(c echo.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]historyEntry, 0, len(b.history))
	filter := c.QueryParam("task")
	for _, h := range b.history {
		if filter != "" && strconv.FormatInt(h.Task, 10) != filter {
			continue
		}
		out = append(out, h)
	}
	return c.JSON(http.StatusOK, out)
}

func (b *Backend) handleAnalytics(c echo.Context) error {
	me := currentUser(c)
	b.mu.Lock()
	defer b.mu.Unlock()

	mine := map[string]int{}
	priorities := map[string]int{}
	total, overdue := 0, 0
	blocked := []map[string]interface{}{}
	for _, t := range b.tasks {
		priorities[t.Priority]++
		if t.Status == "blocked" {
			blocked = append(blocked, map[string]interface{}{"id": t.ID, "title": t.Title})
		}
		if t.AssignedTo != me.Username {
			continue
		}
		total++
		mine[t.Status]++
		if t.Deadline != nil && t.Deadline.Before(time.Now()) && t.Status != "completed" {
			overdue++
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"my_tasks": map[string]interface{}{
			"total":               total,
			"by_status":           mine,
			"overdue_count":       overdue,
			"avg_completion_time": "0:00:00",
		},
		"team_tasks": map[string]interface{}{
			"total":                           len(b.tasks),
			"blocked_tasks_needing_attention": blocked,
			"priority_distribution":           priorities,
		},
		"efficiency_score": 0,
	})
}
