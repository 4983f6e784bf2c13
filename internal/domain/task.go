package domain

import "time"

// Task es una tarea perteneciente a una cuenta, identificada por username.
type Task struct {
	ID             int64      `json:"taskid"`
	Username       string     `json:"username"`
	Name           string     `json:"name"`
	EstimatedTime  int        `json:"estimated_time"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
	Completed      bool       `json:"completed"`
	FrontendID     *int64     `json:"taskidbyfrontend,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SavedTask es una plantilla de tarea reutilizable.
type SavedTask struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	Name          string `json:"name"`
	EstimatedTime int    `json:"estimated_time"`
}

// TaskPatch lista los campos mutables de una tarea.
type TaskPatch struct {
	Name           *string    `json:"name"`
	EstimatedTime  *int       `json:"estimated_time"`
	CompletionTime *time.Time `json:"completion_time"`
	Completed      *bool      `json:"completed"`
	FrontendID     *int64     `json:"taskidbyfrontend"`
}

// Apply mezcla los campos presentes del patch sobre la tarea.
func (p TaskPatch) Apply(t *Task) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.EstimatedTime != nil {
		t.EstimatedTime = *p.EstimatedTime
	}
	if p.CompletionTime != nil {
		t.CompletionTime = p.CompletionTime
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.FrontendID != nil {
		t.FrontendID = p.FrontendID
	}
}

// SavedTaskPatch lista los campos mutables de una plantilla.
type SavedTaskPatch struct {
	Name          *string `json:"name"`
	EstimatedTime *int    `json:"estimated_time"`
}

func (p SavedTaskPatch) Apply(t *SavedTask) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.EstimatedTime != nil {
		t.EstimatedTime = *p.EstimatedTime
	}
}
