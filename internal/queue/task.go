package queue

import (
	"fmt"
	"strconv"
	"time"

	"contactbook/internal/ids"
)

type TaskType string

const (
	TaskVerifyEmail    TaskType = "verify_email"
	TaskResetPassword  TaskType = "reset_password"
	TaskBirthdayDigest TaskType = "birthday_digest"
)

// Task is one outbox entry. It carries addressing data only; the worker issues
// any token it mails so none is stored in Redis.
type Task struct {
	ID         string
	Type       TaskType
	Email      string
	Username   string
	EnqueuedAt time.Time
}

func NewTask(taskType TaskType, email, username string) Task {
	return Task{
		ID:         ids.NewWithPrefix("task"),
		Type:       taskType,
		Email:      email,
		Username:   username,
		EnqueuedAt: time.Now().UTC(),
	}
}

func (t Task) Values() map[string]any {
	return map[string]any{
		"id":          t.ID,
		"type":        string(t.Type),
		"email":       t.Email,
		"username":    t.Username,
		"enqueued_at": strconv.FormatInt(t.EnqueuedAt.UnixMilli(), 10),
	}
}

// DecodeTask reads a task back from stream entry values.
func DecodeTask(values map[string]any) (Task, error) {
	str := func(key string) string {
		v, _ := values[key].(string)
		return v
	}

	t := Task{
		ID:       str("id"),
		Type:     TaskType(str("type")),
		Email:    str("email"),
		Username: str("username"),
	}
	if t.Type == "" {
		return Task{}, fmt.Errorf("task %q: missing type", t.ID)
	}
	if raw := str("enqueued_at"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Task{}, fmt.Errorf("task %q: enqueued_at: %w", t.ID, err)
		}
		t.EnqueuedAt = time.UnixMilli(ms).UTC()
	}
	return t, nil
}
