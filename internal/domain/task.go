package domain

import (
	"fmt"
	"math/rand/v2"
	"time"
)

type Task struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	CreatedBy string `json:"createdBy"`
	CreatedAt string `json:"createdAt"`
}

func NewTask(text, createdBy string) *Task {
	return &Task{
		ID:        newTaskID(),
		Text:      text,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// newTaskID builds ids unique for a room's lifetime, not
// cryptographically unique.
func newTaskID() string {
	return fmt.Sprintf("task_%d_%08x", time.Now().UnixMilli(), rand.Uint32())
}
