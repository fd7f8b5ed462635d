package stats

import (
	"encoding/json"
	"fmt"
	"time"
)

// todoItem is one entry of a TodoWrite input. BlockedBy/Blocks are
// free-form id references; no referential integrity is enforced.
type todoItem struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Status    string   `json:"status"`
	BlockedBy []string `json:"blockedBy"`
	Blocks    []string `json:"blocks"`
}

// handleTaskTool gives task-management tools their special treatment:
// TodoWrite upserts the task list, Task spawns a subagent task tied to the
// tool-use id.
func (e *Engine) handleTaskTool(callID, name string, input json.RawMessage, now time.Time) {
	switch name {
	case "TodoWrite":
		e.applyTodoWrite(callID, input, now)
	case "Task":
		e.spawnSubagentTask(callID, input, now)
	}
}

func (e *Engine) applyTodoWrite(callID string, input json.RawMessage, now time.Time) {
	var in struct {
		Todos []todoItem `json:"todos"`
	}
	if json.Unmarshal(input, &in) != nil || len(in.Todos) == 0 {
		return
	}

	for i, item := range in.Todos {
		id := item.ID
		if id == "" {
			id = fmt.Sprintf("todo-%d", i+1)
		}
		e.upsertTask(id, item, callID, now)
	}
}

func (e *Engine) upsertTask(id string, item todoItem, callID string, now time.Time) {
	task := e.tasks[id]
	if task == nil {
		subject := item.Content
		if subject == "" {
			// An update referencing an id we never saw creates a
			// placeholder rather than erroring.
			subject = "(unknown task)"
		}
		task = &TrackedTask{
			ID:        id,
			Subject:   subject,
			Status:    TaskPending,
			CreatedAt: now,
		}
		e.tasks[id] = task
		e.taskOrder = append(e.taskOrder, id)
	} else if item.Content != "" {
		task.Subject = item.Content
	}

	if status := normalizeTaskStatus(item.Status); status != "" {
		task.Status = status
	}
	if item.BlockedBy != nil {
		task.BlockedBy = append([]string(nil), item.BlockedBy...)
	}
	if item.Blocks != nil {
		task.Blocks = append([]string(nil), item.Blocks...)
	}
	task.UpdatedAt = now
	if callID != "" {
		task.ToolCallIDs = append(task.ToolCallIDs, callID)
	}

	// At most one active task: the most recent in_progress wins; if the
	// active task left in_progress, the slot frees up.
	if task.Status == TaskInProgress {
		e.activeTaskID = task.ID
	} else if e.activeTaskID == task.ID {
		e.activeTaskID = ""
	}
}

func (e *Engine) spawnSubagentTask(callID string, input json.RawMessage, now time.Time) {
	if callID == "" {
		return
	}
	var in struct {
		Description  string `json:"description"`
		Prompt       string `json:"prompt"`
		SubagentType string `json:"subagent_type"`
	}
	_ = json.Unmarshal(input, &in)

	subject := in.Description
	if subject == "" {
		subject = truncate(in.Prompt, 80)
	}
	if subject == "" {
		subject = "(subagent)"
	}

	if existing := e.tasks[callID]; existing != nil {
		existing.UpdatedAt = now
		return
	}
	e.tasks[callID] = &TrackedTask{
		ID:           callID,
		Subject:      subject,
		Status:       TaskInProgress,
		CreatedAt:    now,
		UpdatedAt:    now,
		IsSubagent:   true,
		SubagentType: in.SubagentType,
		ToolCallIDs:  []string{callID},
	}
	e.taskOrder = append(e.taskOrder, callID)
}

func normalizeTaskStatus(s string) string {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskDeleted:
		return s
	case "cancelled", "canceled", "removed":
		return TaskDeleted
	case "done":
		return TaskCompleted
	default:
		return ""
	}
}
