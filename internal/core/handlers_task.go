package core

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/officeverse/office/internal/domain"
	"github.com/officeverse/office/internal/protocol"
)

// Tasks replicate as snapshot + notification: the full list is small
// and low-churn, positions go as deltas instead.

func (r *Room) handleAddTask(sid SessionID, data json.RawMessage) {
	var p protocol.AddTaskRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("bad task payload")
		return
	}
	if p.Text == "" {
		return
	}
	createdBy := p.CreatedBy
	if createdBy == "" {
		if player, ok := r.state.Player(sid); ok {
			createdBy = player.Name
		}
	}
	task := domain.NewTask(p.Text, createdBy)
	r.state.AddTask(task)

	r.broadcastAll(protocol.EvtTaskUpdate, r.state.TasksSnapshot())
	r.broadcastAll(protocol.EvtTaskNotification, protocol.TaskNotification{Task: *task, Action: protocol.ActionAdd})
}

func (r *Room) handleToggleTask(sid SessionID, data json.RawMessage) {
	var p protocol.TaskRef
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("bad task payload")
		return
	}
	task, ok := r.state.FindTask(p.TaskID)
	if !ok {
		return
	}
	task.Completed = !task.Completed
	if task.Completed {
		r.broadcastAll(protocol.EvtTaskNotification, protocol.TaskNotification{Task: *task, Action: protocol.ActionComplete})
	}
	r.broadcastAll(protocol.EvtTaskUpdate, r.state.TasksSnapshot())
}

func (r *Room) handleDeleteTask(sid SessionID, data json.RawMessage) {
	var p protocol.TaskRef
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("bad task payload")
		return
	}
	task, ok := r.state.DeleteTask(p.TaskID)
	if !ok {
		return
	}
	r.broadcastAll(protocol.EvtTaskNotification, protocol.TaskNotification{Task: *task, Action: protocol.ActionDelete})
	r.broadcastAll(protocol.EvtTaskUpdate, r.state.TasksSnapshot())
}

func (r *Room) handleGetTasks(sid SessionID, _ json.RawMessage) {
	r.unicast(sid, protocol.EvtTaskUpdate, r.state.TasksSnapshot())
}
