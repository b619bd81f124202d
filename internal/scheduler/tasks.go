// Package scheduler provides asynq-backed background tasks: the periodic
// maintenance recompute and lead stage refreshes scheduled off the hot path.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskRecompute = "tracking.recompute"

const TaskRefreshStage = "pipeline.refresh_stage"

type RecomputePayload struct {
	Days int `json:"days"`
}

type RefreshStagePayload struct {
	LeadID string `json:"leadId"`
}

func NewRecomputeTask(payload RecomputePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecompute, data), nil
}

func ParseRecomputePayload(task *asynq.Task) (RecomputePayload, error) {
	var payload RecomputePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RecomputePayload{}, err
	}
	return payload, nil
}

func NewRefreshStageTask(payload RefreshStagePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRefreshStage, data), nil
}

func ParseRefreshStagePayload(task *asynq.Task) (RefreshStagePayload, error) {
	var payload RefreshStagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RefreshStagePayload{}, err
	}
	return payload, nil
}
