package scheduler

import (
	"encoding/json"

	"salesflow_backend/internal/deals/domain"

	"github.com/hibiken/asynq"
)

const TaskDealPersistRetry = "deals.persist.retry"

const TaskDealDeleteRetry = "deals.delete.retry"

// DealPersistPayload carries the full deal so the worker can upsert it
// without the API process.
type DealPersistPayload struct {
	Deal domain.Deal `json:"deal"`
}

type DealDeletePayload struct {
	DealID string `json:"dealId"`
}

func NewDealPersistTask(payload DealPersistPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDealPersistRetry, data), nil
}

func ParseDealPersistPayload(task *asynq.Task) (DealPersistPayload, error) {
	var payload DealPersistPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DealPersistPayload{}, err
	}
	return payload, nil
}

func NewDealDeleteTask(payload DealDeletePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDealDeleteRetry, data), nil
}

func ParseDealDeletePayload(task *asynq.Task) (DealDeletePayload, error) {
	var payload DealDeletePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DealDeletePayload{}, err
	}
	return payload, nil
}
