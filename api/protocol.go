package api

import (
	"time"

	"teamhub-api/domain"
)

const mutationMaxSize = 64 * 1024 // 64 KiB

const idempotencyHeader = "Idempotency-Key"

type orderRequest struct {
	OrderedIDs []string `json:"orderedIds"`
}

type moveItemRequest struct {
	ToLaneID   string   `json:"toLaneId"`
	OrderedIDs []string `json:"orderedIds"`
}

type laneRequest struct {
	Name string `json:"name"`
}

type itemCreateRequest struct {
	Title    string `json:"title"`
	Position int    `json:"position"`
}

type itemPatchRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
	Priority    *string    `json:"priority"`
	Tags        *[]string  `json:"tags"`
	Assignees   *[]string  `json:"assignees"`
}

type commentRequest struct {
	Body string `json:"body"`
}

type activityResponse struct {
	Records []domain.ActivityRecord `json:"records"`
}

type errorResponse struct {
	Error string `json:"error"`
}
