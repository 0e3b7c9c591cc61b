package simulation

import "github.com/mirandaurban/retoTC2008B/internal/service"

// InitRequest is the body of POST /init.
type InitRequest struct {
	NAgents *int   `json:"NAgents" binding:"required,min=0"`
	Width   int    `json:"width" binding:"min=0"`
	Height  int    `json:"height" binding:"min=0"`
	Seed    *int64 `json:"seed"`
}

// InitResponse acknowledges a new run.
type InitResponse struct {
	Message string `json:"message"`
	RunID   string `json:"runId"`
	Seed    int64  `json:"seed"`
}

// PositionsResponse wraps entity positions.
type PositionsResponse struct {
	Positions []service.Position `json:"positions"`
}

// UpdateResponse reports the tick reached.
type UpdateResponse struct {
	Message     string `json:"message"`
	CurrentStep int    `json:"currentStep"`
}
