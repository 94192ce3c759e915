package models

import "time"

// Trace event types appended to the event log.
const (
	EventUserMessageReceived   = "user_message.received"
	EventPlanPersisted         = "plan.persisted"
	EventStepStarted           = "step.started"
	EventStepComplete          = "step.complete"
	EventStepFailed            = "step.failed"
	EventStepInsufficient      = "step.insufficient"
	EventStepContractViolation = "step.contract_violation"
	EventReplanTriggered       = "replan.triggered"
	EventPrompt                = "adk.prompt"
	EventLLMResponse           = "adk.llm_response"
	EventAgentEvent            = "adk.event"
	EventLargeResponseExec     = "large_response.exec_python"
)

// EventRecord is one durable trace event, stamped with tenant/session/plan/task
// lineage. PlanID and TaskID are empty when the event is not plan- or
// task-scoped.
type EventRecord struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	TenantID  string         `json:"tenant_id"`
	SessionID string         `json:"session_id"`
	PlanID    string         `json:"plan_id,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	Payload   map[string]any `json:"payload"`
	TS        time.Time      `json:"ts"`
}
