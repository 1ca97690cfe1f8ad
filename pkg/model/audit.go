package model

import "time"

const (
	AuditAssignResource   = "ASSIGN_RESOURCE"
	AuditReleaseResource  = "RELEASE_RESOURCE"
	AuditCommitResource   = "COMMIT_RESOURCE"
	AuditPaymentCompleted = "PAYMENT_COMPLETED"
	AuditPastDueBypass    = "PAST_DUE_BYPASS"
	AuditPastDueSettled   = "PAST_DUE_SETTLED"
	AuditManualOverride   = "MANUAL_SIGNATURE_OVERRIDE"
	AuditSessionReset     = "SESSION_RESET"
	AuditProfileUpdated   = "PROFILE_UPDATED"
)

// AuditEntry records who did what, with before/after snapshots where a
// document was mutated. Entries are append-only.
type AuditEntry struct {
	ID            string         `json:"id,omitempty" bson:"_id,omitempty"`
	Actor         string         `json:"actor" bson:"actor"`
	ActorRole     string         `json:"actor_role" bson:"actor_role"`
	Action        string         `json:"action" bson:"action"`
	LaneID        string         `json:"lane_id,omitempty" bson:"lane_id,omitempty"`
	LaneSessionID string         `json:"lane_session_id,omitempty" bson:"lane_session_id,omitempty"`
	Before        map[string]any `json:"before,omitempty" bson:"before,omitempty"`
	After         map[string]any `json:"after,omitempty" bson:"after,omitempty"`
	CreatedAt     time.Time      `json:"created_at" bson:"created_at"`
}
