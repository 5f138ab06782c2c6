package queue

const (
	TypeKnowledgeBackfill = "knowledge:backfill"
)

// BackfillPayload identifies a backfill request. Reason is informational,
// recorded in worker logs.
type BackfillPayload struct {
	Reason string `json:"reason"`
}
