package pipeline

import (
	"encoding/json"

	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/logging"
)

// Admitted reports whether a candidate of type t made it into the decision.
func (d Decision) Admitted(t adaptation.Type) bool {
	for _, c := range d.Candidates {
		if c.Type == t {
			return true
		}
	}
	return false
}

// LogEntry converts the decision into a decision_log row.
func (d Decision) LogEntry() logging.DecisionEntry {
	cands, _ := json.Marshal(d.Candidates)
	tiers, _ := json.Marshal(d.Tiers)
	return logging.DecisionEntry{
		DecisionID:     d.ID,
		SessionID:      d.SessionID,
		FormID:         d.FormID,
		UserClass:      string(d.UserClass),
		FallbackUsed:   d.FallbackUsed,
		Admitted:       len(d.Candidates),
		CandidatesJSON: string(cands),
		TiersJSON:      string(tiers),
		Reason:         d.AdmissionReason,
		TotalMs:        d.Timings.TotalMs,
		CreatedAt:      d.DecidedAt,
	}
}
