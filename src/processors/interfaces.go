package processors

import (
	"github.com/username/sharepool/src/models"
)

// RunResult is the complete output of one matching run: the realized
// disposals in processing order, the final pool, and the full audit trail.
type RunResult struct {
	Disposals  []models.RealizedDisposal `json:"disposals"`
	Pool       models.PoolStatus         `json:"pool"`
	AuditTrail []models.MatchRecord      `json:"audit_trail"`
}

// DisposalProcessor computes realized capital gains for a sequence of
// canonical events under Section 104 matching rules.
type DisposalProcessor interface {
	Process(records []models.EventRecord) (*RunResult, error)
}
