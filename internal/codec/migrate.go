package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zjrosen/flowstate/internal/domain"
	"github.com/zjrosen/flowstate/internal/log"
)

// Legacy v1 layout: flows were stored as a positionally-ordered array, with
// plans and tasks embedded as arrays inside their parents, and statuses were
// free-form strings.
type legacyDocument struct {
	Version       int            `json:"version"`
	Revision      int64          `json:"revision"`
	CurrentFlowID *domain.FlowID `json:"current_flow_id"`
	Flows         []legacyFlow   `json:"flows"`
}

type legacyFlow struct {
	ID        domain.FlowID `json:"id"`
	Name      string        `json:"name"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Plans     []legacyPlan  `json:"plans"`
}

type legacyPlan struct {
	ID          domain.PlanID `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Completed   bool          `json:"completed"`
	Tasks       []legacyTask  `json:"tasks"`
}

type legacyTask struct {
	ID          domain.TaskID     `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Status      string            `json:"status"`
	DependsOn   []domain.TaskID   `json:"depends_on"`
	Metadata    map[string]string `json:"metadata"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// statusAliases maps every status vocabulary observed in legacy stores onto
// the closed enum. Unknown strings fail migration; they are never accepted
// verbatim.
var statusAliases = map[string]domain.Status{
	"pending":     domain.StatusPending,
	"todo":        domain.StatusPending,
	"open":        domain.StatusPending,
	"new":         domain.StatusPending,
	"active":      domain.StatusActive,
	"in_progress": domain.StatusActive,
	"in-progress": domain.StatusActive,
	"wip":         domain.StatusActive,
	"started":     domain.StatusActive,
	"in_review":   domain.StatusInReview,
	"in-review":   domain.StatusInReview,
	"review":      domain.StatusInReview,
	"done":        domain.StatusDone,
	"complete":    domain.StatusDone,
	"completed":   domain.StatusDone,
	"closed":      domain.StatusDone,
	"blocked":     domain.StatusBlocked,
	"cancelled":   domain.StatusCancelled,
	"canceled":    domain.StatusCancelled,
}

// MigrateStatus resolves a legacy status string through the alias table.
// Exact enum values pass through unchanged.
func MigrateStatus(raw string) (domain.Status, error) {
	if status, err := domain.ParseStatus(raw); err == nil {
		return status, nil
	}
	if status, ok := statusAliases[normalize(raw)]; ok {
		return status, nil
	}
	return "", fmt.Errorf("%w: no alias for legacy status %q", domain.ErrInvalidStatus, raw)
}

func normalize(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c == ' ' {
			c = '_'
		}
		out = append(out, c)
	}
	return string(out)
}

// migrateV1 upgrades a v1 document to the current snapshot form: every flow
// is rekeyed by its identifier, identifier collisions are resolved by
// appending a numeric suffix in document order (so the result is
// deterministic and reproducible), and statuses pass through the alias
// table. Running it on the same bytes always yields the same snapshot.
func migrateV1(data []byte) (*Snapshot, error) {
	var doc legacyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing legacy store document: %w", err)
	}

	snap := NewSnapshot()
	snap.Revision = doc.Revision

	flowIDs := make(map[domain.FlowID]struct{}, len(doc.Flows))
	for i := range doc.Flows {
		lf := &doc.Flows[i]
		flowID := dedupeFlowID(lf.ID, flowIDs)
		if flowID != lf.ID {
			log.Warn(log.CatCodec, "duplicate flow identifier during migration",
				"original", lf.ID, "rekeyed", flowID)
		}
		flowIDs[flowID] = struct{}{}

		flow := &domain.Flow{
			ID:        flowID,
			Name:      lf.Name,
			CreatedAt: lf.CreatedAt,
			UpdatedAt: lf.UpdatedAt,
		}

		for j := range lf.Plans {
			lp := &lf.Plans[j]
			planID := domain.PlanID(dedupe(string(lp.ID), func(id string) bool {
				_, taken := snap.Plans[domain.PlanID(id)]
				return taken
			}))
			flow.PlanOrder = append(flow.PlanOrder, planID)

			plan := &domain.Plan{
				ID:          planID,
				FlowID:      flowID,
				Name:        lp.Name,
				Description: lp.Description,
				Completed:   lp.Completed,
			}

			for k := range lp.Tasks {
				lt := &lp.Tasks[k]
				status, err := MigrateStatus(lt.Status)
				if err != nil {
					return nil, fmt.Errorf("task %s: %w", lt.ID, err)
				}
				taskID := domain.TaskID(dedupe(string(lt.ID), func(id string) bool {
					_, taken := snap.Tasks[domain.TaskID(id)]
					return taken
				}))
				plan.TaskOrder = append(plan.TaskOrder, taskID)
				snap.Tasks[taskID] = &domain.Task{
					ID:          taskID,
					PlanID:      planID,
					Title:       lt.Title,
					Description: lt.Description,
					Status:      status,
					DependsOn:   lt.DependsOn,
					Metadata:    lt.Metadata,
					CreatedAt:   lt.CreatedAt,
					UpdatedAt:   lt.UpdatedAt,
				}
			}

			snap.Plans[planID] = plan
		}

		snap.Flows[flowID] = flow
	}

	// Dependencies may reference tasks that were rekeyed; a reference to an
	// identifier that no longer resolves is dropped rather than left dangling.
	for _, task := range snap.Tasks {
		kept := task.DependsOn[:0]
		for _, dep := range task.DependsOn {
			if _, ok := snap.Tasks[dep]; ok {
				kept = append(kept, dep)
			} else {
				log.Warn(log.CatCodec, "dropping unresolvable dependency during migration",
					"task", task.ID, "dependency", dep)
			}
		}
		task.DependsOn = kept
	}

	if doc.CurrentFlowID != nil {
		if _, ok := snap.Flows[*doc.CurrentFlowID]; ok {
			snap.CurrentFlow = doc.CurrentFlowID
		}
	}

	return snap, nil
}

func dedupeFlowID(id domain.FlowID, taken map[domain.FlowID]struct{}) domain.FlowID {
	return domain.FlowID(dedupe(string(id), func(candidate string) bool {
		_, ok := taken[domain.FlowID(candidate)]
		return ok
	}))
}

// dedupe returns id unchanged when free, otherwise id-2, id-3, ... for the
// first free suffix. Suffixes start at 2 so the second occurrence of "f" in
// document order becomes "f-2".
func dedupe(id string, isTaken func(string) bool) string {
	if !isTaken(id) {
		return id
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", id, n)
		if !isTaken(candidate) {
			return candidate
		}
	}
}
