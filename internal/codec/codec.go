// Package codec converts between the in-memory entity graph and the
// persisted JSON document. It owns the format version stamp and the upgrade
// path from older layouts; the registry never sees a pre-migration document.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zjrosen/flowstate/internal/domain"
	"github.com/zjrosen/flowstate/internal/log"
)

// CurrentVersion is the on-disk format version written by Encode.
//
// Version history:
//
//	1: flows stored as a positionally-ordered JSON array
//	2: flows stored as a map keyed by flow ID
const CurrentVersion = 2

// Snapshot is the full decoded store: every entity, the selection marker and
// the revision counter. It is the unit the registry loads and persists.
type Snapshot struct {
	Revision    int64
	CurrentFlow *domain.FlowID
	Flows       map[domain.FlowID]*domain.Flow
	Plans       map[domain.PlanID]*domain.Plan
	Tasks       map[domain.TaskID]*domain.Task
}

// NewSnapshot returns an empty, valid snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Flows: make(map[domain.FlowID]*domain.Flow),
		Plans: make(map[domain.PlanID]*domain.Plan),
		Tasks: make(map[domain.TaskID]*domain.Task),
	}
}

// document is the persisted v2 layout.
type document struct {
	Version       int                           `json:"version"`
	Revision      int64                         `json:"revision"`
	CurrentFlowID *domain.FlowID                `json:"current_flow_id"`
	Flows         map[domain.FlowID]*flowRecord `json:"flows"`
}

type flowRecord struct {
	Name      string                        `json:"name"`
	CreatedAt time.Time                     `json:"created_at"`
	UpdatedAt time.Time                     `json:"updated_at"`
	PlanOrder []domain.PlanID               `json:"plan_order"`
	Plans     map[domain.PlanID]*planRecord `json:"plans"`
	Tasks     map[domain.TaskID]*taskRecord `json:"tasks"`
}

type planRecord struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Completed   bool            `json:"completed"`
	TaskOrder   []domain.TaskID `json:"task_order"`
}

type taskRecord struct {
	PlanID      domain.PlanID     `json:"plan_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Status      domain.Status     `json:"status"`
	DependsOn   []domain.TaskID   `json:"depends_on,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Encode serializes a snapshot as indented JSON so store files diff cleanly.
func Encode(s *Snapshot) ([]byte, error) {
	doc := document{
		Version:       CurrentVersion,
		Revision:      s.Revision,
		CurrentFlowID: s.CurrentFlow,
		Flows:         make(map[domain.FlowID]*flowRecord, len(s.Flows)),
	}

	for id, flow := range s.Flows {
		rec := &flowRecord{
			Name:      flow.Name,
			CreatedAt: flow.CreatedAt,
			UpdatedAt: flow.UpdatedAt,
			PlanOrder: flow.PlanOrder,
			Plans:     make(map[domain.PlanID]*planRecord),
			Tasks:     make(map[domain.TaskID]*taskRecord),
		}
		for _, planID := range flow.PlanOrder {
			plan, ok := s.Plans[planID]
			if !ok {
				return nil, fmt.Errorf("flow %s references missing plan %s", id, planID)
			}
			rec.Plans[planID] = &planRecord{
				Name:        plan.Name,
				Description: plan.Description,
				Completed:   plan.Completed,
				TaskOrder:   plan.TaskOrder,
			}
			for _, taskID := range plan.TaskOrder {
				task, ok := s.Tasks[taskID]
				if !ok {
					return nil, fmt.Errorf("plan %s references missing task %s", planID, taskID)
				}
				rec.Tasks[taskID] = &taskRecord{
					PlanID:      task.PlanID,
					Title:       task.Title,
					Description: task.Description,
					Status:      task.Status,
					DependsOn:   task.DependsOn,
					Metadata:    task.Metadata,
					CreatedAt:   task.CreatedAt,
					UpdatedAt:   task.UpdatedAt,
				}
			}
		}
		doc.Flows[id] = rec
	}

	return json.MarshalIndent(doc, "", "  ")
}

// Decode parses persisted bytes into a snapshot. If the stamped version is
// older than CurrentVersion the legacy layout is migrated first; migrated
// reports this so the caller can write the upgraded form back before the
// store is considered loaded.
func Decode(data []byte) (snap *Snapshot, migrated bool, err error) {
	var probe struct {
		Version int             `json:"version"`
		Flows   json.RawMessage `json:"flows"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, false, fmt.Errorf("parsing store document: %w", err)
	}

	if probe.Version < CurrentVersion {
		log.Info(log.CatCodec, "migrating legacy store", "from_version", probe.Version, "to_version", CurrentVersion)
		snap, err = migrateV1(data)
		if err != nil {
			return nil, false, err
		}
		return snap, true, nil
	}
	if probe.Version > CurrentVersion {
		return nil, false, fmt.Errorf("store version %d is newer than supported version %d", probe.Version, CurrentVersion)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, fmt.Errorf("parsing store document: %w", err)
	}

	snap, err = fromDocument(&doc)
	if err != nil {
		return nil, false, err
	}
	return snap, false, nil
}

// fromDocument rebuilds the entity graph and re-checks referential integrity
// so a hand-edited file cannot smuggle dangling identifiers into memory.
func fromDocument(doc *document) (*Snapshot, error) {
	snap := NewSnapshot()
	snap.Revision = doc.Revision
	snap.CurrentFlow = doc.CurrentFlowID

	for flowID, rec := range doc.Flows {
		flow := &domain.Flow{
			ID:        flowID,
			Name:      rec.Name,
			PlanOrder: rec.PlanOrder,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		}
		snap.Flows[flowID] = flow

		for _, planID := range rec.PlanOrder {
			prec, ok := rec.Plans[planID]
			if !ok {
				return nil, fmt.Errorf("flow %s: plan_order references missing plan %s", flowID, planID)
			}
			if _, taken := snap.Plans[planID]; taken {
				return nil, fmt.Errorf("plan %s claimed by more than one flow: %w", planID, domain.ErrDuplicateID)
			}
			snap.Plans[planID] = &domain.Plan{
				ID:          planID,
				FlowID:      flowID,
				Name:        prec.Name,
				Description: prec.Description,
				Completed:   prec.Completed,
				TaskOrder:   prec.TaskOrder,
			}
			for _, taskID := range prec.TaskOrder {
				trec, ok := rec.Tasks[taskID]
				if !ok {
					return nil, fmt.Errorf("plan %s: task_order references missing task %s", planID, taskID)
				}
				if _, err := domain.ParseStatus(string(trec.Status)); err != nil {
					return nil, fmt.Errorf("task %s: %w", taskID, err)
				}
				if _, taken := snap.Tasks[taskID]; taken {
					return nil, fmt.Errorf("task %s claimed by more than one plan: %w", taskID, domain.ErrDuplicateID)
				}
				snap.Tasks[taskID] = &domain.Task{
					ID:          taskID,
					PlanID:      planID,
					Title:       trec.Title,
					Description: trec.Description,
					Status:      trec.Status,
					DependsOn:   trec.DependsOn,
					Metadata:    trec.Metadata,
					CreatedAt:   trec.CreatedAt,
					UpdatedAt:   trec.UpdatedAt,
				}
			}
		}
	}

	if snap.CurrentFlow != nil {
		if _, ok := snap.Flows[*snap.CurrentFlow]; !ok {
			// A selection pointing at a deleted flow is not worth failing a
			// load over; clear it.
			log.Warn(log.CatCodec, "clearing dangling flow selection", "flow", *snap.CurrentFlow)
			snap.CurrentFlow = nil
		}
	}

	for id, task := range snap.Tasks {
		for _, dep := range task.DependsOn {
			if _, ok := snap.Tasks[dep]; !ok {
				return nil, fmt.Errorf("task %s: depends_on references missing task %s", id, dep)
			}
		}
	}

	return snap, nil
}
