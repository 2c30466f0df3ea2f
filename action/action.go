// Package action implements the transactional write side of the framework:
// named, attributed, auditable mutations, the structured change-set each one
// records, and the generic undo engine that replays a change-set backwards.
package action

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/syssam/vgraph"
	"github.com/syssam/vgraph/cypher"
	"github.com/syssam/vgraph/vnode"
)

var tracer = otel.Tracer("vgraph/action")

// Definition declares a named action type: its apply function runs inside a
// single write transaction and reports everything it touched.
type Definition struct {
	// Type is the unique action type name, e.g. "CreateMovie".
	Type string

	// Apply performs the mutation. Any error aborts the whole transaction
	// and surfaces unchanged; nothing is retried.
	Apply func(ctx context.Context, tx cypher.Querier, params map[string]any) (*ApplyResult, error)
}

// ApplyResult reports the effect of one apply invocation.
type ApplyResult struct {
	// ResultData is returned to the caller on commit.
	ResultData map[string]any

	// ModifiedIDs lists every node the action touched. Each live one is
	// schema-validated before commit; omitting a touched node fails the
	// store-side consistency check.
	ModifiedIDs []vnode.VNID

	// DeletedIDs lists nodes the action permanently deleted. Recorded on
	// the action record; such an action cannot be generically undone.
	DeletedIDs []vnode.VNID

	// Description is a human-readable summary of what happened.
	Description string
}

// Invocation names an action type to run, its parameters, and the acting
// identity (a user identifier or slug).
type Invocation struct {
	Type   string
	Params map[string]any
	UserID string
}

// Result is returned to the caller after a successful commit.
type Result struct {
	Data        map[string]any
	ActionID    vnode.VNID
	Description string
}

// State tracks an invocation through the engine.
type State int

// Engine states. Failed may be entered from any state.
const (
	Pending State = iota
	Applying
	Validating
	Committing
	Committed
	Failed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Applying:
		return "applying"
	case Validating:
		return "validating"
	case Committing:
		return "committing"
	case Committed:
		return "committed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// WriteRunner opens write transactions. *cypher.Driver satisfies it.
type WriteRunner interface {
	WriteTx(ctx context.Context, fn func(tx cypher.Querier) error) error
}

// Runner validates, applies, and commits actions, each as one atomic write
// transaction.
type Runner struct {
	registry *vnode.Registry
	driver   WriteRunner
	defs     map[string]Definition
	log      *zap.Logger
}

// NewRunner returns a runner over the given type registry and store.
func NewRunner(registry *vnode.Registry, driver WriteRunner, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		registry: registry,
		driver:   driver,
		defs:     make(map[string]Definition),
		log:      logger,
	}
}

// Register adds action definitions. Type names must be unique.
func (r *Runner) Register(defs ...Definition) error {
	for _, d := range defs {
		if d.Type == "" || d.Apply == nil {
			return fmt.Errorf("action: definition must have a type name and an apply function")
		}
		if _, ok := r.defs[d.Type]; ok {
			return fmt.Errorf("action: type %q is already registered", d.Type)
		}
		r.defs[d.Type] = d
	}
	return nil
}

// Run executes one invocation: apply, validate every touched node, and
// commit the action record, all in a single write transaction. Any failure
// aborts the transaction wholesale.
func (r *Runner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	def, ok := r.defs[inv.Type]
	if !ok {
		return nil, vgraph.NewNotFoundErrorWithKey("action definition", inv.Type)
	}
	return r.run(ctx, def, inv, "")
}

// run is Run plus the optional id of a prior action this invocation reverts.
func (r *Runner) run(ctx context.Context, def Definition, inv Invocation, reverts vnode.VNID) (*Result, error) {
	ctx, span := tracer.Start(ctx, "action.run")
	defer span.End()
	span.SetAttributes(attribute.String("vgraph.action", inv.Type))

	start := time.Now()
	state := Pending
	var result *Result
	err := r.driver.WriteTx(ctx, func(tx cypher.Querier) error {
		state = Applying
		applied, err := def.Apply(ctx, tx, inv.Params)
		if err != nil {
			return err
		}

		state = Validating
		if err := r.validate(ctx, tx, applied.ModifiedIDs); err != nil {
			return err
		}

		state = Committing
		actionID, err := r.commit(ctx, tx, inv, applied, reverts, time.Since(start))
		if err != nil {
			return err
		}

		state = Committed
		result = &Result{
			Data:        applied.ResultData,
			ActionID:    actionID,
			Description: applied.Description,
		}
		return nil
	})
	if err != nil {
		r.log.Warn("action failed",
			zap.String("type", inv.Type),
			zap.Stringer("state", state),
			zap.Error(err),
		)
		return nil, err
	}
	r.log.Info("action committed",
		zap.String("type", inv.Type),
		zap.String("id", result.ActionID),
		zap.Duration("took", time.Since(start)),
	)
	return result, nil
}

// validate loads every still-live modified node and checks it against its
// declared schema. Soft-deleted nodes are skipped but still counted as
// modified; permanently deleted ids simply no longer resolve.
func (r *Runner) validate(ctx context.Context, tx cypher.Querier, ids []vnode.VNID) error {
	if len(ids) == 0 {
		return nil
	}
	records, err := tx.Run(ctx,
		"MATCH (n) WHERE n.id IN $p1\nRETURN n.id AS id, labels(n) AS labels, properties(n) AS props",
		map[string]any{"p1": ids})
	if err != nil {
		return err
	}
	for _, rec := range records {
		node := vnode.RawNode{
			ID: rec["id"].(string),
		}
		if labels, ok := rec["labels"].([]any); ok {
			for _, l := range labels {
				node.Labels = append(node.Labels, l.(string))
			}
		}
		if props, ok := rec["props"].(map[string]any); ok {
			node.Props = props
		}
		if node.SoftDeleted() {
			continue
		}
		if err := r.registry.Validate(node); err != nil {
			return err
		}
	}
	return nil
}

// commit creates the action record, links it from the acting identity, links
// it to every still-resolvable modified node, and, when this invocation is
// an undo, marks the prior action as reverted. Identity resolution rides on
// the record-creating write: an unknown identity yields zero rows and a
// specific IdentityError, without an extra round trip.
func (r *Runner) commit(ctx context.Context, tx cypher.Querier, inv Invocation, applied *ApplyResult, reverts vnode.VNID, took time.Duration) (vnode.VNID, error) {
	actionID := vnode.NewVNID()
	userMatch := "{slug: $p2}"
	if vnode.IsVNID(inv.UserID) {
		userMatch = "{id: $p2}"
	}
	records, err := tx.Run(ctx,
		"MATCH (u:"+vnode.LabelUser+" "+userMatch+")\n"+
			"CREATE (a:"+vnode.LabelAction+" {id: $p1, type: $p3, timestamp: datetime(), tookMs: $p4, description: $p5, deletedNodesCount: $p6, deletedNodeIds: $p7})"+
			"-[:"+vnode.RelPerformedBy+"]->(u)\n"+
			"RETURN a.id AS id",
		map[string]any{
			"p1": actionID,
			"p2": inv.UserID,
			"p3": inv.Type,
			"p4": took.Milliseconds(),
			"p5": applied.Description,
			"p6": len(applied.DeletedIDs),
			"p7": applied.DeletedIDs,
		})
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", vgraph.NewIdentityError(inv.UserID)
	}
	if len(applied.ModifiedIDs) > 0 {
		_, err = tx.Run(ctx,
			"MATCH (a:"+vnode.LabelAction+" {id: $p1})\n"+
				"MATCH (n) WHERE n.id IN $p2\n"+
				"CREATE (a)-[:"+vnode.RelModified+"]->(n)",
			map[string]any{"p1": actionID, "p2": applied.ModifiedIDs})
		if err != nil {
			return "", err
		}
	}
	if reverts != "" {
		_, err = tx.Run(ctx,
			"MATCH (a:"+vnode.LabelAction+" {id: $p1}), (prior:"+vnode.LabelAction+" {id: $p2})\n"+
				"CREATE (a)-[:"+vnode.RelReverted+"]->(prior)",
			map[string]any{"p1": actionID, "p2": reverts})
		if err != nil {
			return "", err
		}
	}
	return actionID, nil
}
