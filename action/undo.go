package action

import (
	"context"
	"fmt"
	"sort"

	"github.com/syssam/vgraph"
	"github.com/syssam/vgraph/cypher"
	"github.com/syssam/vgraph/vnode"
)

// UndoType is the action type name of generic undo invocations.
const UndoType = "UndoAction"

// Undo reverts a previously committed action by replaying its recorded
// change-set backwards, as one new action. Every step is guarded by an
// equality check against the recorded state; any guard failing makes the
// whole invocation fail atomically with a ConflictError and zero changes
// committed. An action that permanently deleted nodes, or that is already
// reverted, is refused. Undoing an undo is itself just another action.
func (r *Runner) Undo(ctx context.Context, actionID vnode.VNID, userID string) (*Result, error) {
	def := Definition{
		Type: UndoType,
		Apply: func(ctx context.Context, tx cypher.Querier, _ map[string]any) (*ApplyResult, error) {
			return applyUndo(ctx, tx, actionID)
		},
	}
	inv := Invocation{Type: UndoType, UserID: userID}
	return r.run(ctx, def, inv, actionID)
}

// applyUndo decodes the target's change-set and applies the inverse
// mutation, in the fixed order: re-create deleted relationships, write back
// property deltas, invert label changes, delete created relationships,
// delete created nodes.
func applyUndo(ctx context.Context, tx cypher.Querier, actionID vnode.VNID) (*ApplyResult, error) {
	reverted, err := tx.Run(ctx,
		"MATCH (x:"+vnode.LabelAction+")-[:"+vnode.RelReverted+"]->(a:"+vnode.LabelAction+" {id: $p1})\nRETURN x.id AS id",
		map[string]any{"p1": actionID})
	if err != nil {
		return nil, err
	}
	if len(reverted) > 0 {
		return nil, vgraph.ErrAlreadyReverted
	}

	cs, err := Decode(ctx, tx, actionID)
	if err != nil {
		return nil, err
	}
	if len(cs.DeletedNodeIDs) > 0 {
		return nil, vgraph.ErrNotUndoable
	}

	touched := make(map[vnode.VNID]bool)

	for _, rel := range cs.DeletedRels {
		if !cypher.IsValidIdentifier(rel.Type) {
			return nil, vgraph.NewInternalError("recorded relationship type %q is not a valid identifier", rel.Type)
		}
		rows, err := tx.Run(ctx,
			"MATCH (f {id: $p1}), (t {id: $p2})\n"+
				"CREATE (f)-[rel:"+rel.Type+"]->(t) SET rel = $p3\n"+
				"RETURN 1",
			map[string]any{"p1": rel.From, "p2": rel.To, "p3": rel.Props})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, vgraph.NewConflictError(actionID,
				fmt.Sprintf("an endpoint of the deleted %s relationship no longer exists", rel.Type))
		}
		touched[rel.From] = true
		touched[rel.To] = true
	}

	for _, node := range cs.Modified {
		names := make([]string, 0, len(node.Props))
		for name := range node.Props {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if !cypher.IsValidIdentifier(name) {
				return nil, vgraph.NewInternalError("recorded property name %q is not a valid identifier", name)
			}
			change := node.Props[name]
			// Write the old value back only if the current value still
			// equals the recorded new value.
			rows, err := tx.Run(ctx,
				"MATCH (n {id: $p1}) WHERE n."+name+" = $p2 OR ($p2 IS NULL AND n."+name+" IS NULL)\n"+
					"SET n."+name+" = $p3\n"+
					"RETURN 1",
				map[string]any{"p1": node.ID, "p2": change.New, "p3": change.Old})
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				return nil, vgraph.NewConflictError(actionID,
					fmt.Sprintf("property %s of node %s has changed since the action ran", name, node.ID))
			}
		}
		for _, label := range node.AddedLabels {
			if !cypher.IsValidIdentifier(label) {
				return nil, vgraph.NewInternalError("recorded label %q is not a valid identifier", label)
			}
			rows, err := tx.Run(ctx,
				"MATCH (n {id: $p1}) WHERE n:"+label+"\nREMOVE n:"+label+"\nRETURN 1",
				map[string]any{"p1": node.ID})
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				return nil, vgraph.NewConflictError(actionID,
					fmt.Sprintf("label %s of node %s has changed since the action ran", label, node.ID))
			}
		}
		for _, label := range node.RemovedLabels {
			if !cypher.IsValidIdentifier(label) {
				return nil, vgraph.NewInternalError("recorded label %q is not a valid identifier", label)
			}
			rows, err := tx.Run(ctx,
				"MATCH (n {id: $p1}) WHERE NOT n:"+label+"\nSET n:"+label+"\nRETURN 1",
				map[string]any{"p1": node.ID})
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				return nil, vgraph.NewConflictError(actionID,
					fmt.Sprintf("label %s of node %s has changed since the action ran", label, node.ID))
			}
		}
		touched[node.ID] = true
	}

	for _, rel := range cs.CreatedRels {
		if !cypher.IsValidIdentifier(rel.Type) {
			return nil, vgraph.NewInternalError("recorded relationship type %q is not a valid identifier", rel.Type)
		}
		// Delete only if the relationship still carries exactly the
		// recorded type and properties.
		rows, err := tx.Run(ctx,
			"MATCH (f {id: $p1})-[rel:"+rel.Type+"]->(t {id: $p2}) WHERE properties(rel) = $p3\n"+
				"WITH rel LIMIT 1 DELETE rel\n"+
				"RETURN 1",
			map[string]any{"p1": rel.From, "p2": rel.To, "p3": rel.Props})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, vgraph.NewConflictError(actionID,
				fmt.Sprintf("the created %s relationship no longer matches its recorded state", rel.Type))
		}
		touched[rel.From] = true
		touched[rel.To] = true
	}

	for _, node := range cs.Created {
		// Delete only if the current property snapshot still equals what
		// was recorded at creation.
		rows, err := tx.Run(ctx,
			"MATCH (n {id: $p1}) WHERE properties(n) = $p2\nDETACH DELETE n\nRETURN 1",
			map[string]any{"p1": node.ID, "p2": node.Props})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, vgraph.NewConflictError(actionID,
				fmt.Sprintf("created node %s no longer matches its recorded state", node.ID))
		}
		touched[node.ID] = true
	}

	ids := make([]vnode.VNID, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &ApplyResult{
		ModifiedIDs: ids,
		Description: fmt.Sprintf("Reverted action %s (%s)", cs.ActionType, actionID),
	}, nil
}
