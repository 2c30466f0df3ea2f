package action

import (
	"context"
	"sort"
	"strings"

	"github.com/syssam/vgraph"
	"github.com/syssam/vgraph/cypher"
	"github.com/syssam/vgraph/vnode"
)

// Reserved key prefixes of the change-detail map the store-side consistency
// trigger records on each MODIFIED edge.
const (
	detailCreated        = "created"
	detailModifiedProps  = "modifiedProperties"
	detailOldPropPrefix  = "oldProp:"
	detailNewPropPrefix  = "newProp:"
	detailAddedLabel     = "addedLabel:"
	detailRemovedLabel   = "removedLabel:"
	detailNewRel         = "newRel:"
	detailDeletedRel     = "deletedRel:"
	detailNewRelProp     = "newRelProp:"
	detailDeletedRelProp = "deletedRelProp:"
)

// PropChange is one property delta on a pre-existing node.
type PropChange struct {
	Old any
	New any
}

// CreatedNode describes a node the action created, with the property
// snapshot recorded at creation.
type CreatedNode struct {
	ID     vnode.VNID
	Labels []string
	Props  map[string]any
}

// ModifiedNode describes the deltas an action applied to a pre-existing
// node.
type ModifiedNode struct {
	ID            vnode.VNID
	Props         map[string]PropChange
	AddedLabels   []string
	RemovedLabels []string
}

// RelChange describes one created or deleted relationship, with its
// property snapshot.
type RelChange struct {
	Type  string
	From  vnode.VNID
	To    vnode.VNID
	Props map[string]any
}

// ChangeSet is the decoded, structured diff of one action's effect on the
// graph. It is derived from the MODIFIED edges on demand and never cached.
type ChangeSet struct {
	ActionID       vnode.VNID
	ActionType     string
	Created        []CreatedNode
	Modified       []ModifiedNode
	CreatedRels    []RelChange
	DeletedRels    []RelChange
	DeletedNodeIDs []vnode.VNID
}

// Decode fetches the MODIFIED edges of the given action and parses each
// edge's change-detail map. Unknown or structurally inconsistent detail keys
// raise: silent data loss here would corrupt undo.
func Decode(ctx context.Context, tx cypher.Querier, actionID vnode.VNID) (*ChangeSet, error) {
	records, err := tx.Run(ctx,
		"MATCH (a:"+vnode.LabelAction+" {id: $p1})\n"+
			"OPTIONAL MATCH (a)-[m:"+vnode.RelModified+"]->(n)\n"+
			"RETURN a.type AS type, a.deletedNodeIds AS deletedIds, n.id AS nodeId, properties(m) AS details",
		map[string]any{"p1": actionID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, vgraph.NewNotFoundErrorWithKey("action", actionID)
	}
	cs := &ChangeSet{ActionID: actionID}
	if t, ok := records[0]["type"].(string); ok {
		cs.ActionType = t
	}
	if ids, ok := records[0]["deletedIds"].([]any); ok {
		for _, id := range ids {
			s, ok := id.(string)
			if !ok {
				return nil, vgraph.NewInternalError("deleted node id %v of action %s is not a string", id, actionID)
			}
			cs.DeletedNodeIDs = append(cs.DeletedNodeIDs, s)
		}
	}
	for _, rec := range records {
		nodeID, ok := rec["nodeId"].(string)
		if !ok {
			continue // action with no modified nodes
		}
		details, _ := rec["details"].(map[string]any)
		if err := cs.decodeEdge(nodeID, details); err != nil {
			return nil, err
		}
	}
	return cs, nil
}

// decodeEdge classifies one node's recorded changes and accumulates the
// relationship changes recorded on its edge. Relationship ids are
// transaction-scoped, so they are resolved within this one edge only.
func (cs *ChangeSet) decodeEdge(nodeID vnode.VNID, details map[string]any) error {
	var (
		createdLabels []string
		isCreated     bool
		propNames     []string
		oldProps      = make(map[string]any)
		newProps      = make(map[string]any)
		addedLabels   []string
		removedLabels []string
		newRels       = make(map[string]*RelChange)
		deletedRels   = make(map[string]*RelChange)
	)

	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := details[key]
		switch {
		case key == detailCreated:
			isCreated = true
			labels, ok := value.([]any)
			if !ok {
				return vgraph.NewInternalError("change detail %q of node %s is not a label list", key, nodeID)
			}
			for _, l := range labels {
				s, ok := l.(string)
				if !ok {
					return vgraph.NewInternalError("change detail %q of node %s is not a label list", key, nodeID)
				}
				createdLabels = append(createdLabels, s)
			}
		case key == detailModifiedProps:
			names, ok := value.([]any)
			if !ok {
				return vgraph.NewInternalError("change detail %q of node %s is not a name list", key, nodeID)
			}
			for _, n := range names {
				s, ok := n.(string)
				if !ok {
					return vgraph.NewInternalError("change detail %q of node %s is not a name list", key, nodeID)
				}
				propNames = append(propNames, s)
			}
		case strings.HasPrefix(key, detailOldPropPrefix):
			oldProps[key[len(detailOldPropPrefix):]] = value
		case strings.HasPrefix(key, detailNewPropPrefix):
			newProps[key[len(detailNewPropPrefix):]] = value
		case strings.HasPrefix(key, detailAddedLabel):
			addedLabels = append(addedLabels, key[len(detailAddedLabel):])
		case strings.HasPrefix(key, detailRemovedLabel):
			removedLabels = append(removedLabels, key[len(detailRemovedLabel):])
		case strings.HasPrefix(key, detailNewRel):
			if err := decodeRelTuple(newRels, key[len(detailNewRel):], nodeID, value); err != nil {
				return err
			}
		case strings.HasPrefix(key, detailDeletedRel):
			if err := decodeRelTuple(deletedRels, key[len(detailDeletedRel):], nodeID, value); err != nil {
				return err
			}
		case strings.HasPrefix(key, detailNewRelProp):
			if err := decodeRelProp(newRels, key[len(detailNewRelProp):], value); err != nil {
				return err
			}
		case strings.HasPrefix(key, detailDeletedRelProp):
			if err := decodeRelProp(deletedRels, key[len(detailDeletedRelProp):], value); err != nil {
				return err
			}
		default:
			return vgraph.NewInternalError("unknown change detail key %q on node %s", key, nodeID)
		}
	}

	if isCreated {
		if len(addedLabels) > 0 || len(removedLabels) > 0 {
			return vgraph.NewInternalError("node %s has label changes recorded but is also marked as newly created", nodeID)
		}
		if len(oldProps) > 0 {
			return vgraph.NewInternalError("node %s has prior property values recorded but is also marked as newly created", nodeID)
		}
		props := make(map[string]any, len(propNames))
		for _, name := range propNames {
			props[name] = newProps[name]
		}
		cs.Created = append(cs.Created, CreatedNode{ID: nodeID, Labels: createdLabels, Props: props})
	} else if len(propNames) > 0 || len(addedLabels) > 0 || len(removedLabels) > 0 {
		m := ModifiedNode{
			ID:            nodeID,
			Props:         make(map[string]PropChange, len(propNames)),
			AddedLabels:   addedLabels,
			RemovedLabels: removedLabels,
		}
		for _, name := range propNames {
			m.Props[name] = PropChange{Old: oldProps[name], New: newProps[name]}
		}
		cs.Modified = append(cs.Modified, m)
	}

	for _, id := range sortedKeys(newRels) {
		cs.CreatedRels = append(cs.CreatedRels, *newRels[id])
	}
	for _, id := range sortedKeys(deletedRels) {
		cs.DeletedRels = append(cs.DeletedRels, *deletedRels[id])
	}
	return nil
}

// decodeRelTuple records the (type, target) tuple of a numbered
// relationship change.
func decodeRelTuple(rels map[string]*RelChange, relID string, from vnode.VNID, value any) error {
	tuple, ok := value.([]any)
	if !ok || len(tuple) != 2 {
		return vgraph.NewInternalError("relationship detail %q is not a (type, target) tuple", relID)
	}
	relType, ok1 := tuple[0].(string)
	target, ok2 := tuple[1].(string)
	if !ok1 || !ok2 {
		return vgraph.NewInternalError("relationship detail %q has a malformed tuple", relID)
	}
	rel := relAt(rels, relID)
	rel.Type = relType
	rel.From = from
	rel.To = target
	return nil
}

// decodeRelProp records one property of a numbered relationship change; the
// key remainder is "<relId>:<prop>".
func decodeRelProp(rels map[string]*RelChange, rest string, value any) error {
	relID, prop, ok := strings.Cut(rest, ":")
	if !ok {
		return vgraph.NewInternalError("malformed relationship property key %q", rest)
	}
	relAt(rels, relID).Props[prop] = value
	return nil
}

func relAt(rels map[string]*RelChange, relID string) *RelChange {
	rel, ok := rels[relID]
	if !ok {
		rel = &RelChange{Props: make(map[string]any)}
		rels[relID] = rel
	}
	return rel
}

func sortedKeys(m map[string]*RelChange) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
