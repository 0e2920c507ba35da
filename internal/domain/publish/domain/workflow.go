package domain

import "slices"

// WorkflowTemplate is an ordered, immutable list of workflow nodes.
type WorkflowTemplate struct {
	name  string
	nodes []Node
}

// NewWorkflowTemplate creates a template from node names.
func NewWorkflowTemplate(name string, nodeNames []string) (WorkflowTemplate, error) {
	nodes := make([]Node, 0, len(nodeNames))
	for _, s := range nodeNames {
		n, err := ParseNode(s)
		if err != nil {
			return WorkflowTemplate{}, err
		}
		nodes = append(nodes, n)
	}
	return WorkflowTemplate{name: name, nodes: nodes}, nil
}

// Name returns the template name.
func (t WorkflowTemplate) Name() string {
	return t.name
}

// Nodes returns a copy of the ordered node list.
func (t WorkflowTemplate) Nodes() []Node {
	return slices.Clone(t.nodes)
}

// IndexOf returns the template index of n after normalization, or -1.
func (t WorkflowTemplate) IndexOf(n Node) int {
	return slices.Index(t.nodes, n.Normalize())
}

// Previous returns the node preceding n. The first node and nodes outside the
// template have no predecessor.
func (t WorkflowTemplate) Previous(n Node) (Node, bool) {
	i := t.IndexOf(n)
	if i <= 0 {
		return "", false
	}
	return t.nodes[i-1], true
}

// unlockedIndex is the furthest template index the current node may publish to
// without skipping a stage.
func (t WorkflowTemplate) unlockedIndex(current Node) int {
	last := len(t.nodes) - 1
	var i int
	switch current {
	case NodeApplyForTest:
		i = t.IndexOf(NodeTesting)
	case NodeApplyForFix:
		i = t.IndexOf(NodeFix)
	case NodeProductionNotMerge:
		i = last
	default:
		i = t.IndexOf(current)
	}
	if i < 0 {
		return 0
	}
	return i
}

// Reachable reports whether a publish to target is legal from current. Any
// stage up to the unlocked one may be republished; the final stage also
// opens once the stage before it is reached.
func (t WorkflowTemplate) Reachable(current, target Node) bool {
	ti := t.IndexOf(target)
	if ti < 0 {
		return false
	}
	u := t.unlockedIndex(current)
	last := len(t.nodes) - 1
	return ti <= u || (ti == last && u == last-1)
}
