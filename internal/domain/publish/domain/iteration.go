package domain

import "maps"

// Iteration is a versioned release train grouping per-project-type processes.
// Revision is the optimistic concurrency token checked on every save.
type Iteration struct {
	ID               int64
	ProjectID        int64
	Version          string
	DevCount         int
	TestCount        int
	FixCount         int
	CurrentNode      Node
	SubNodes         map[ProjectType]Node
	ApprovalInstance string
	BumpPolicy       BumpPolicy
	Status           IterationStatus
	// MultiBranch keeps one branch per project type when the project has several.
	MultiBranch bool
	Revision    int64
}

// IsDeprecated reports whether the iteration may no longer be published.
func (it *Iteration) IsDeprecated() bool {
	return it.Status == IterationDeprecated
}

// IsHotfix reports whether the iteration follows the hotfix template.
func (it *Iteration) IsHotfix() bool {
	return it.BumpPolicy == BumpHotfix
}

// Counter returns the build counter of a non-production environment.
func (it *Iteration) Counter(env Node) int {
	switch env.Normalize() {
	case NodeDevelopment:
		return it.DevCount
	case NodeTesting:
		return it.TestCount
	case NodeFix:
		return it.FixCount
	}
	return 0
}

// IncrementCounter bumps the counter of a non-production environment and
// returns the new value. Production has no counter.
func (it *Iteration) IncrementCounter(env Node) (int, bool) {
	switch env.Normalize() {
	case NodeDevelopment:
		it.DevCount++
		return it.DevCount, true
	case NodeTesting:
		it.TestCount++
		return it.TestCount, true
	case NodeFix:
		it.FixCount++
		return it.FixCount, true
	}
	return 0, false
}

// AdvanceFromPending moves a pending-action node to target.
func (it *Iteration) AdvanceFromPending(target Node) bool {
	if !it.CurrentNode.IsPendingAction() {
		return false
	}
	it.CurrentNode = target
	return true
}

// MarkProductionNotMerged records that production is live but not yet merged
// back to trunk, for the iteration and the project type's sub-node.
func (it *Iteration) MarkProductionNotMerged(pt ProjectType) {
	it.CurrentNode = NodeProductionNotMerge
	if it.SubNodes == nil {
		it.SubNodes = make(map[ProjectType]Node)
	}
	it.SubNodes[pt] = NodeProductionNotMerge
}

// Clone returns a deep copy.
func (it *Iteration) Clone() *Iteration {
	c := *it
	c.SubNodes = maps.Clone(it.SubNodes)
	return &c
}

// Process is the per-project-type workflow instance within an iteration.
type Process struct {
	ID               int64
	IterationID      int64
	ProjectID        int64
	ProjectType      ProjectType
	CurrentNode      Node
	CurrentEnvBranch string
	// CurrentTaskIDs holds the latest task per environment; pre shares fix.
	CurrentTaskIDs map[DeployEnv]TaskID
	Revision       int64
}

// AdvanceFromPending moves a pending-action node to target.
func (p *Process) AdvanceFromPending(target Node) bool {
	if !p.CurrentNode.IsPendingAction() {
		return false
	}
	p.CurrentNode = target
	return true
}

// RecordTask stores id as the current task of env.
func (p *Process) RecordTask(env Node, id TaskID) {
	if p.CurrentTaskIDs == nil {
		p.CurrentTaskIDs = make(map[DeployEnv]TaskID)
	}
	p.CurrentTaskIDs[env.DeployEnv()] = id
}

// CurrentTask returns the current task id of env, or zero.
func (p *Process) CurrentTask(env Node) TaskID {
	return p.CurrentTaskIDs[env.DeployEnv()]
}

// Clone returns a deep copy.
func (p *Process) Clone() *Process {
	c := *p
	c.CurrentTaskIDs = maps.Clone(p.CurrentTaskIDs)
	return &c
}
