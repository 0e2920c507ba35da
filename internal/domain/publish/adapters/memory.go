// Package adapters provides infrastructure implementations for the publish orchestrator.
package adapters

import (
	"context"
	"sort"
	"sync"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
)

// MemoryStore implements every repository port in process memory. Aggregates
// are copied on the way in and out so callers never share state with the
// store, and revisions are checked on save as a database would.
type MemoryStore struct {
	mu sync.RWMutex

	tasks          map[domain.TaskID]*domain.Task
	iterations     map[int64]*domain.Iteration
	processes      map[processKey]*domain.Process
	projects       map[int64]*domain.Project
	configurations map[configKey]*domain.ProjectConfiguration
	domains        map[int64]*domain.Domain
	accounts       map[int64]domain.ThirdPartyAccount
	history        []*domain.DeployHistory
	operations     []*domain.Operation

	nextTaskID    domain.TaskID
	nextProcessID int64
	nextDomainID  int64
	nextHistoryID int64
}

type processKey struct {
	iterationID int64
	projectType domain.ProjectType
}

type configKey struct {
	projectID   int64
	projectType domain.ProjectType
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:          make(map[domain.TaskID]*domain.Task),
		iterations:     make(map[int64]*domain.Iteration),
		processes:      make(map[processKey]*domain.Process),
		projects:       make(map[int64]*domain.Project),
		configurations: make(map[configKey]*domain.ProjectConfiguration),
		domains:        make(map[int64]*domain.Domain),
		accounts:       make(map[int64]domain.ThirdPartyAccount),
	}
}

// Ensure MemoryStore implements the interfaces.
var (
	_ ports.TaskRepository                 = (*MemoryStore)(nil)
	_ ports.IterationRepository            = (*MemoryIterations)(nil)
	_ ports.ProcessRepository              = (*MemoryStore)(nil)
	_ ports.ProjectRepository              = (*MemoryProjects)(nil)
	_ ports.ProjectConfigurationRepository = (*MemoryConfigurations)(nil)
	_ ports.DomainRepository               = (*MemoryDomains)(nil)
	_ ports.ThirdPartyRepository           = (*MemoryStore)(nil)
	_ ports.DeployHistoryRepository        = (*MemoryHistory)(nil)
	_ ports.OperationRepository            = (*MemoryStore)(nil)
)

// Iterations returns the iteration repository view of the store.
func (s *MemoryStore) Iterations() *MemoryIterations { return (*MemoryIterations)(s) }

// Projects returns the project repository view of the store.
func (s *MemoryStore) Projects() *MemoryProjects { return (*MemoryProjects)(s) }

// Domains returns the domain repository view of the store.
func (s *MemoryStore) Domains() *MemoryDomains { return (*MemoryDomains)(s) }

// Configurations returns the project configuration view of the store.
func (s *MemoryStore) Configurations() *MemoryConfigurations { return (*MemoryConfigurations)(s) }

// History returns the deploy history repository view of the store.
func (s *MemoryStore) History() *MemoryHistory { return (*MemoryHistory)(s) }

// Tasks

// Create stores a new task and assigns its ID.
func (s *MemoryStore) Create(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTaskID++
	task.ID = s.nextTaskID
	c := *task
	s.tasks[task.ID] = &c
	return nil
}

// FindByID returns a copy of the task.
func (s *MemoryStore) FindByID(_ context.Context, id domain.TaskID) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	c := *t
	return &c, nil
}

// FindByExternalID returns the newest task issued under an external id.
func (s *MemoryStore) FindByExternalID(_ context.Context, externalID string) (*domain.Task, error) {
	return s.latestTask(func(t *domain.Task) bool { return t.ExternalTaskID == externalID })
}

// LatestOnEnvironment returns the newest task of a project type on env.
func (s *MemoryStore) LatestOnEnvironment(_ context.Context, projectID int64, pt domain.ProjectType, env domain.Node) (*domain.Task, error) {
	return s.latestTask(func(t *domain.Task) bool {
		return t.ProjectID == projectID && t.ProjectType == pt && t.Environment == env
	})
}

func (s *MemoryStore) latestTask(match func(*domain.Task) bool) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.Task
	for _, t := range s.tasks {
		if match(t) && (latest == nil || t.ID > latest.ID) {
			latest = t
		}
	}
	if latest == nil {
		return nil, domain.ErrTaskNotFound
	}
	c := *latest
	return &c, nil
}

// AttachQueueID stores the builder correlation id once.
func (s *MemoryStore) AttachQueueID(_ context.Context, id domain.TaskID, queueID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	if t.QueueID != 0 && t.QueueID != queueID {
		return domain.ErrQueueIDAssigned
	}
	for otherID, other := range s.tasks {
		if otherID != id && other.QueueID == queueID {
			return domain.ErrQueueIDInUse
		}
	}
	t.QueueID = queueID
	return nil
}

// TransitionStatus is a compare-and-set on the task status.
func (s *MemoryStore) TransitionStatus(_ context.Context, id domain.TaskID, from, to domain.TaskStatus, buildID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false, domain.ErrTaskNotFound
	}
	if t.Status != from {
		return false, nil
	}
	t.Status = to
	if buildID != "" {
		t.BuildID = buildID
	}
	return true, nil
}

// Processes

// Find returns the process of a project type within an iteration.
func (s *MemoryStore) Find(_ context.Context, iterationID int64, pt domain.ProjectType) (*domain.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.processes[processKey{iterationID, pt}]
	if !ok {
		return nil, domain.ErrProcessNotFound
	}
	return p.Clone(), nil
}

// Save inserts or updates a process, checking its revision.
func (s *MemoryStore) Save(_ context.Context, p *domain.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := processKey{p.IterationID, p.ProjectType}
	cur, exists := s.processes[key]
	switch {
	case p.ID == 0 && exists:
		return domain.ErrConcurrentUpdate
	case p.ID == 0:
		s.nextProcessID++
		p.ID = s.nextProcessID
	case !exists || cur.Revision != p.Revision:
		return domain.ErrConcurrentUpdate
	}
	p.Revision++
	s.processes[key] = p.Clone()
	return nil
}

// Third-party accounts

// FindByIDs returns the accounts among ids bound to the project.
func (s *MemoryStore) FindByIDs(_ context.Context, ids []int64, projectID int64, env domain.Node) ([]domain.ThirdPartyAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ThirdPartyAccount
	for _, id := range ids {
		a, ok := s.accounts[id]
		if !ok || a.ProjectID != projectID {
			continue
		}
		if a.Environment != "" && a.Environment != env {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Operations

// Record appends an audit record.
func (s *MemoryStore) Record(_ context.Context, op *domain.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *op
	s.operations = append(s.operations, &c)
	return nil
}

// Operations returns the audit records of a task, oldest first.
func (s *MemoryStore) Operations(id domain.TaskID) []domain.Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Operation
	for _, op := range s.operations {
		if op.TaskID == id {
			out = append(out, *op)
		}
	}
	return out
}

// MemoryIterations is the iteration repository view of a MemoryStore.
type MemoryIterations MemoryStore

// FindByID returns a copy of the iteration.
func (r *MemoryIterations) FindByID(_ context.Context, id int64) (*domain.Iteration, error) {
	s := (*MemoryStore)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.iterations[id]
	if !ok {
		return nil, domain.ErrIterationNotFound
	}
	return it.Clone(), nil
}

// ListByProject returns the iterations of a project ordered by id.
func (r *MemoryIterations) ListByProject(_ context.Context, projectID int64) ([]*domain.Iteration, error) {
	s := (*MemoryStore)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Iteration
	for _, it := range s.iterations {
		if it.ProjectID == projectID {
			out = append(out, it.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Save writes the iteration if its revision is current.
func (r *MemoryIterations) Save(_ context.Context, it *domain.Iteration) error {
	s := (*MemoryStore)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.iterations[it.ID]; ok && cur.Revision != it.Revision {
		return domain.ErrConcurrentUpdate
	}
	it.Revision++
	s.iterations[it.ID] = it.Clone()
	return nil
}

// MemoryProjects is the project repository view of a MemoryStore.
type MemoryProjects MemoryStore

// FindByID returns a copy of the project.
func (r *MemoryProjects) FindByID(_ context.Context, id int64) (*domain.Project, error) {
	s := (*MemoryStore)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, domain.ErrProjectNotFound
	}
	c := *p
	return &c, nil
}

// MemoryConfigurations is the project configuration view of a MemoryStore.
type MemoryConfigurations MemoryStore

// Find returns the override of a project type, or nil.
func (r *MemoryConfigurations) Find(_ context.Context, projectID int64, pt domain.ProjectType) (*domain.ProjectConfiguration, error) {
	s := (*MemoryStore)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configurations[configKey{projectID, pt}]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// MemoryDomains is the domain repository view of a MemoryStore.
type MemoryDomains MemoryStore

// FindByID returns a copy of the domain binding.
func (r *MemoryDomains) FindByID(_ context.Context, id int64) (*domain.Domain, error) {
	s := (*MemoryStore)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.domains[id]
	if !ok {
		return nil, domain.ErrDomainNotFound
	}
	c := *d
	return &c, nil
}

// FindByKey returns the binding with the given guard key.
func (r *MemoryDomains) FindByKey(_ context.Context, key domain.DomainKey) (*domain.Domain, error) {
	s := (*MemoryStore)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d := s.domainByKey(key); d != nil {
		c := *d
		return &c, nil
	}
	return nil, domain.ErrDomainNotFound
}

// Create stores a binding unless its key is taken.
func (r *MemoryDomains) Create(_ context.Context, d *domain.Domain) (*domain.Domain, error) {
	s := (*MemoryStore)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.domainByKey(d.Key()); existing != nil {
		c := *existing
		return &c, nil
	}
	s.nextDomainID++
	d.ID = s.nextDomainID
	c := *d
	s.domains[d.ID] = &c
	return d, nil
}

func (s *MemoryStore) domainByKey(key domain.DomainKey) *domain.Domain {
	for _, d := range s.domains {
		if d.Key() == key {
			return d
		}
	}
	return nil
}

// MemoryHistory is the deploy history view of a MemoryStore.
type MemoryHistory MemoryStore

// Append adds a history row.
func (r *MemoryHistory) Append(_ context.Context, h *domain.DeployHistory) error {
	s := (*MemoryStore)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHistoryID++
	h.ID = s.nextHistoryID
	c := *h
	s.history = append(s.history, &c)
	return nil
}

// Latest returns the newest row matching q.
func (r *MemoryHistory) Latest(_ context.Context, q domain.HistoryQuery) (*domain.DeployHistory, error) {
	return (*MemoryStore)(r).latestHistory(q.Matches)
}

// FindByTaskID returns the newest row written for a task.
func (r *MemoryHistory) FindByTaskID(_ context.Context, id domain.TaskID) (*domain.DeployHistory, error) {
	return (*MemoryStore)(r).latestHistory(func(h *domain.DeployHistory) bool { return h.TaskID == id })
}

func (s *MemoryStore) latestHistory(match func(*domain.DeployHistory) bool) (*domain.DeployHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if match(s.history[i]) {
			c := *s.history[i]
			return &c, nil
		}
	}
	return nil, domain.ErrHistoryNotFound
}
