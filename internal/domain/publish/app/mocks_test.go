package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
)

// Mock implementations

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type mockTasks struct {
	mu     sync.Mutex
	tasks  map[domain.TaskID]*domain.Task
	nextID domain.TaskID
}

func newMockTasks() *mockTasks {
	return &mockTasks{tasks: make(map[domain.TaskID]*domain.Task)}
}

func (m *mockTasks) Create(_ context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	task.ID = m.nextID
	c := *task
	m.tasks[task.ID] = &c
	return nil
}

func (m *mockTasks) FindByID(_ context.Context, id domain.TaskID) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	c := *t
	return &c, nil
}

func (m *mockTasks) FindByExternalID(_ context.Context, externalID string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ExternalTaskID == externalID {
			c := *t
			return &c, nil
		}
	}
	return nil, domain.ErrTaskNotFound
}

func (m *mockTasks) LatestOnEnvironment(_ context.Context, projectID int64, pt domain.ProjectType, env domain.Node) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.Task
	for _, t := range m.tasks {
		if t.ProjectID == projectID && t.ProjectType == pt && t.Environment == env {
			if latest == nil || t.ID > latest.ID {
				latest = t
			}
		}
	}
	if latest == nil {
		return nil, domain.ErrTaskNotFound
	}
	c := *latest
	return &c, nil
}

func (m *mockTasks) AttachQueueID(_ context.Context, id domain.TaskID, queueID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	if t.QueueID != 0 && t.QueueID != queueID {
		return domain.ErrQueueIDAssigned
	}
	for otherID, other := range m.tasks {
		if otherID != id && other.QueueID == queueID {
			return domain.ErrQueueIDInUse
		}
	}
	t.QueueID = queueID
	return nil
}

func (m *mockTasks) TransitionStatus(_ context.Context, id domain.TaskID, from, to domain.TaskStatus, buildID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
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

func (m *mockTasks) get(id domain.TaskID) *domain.Task {
	t, _ := m.FindByID(context.Background(), id)
	return t
}

type mockIterations struct {
	mu    sync.Mutex
	items map[int64]*domain.Iteration
}

func newMockIterations(its ...*domain.Iteration) *mockIterations {
	m := &mockIterations{items: make(map[int64]*domain.Iteration)}
	for _, it := range its {
		m.items[it.ID] = it.Clone()
	}
	return m
}

func (m *mockIterations) FindByID(_ context.Context, id int64) (*domain.Iteration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, domain.ErrIterationNotFound
	}
	return it.Clone(), nil
}

func (m *mockIterations) ListByProject(_ context.Context, projectID int64) ([]*domain.Iteration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Iteration
	for _, it := range m.items {
		if it.ProjectID == projectID {
			out = append(out, it.Clone())
		}
	}
	return out, nil
}

func (m *mockIterations) Save(_ context.Context, it *domain.Iteration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.items[it.ID]; ok && cur.Revision != it.Revision {
		return domain.ErrConcurrentUpdate
	}
	it.Revision++
	m.items[it.ID] = it.Clone()
	return nil
}

func (m *mockIterations) get(id int64) *domain.Iteration {
	it, _ := m.FindByID(context.Background(), id)
	return it
}

type mockProcesses struct {
	mu     sync.Mutex
	items  map[string]*domain.Process
	nextID int64
}

func newMockProcesses(ps ...*domain.Process) *mockProcesses {
	m := &mockProcesses{items: make(map[string]*domain.Process)}
	for _, p := range ps {
		m.items[processKey(p.IterationID, p.ProjectType)] = p.Clone()
		m.nextID = max(m.nextID, p.ID)
	}
	return m
}

func processKey(iterationID int64, pt domain.ProjectType) string {
	return fmt.Sprintf("%d/%s", iterationID, pt)
}

func (m *mockProcesses) Find(_ context.Context, iterationID int64, pt domain.ProjectType) (*domain.Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[processKey(iterationID, pt)]
	if !ok {
		return nil, domain.ErrProcessNotFound
	}
	return p.Clone(), nil
}

func (m *mockProcesses) Save(_ context.Context, p *domain.Process) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := processKey(p.IterationID, p.ProjectType)
	if p.ID == 0 {
		m.nextID++
		p.ID = m.nextID
	} else if cur, ok := m.items[key]; ok && cur.Revision != p.Revision {
		return domain.ErrConcurrentUpdate
	}
	p.Revision++
	m.items[key] = p.Clone()
	return nil
}

type mockProjects struct {
	items map[int64]*domain.Project
}

func (m *mockProjects) FindByID(_ context.Context, id int64) (*domain.Project, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, domain.ErrProjectNotFound
	}
	c := *p
	return &c, nil
}

type mockConfigurations struct {
	items map[string]*domain.ProjectConfiguration
}

func (m *mockConfigurations) Find(_ context.Context, projectID int64, pt domain.ProjectType) (*domain.ProjectConfiguration, error) {
	return m.items[fmt.Sprintf("%d/%s", projectID, pt)], nil
}

type mockDomains struct {
	mu      sync.Mutex
	items   map[int64]*domain.Domain
	created []*domain.Domain
}

func (m *mockDomains) FindByID(_ context.Context, id int64) (*domain.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return nil, domain.ErrDomainNotFound
	}
	c := *d
	return &c, nil
}

func (m *mockDomains) FindByKey(_ context.Context, key domain.DomainKey) (*domain.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.items {
		if d.Key() == key {
			c := *d
			return &c, nil
		}
	}
	return nil, domain.ErrDomainNotFound
}

func (m *mockDomains) Create(_ context.Context, d *domain.Domain) (*domain.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.Key() == d.Key() {
			return existing, nil
		}
	}
	d.ID = int64(len(m.items) + 100)
	m.items[d.ID] = d
	m.created = append(m.created, d)
	return d, nil
}

type mockThirdParty struct {
	accounts []domain.ThirdPartyAccount
}

func (m *mockThirdParty) FindByIDs(_ context.Context, ids []int64, projectID int64, _ domain.Node) ([]domain.ThirdPartyAccount, error) {
	var out []domain.ThirdPartyAccount
	for _, a := range m.accounts {
		for _, id := range ids {
			if a.ID == id && a.ProjectID == projectID {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

type mockHistory struct {
	mu   sync.Mutex
	rows []*domain.DeployHistory
}

func (m *mockHistory) Append(_ context.Context, h *domain.DeployHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, h)
	return nil
}

func (m *mockHistory) Latest(_ context.Context, q domain.HistoryQuery) (*domain.DeployHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		if q.Matches(m.rows[i]) {
			return m.rows[i], nil
		}
	}
	return nil, domain.ErrHistoryNotFound
}

func (m *mockHistory) FindByTaskID(_ context.Context, id domain.TaskID) (*domain.DeployHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].TaskID == id {
			return m.rows[i], nil
		}
	}
	return nil, domain.ErrHistoryNotFound
}

type mockOperations struct {
	mu      sync.Mutex
	records []*domain.Operation
}

func (m *mockOperations) Record(_ context.Context, op *domain.Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, op)
	return nil
}

// mockBuilder hands out queueID, queueID+1, ... to successive builds, or 0
// for every build when queueID is 0.
type mockBuilder struct {
	mu       sync.Mutex
	queueID  int64
	err      error
	requests []ports.BuildRequest
}

func (m *mockBuilder) Build(_ context.Context, req ports.BuildRequest) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.queueID == 0 || m.err != nil {
		return 0, m.err
	}
	return m.queueID + int64(len(m.requests)-1), nil
}

func (m *mockBuilder) last() ports.BuildRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

type mockConfigStore struct {
	mu         sync.Mutex
	namespaces map[string]string
	docs       map[domain.StoreCoordinates]string
	writes     int
}

func newMockConfigStore() *mockConfigStore {
	return &mockConfigStore{
		namespaces: make(map[string]string),
		docs:       make(map[domain.StoreCoordinates]string),
	}
}

func (m *mockConfigStore) LookupNamespace(_ context.Context, env domain.DeployEnv, tenant string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.namespaces[string(env)+"/"+tenant]
	return ns, ok, nil
}

func (m *mockConfigStore) UpsertNamespace(_ context.Context, env domain.DeployEnv, tenant string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.namespaces[string(env)+"/"+tenant] = tenant
	return tenant, nil
}

func (m *mockConfigStore) RenderHTML(_ context.Context, _ domain.DeployEnv, at domain.StoreCoordinates) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[at], nil
}

func (m *mockConfigStore) WriteHTML(_ context.Context, _ domain.DeployEnv, at domain.StoreCoordinates, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[at] = html
	m.writes++
	return nil
}

type mockRepository struct {
	mu       sync.Mutex
	branches map[string]bool
	merges   []ports.MergeRequest
	compare  ports.CompareResult
	mergeErr error
}

func (m *mockRepository) Compare(context.Context, string, string, string) (ports.CompareResult, error) {
	return m.compare, nil
}

func (m *mockRepository) BranchExists(_ context.Context, _ string, branch string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.branches[branch], nil
}

func (m *mockRepository) Merge(_ context.Context, req ports.MergeRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mergeErr != nil {
		return m.mergeErr
	}
	m.merges = append(m.merges, req)
	return nil
}

type mockApprovals struct {
	statuses map[string]domain.ApprovalStatus
	calls    int
}

func (m *mockApprovals) Status(_ context.Context, instance string) (domain.ApprovalStatus, error) {
	m.calls++
	s, ok := m.statuses[instance]
	if !ok {
		return "", fmt.Errorf("unknown instance %s", instance)
	}
	return s, nil
}

type mockArtifacts struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMockArtifacts() *mockArtifacts {
	return &mockArtifacts{objects: make(map[string][]byte)}
}

func (m *mockArtifacts) Put(_ context.Context, key string, body []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	url := "https://artifacts.test/" + key
	m.objects[url] = append([]byte(nil), body...)
	return url, nil
}

func (m *mockArtifacts) Fetch(_ context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[url], nil
}

type mockNotifier struct {
	mu            sync.Mutex
	notifications []ports.BuildNotification
	err           error
}

func (m *mockNotifier) NotifyBuildResult(_ context.Context, n ports.BuildNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return m.err
}

type mockTokens struct{ token string }

func (m mockTokens) ThirdPartyToken(context.Context) (string, error) { return m.token, nil }

type mockLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (m *mockLocks) Acquire(_ context.Context, key string) (func(), error) {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[string]*sync.Mutex)
	}
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock, nil
}
