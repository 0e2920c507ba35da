package app

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
	lperrors "github.com/relicta-tech/launchpad/internal/errors"
)

// Payload is the flat parameter set handed to the builder.
type Payload map[string]string

// User identifies the operator behind a publish.
type User struct {
	ID    string
	Name  string
	Email string
}

// StoreTarget is the resolved config-store destination of a publish.
type StoreTarget struct {
	// Domain is the host binding, when the request names one.
	Domain *domain.Domain
	// Binding is set for project types served from the config store.
	Binding *domain.ConfigStoreBinding
}

// PackageContext is everything a packaging strategy may read.
type PackageContext struct {
	Project       *domain.Project
	Iteration     *domain.Iteration
	Configuration *domain.ProjectConfiguration
	Task          *domain.Task
	Store         *StoreTarget
	User          User
	Cache         bool
	PublishType   domain.PublishType
	MicroModules  []domain.MicroModule
	ThirdPartyIDs []int64
	// External marks publishes issued by the caller system.
	External bool
	Extra    string
}

func (pc *PackageContext) requestEnv() domain.DeployEnv {
	return pc.Task.Environment.RequestEnv()
}

func (pc *PackageContext) domain() *domain.Domain {
	if pc.Store == nil {
		return nil
	}
	return pc.Store.Domain
}

// strategy contributes parameters to a builder payload.
type strategy interface {
	apply(ctx context.Context, p *Packager, pc *PackageContext, payload Payload) error
}

type configStoreStrategy struct{}

type thirdPartyStrategy struct{}

type microFrontendStrategy struct{}

// strategiesFor dispatches on the closed project type set. Strategies compose
// additively in the order returned.
func strategiesFor(pc *PackageContext) []strategy {
	var out []strategy
	switch pc.Task.ProjectType {
	case domain.ProjectGateway:
		out = append(out, configStoreStrategy{})
	case domain.ProjectWeapp3rd:
		out = append(out, thirdPartyStrategy{})
	case domain.ProjectWeb, domain.ProjectMicro, domain.ProjectIOS,
		domain.ProjectAndroid, domain.ProjectNodeJS, domain.ProjectNPM:
	}
	if pc.PublishType == domain.PublishMicro && len(pc.MicroModules) > 0 {
		out = append(out, microFrontendStrategy{})
	}
	return out
}

// Packager assembles builder payloads and config-store documents.
type Packager struct {
	settings   Settings
	store      ports.ConfigStore
	domains    ports.DomainRepository
	projects   ports.ProjectRepository
	iterations ports.IterationRepository
	thirdParty ports.ThirdPartyRepository
	tokens     ports.TokenSource
	history    ports.DeployHistoryRepository
	recorder   *HistoryService
	clock      ports.Clock
	logger     *slog.Logger
}

// PackagerDeps are the collaborators of a Packager.
type PackagerDeps struct {
	Store      ports.ConfigStore
	Domains    ports.DomainRepository
	Projects   ports.ProjectRepository
	Iterations ports.IterationRepository
	ThirdParty ports.ThirdPartyRepository
	Tokens     ports.TokenSource
	History    ports.DeployHistoryRepository
	Recorder   *HistoryService
	Clock      ports.Clock
}

// NewPackager creates a Packager.
func NewPackager(settings Settings, deps PackagerDeps) *Packager {
	return &Packager{
		settings:   settings,
		store:      deps.Store,
		domains:    deps.Domains,
		projects:   deps.Projects,
		iterations: deps.Iterations,
		thirdParty: deps.ThirdParty,
		tokens:     deps.Tokens,
		history:    deps.History,
		recorder:   deps.Recorder,
		clock:      deps.Clock,
		logger:     slog.Default().With("component", "packager"),
	}
}

// ResolveStore loads the domain binding named by a request and, for project
// types served from the config store, resolves the namespace and coordinates
// the build writes to. Bindings are looked up before they are created so a
// repeated publish never creates a second one.
func (p *Packager) ResolveStore(ctx context.Context, pt domain.ProjectType, domainID int64, nodeID int, target domain.Node) (*StoreTarget, error) {
	const op = "packager.ResolveStore"

	if domainID == 0 {
		return &StoreTarget{}, nil
	}
	if nodeID == 0 {
		nodeID = 1
	}

	d, err := p.domains.FindByID(ctx, domainID)
	if err != nil {
		return nil, notFound(err, op, "domain not found")
	}
	if !pt.UsesConfigStore() {
		return &StoreTarget{Domain: d}, nil
	}

	name := d.Name
	if target == domain.NodePre {
		name += ".pre"
	}
	key := domain.DomainKey{Path: d.Path, Name: name, Host: d.Host, Environment: target, NodeID: nodeID}
	if _, err := p.domains.FindByKey(ctx, key); err != nil {
		if !errors.Is(err, domain.ErrDomainNotFound) {
			return nil, lperrors.InternalWrap(err, op, "failed to look up domain binding")
		}
		binding := *d
		binding.ID = 0
		binding.Name = name
		binding.Environment = target
		binding.NodeID = nodeID
		if _, err := p.domains.Create(ctx, &binding); err != nil {
			return nil, lperrors.InternalWrap(err, op, "failed to create domain binding")
		}
		p.logger.Info("created domain binding", "name", name, "host", d.Host, "environment", target, "node", nodeID)
	}

	env := target.RequestEnv()
	tenant := fmt.Sprintf("%s-%d-%s", env, nodeID, d.StoreTenant)
	namespace, found, err := p.store.LookupNamespace(ctx, env, tenant)
	if err != nil {
		return nil, lperrors.DependencyWrap(err, op, "failed to look up config-store namespace")
	}
	if !found {
		if namespace, err = p.store.UpsertNamespace(ctx, env, tenant); err != nil {
			return nil, lperrors.DependencyWrap(err, op, "failed to create config-store namespace")
		}
	}

	return &StoreTarget{
		Domain: d,
		Binding: &domain.ConfigStoreBinding{
			StoreCoordinates: domain.StoreCoordinates{
				URL:    p.settings.ConfigStoreURLs[env],
				Group:  d.StoreGroup,
				Tenant: namespace,
				DataID: d.StoreDataID + ".html",
			},
			NodeID:    nodeID,
			Namespace: tenant,
		},
	}, nil
}

// Package builds the builder payload for a created task.
func (p *Packager) Package(ctx context.Context, pc *PackageContext) (Payload, error) {
	payload, err := p.basePayload(pc)
	if err != nil {
		return nil, err
	}
	for _, s := range strategiesFor(pc) {
		if err := s.apply(ctx, p, pc, payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func (p *Packager) basePayload(pc *PackageContext) (Payload, error) {
	project, task := pc.Project, pc.Task

	storeSettings := project.ConfigStore
	if pc.Configuration != nil && len(pc.Configuration.ConfigStore) > 0 {
		storeSettings = pc.Configuration.ConfigStore
	}
	storeJSON, err := json.Marshal(storeSettings)
	if err != nil {
		return nil, fmt.Errorf("encoding config-store settings: %w", err)
	}
	image := p.settings.Images[task.ProjectType]
	if pc.Configuration != nil && pc.Configuration.BuilderImage != "" {
		image = pc.Configuration.BuilderImage
	}
	shield, err := json.Marshal(Manifest{Name: project.Name, RemoteApps: map[string]string{}})
	if err != nil {
		return nil, err
	}

	name := project.Name
	if task.ProjectType.IsPackage() {
		name = project.PackageName
	}

	payload := Payload{
		"DEPLOY_CONFIG":     deployConfig(pc.Configuration, project),
		"NACOS_CONFIG":      string(storeJSON),
		"PROJECT_GIT_PATH":  project.GitPath(),
		"PROJECT_NAME":      name,
		"PROJECT_VERSION":   task.Version,
		"BRANCH_NAME":       task.Branch,
		"CACHE":             strconv.FormatBool(pc.Cache),
		"PIPELINE_STEPS":    `{"dependencies":true,"build":true,"test":false,"deploy":true}`,
		"PROJECT_ID":        strconv.FormatInt(project.ID, 10),
		"COMMITS_SHA":       "",
		"DEPLOY_ENV":        string(pc.requestEnv()),
		"DOCKER_PUBLISHER":  image,
		"USER_EMAIL":        pc.User.Email,
		"NAMESPACE":         project.GitNamespace + "/" + project.Name,
		"TASK_ID":           strconv.FormatInt(int64(task.ID), 10),
		"ARCHIVE_USER":      pc.User.Name,
		"DESC":              task.Description,
		"SHIELD_WEB_CONFIG": string(shield),
	}
	if pc.External {
		payload["RESOURCE"] = "external"
		payload["EXTRA"] = pc.Extra
		if payload["EXTRA"] == "" {
			payload["EXTRA"] = "{}"
		}
	}
	return payload, nil
}

func (configStoreStrategy) apply(_ context.Context, _ *Packager, pc *PackageContext, payload Payload) error {
	if pc.Store == nil || pc.Store.Binding == nil {
		return nil
	}
	data, err := json.Marshal(pc.Store.Binding.StoreCoordinates)
	if err != nil {
		return fmt.Errorf("encoding config-store coordinates: %w", err)
	}
	payload["NACOS_CONFIG"] = string(data)
	return nil
}

// channelPayload is the signed third-party channel document.
type channelPayload struct {
	TaskID    domain.TaskID              `json:"taskId"`
	ProjectID int64                      `json:"projectId"`
	Exts      []domain.ThirdPartyAccount `json:"exts"`
}

func (thirdPartyStrategy) apply(ctx context.Context, p *Packager, pc *PackageContext, payload Payload) error {
	const op = "packager.thirdParty"

	accounts, err := p.thirdParty.FindByIDs(ctx, pc.ThirdPartyIDs, pc.Project.ID, pc.Task.Environment.Normalize())
	if err != nil {
		return lperrors.InternalWrap(err, op, "failed to load third-party accounts")
	}
	if len(accounts) == 0 {
		return lperrors.Validation(op, MsgThirdPartyRequired)
	}
	token, err := p.tokens.ThirdPartyToken(ctx)
	if err != nil {
		return lperrors.DependencyWrap(err, op, "failed to read third-party access token")
	}
	creds, err := pc.Configuration.ResolveCredentials(pc.Project)
	if err != nil {
		return lperrors.Validation(op, err.Error())
	}

	doc, err := json.Marshal(channelPayload{TaskID: pc.Task.ID, ProjectID: pc.Project.ID, Exts: accounts})
	if err != nil {
		return fmt.Errorf("encoding channel payload: %w", err)
	}

	payload["WEAPP3RD_ACCESS_TOKEN"] = token
	payload["T_CONFIG"] = string(doc)
	payload["T_CONFIG_SIGNATURE"] = signPayload(p.settings.ThirdPartySecret, doc)
	payload["WEAPP_KEY"] = creds.SecretToken
	payload["MP_APPID"] = creds.AppID
	return nil
}

// signPayload returns the hex HMAC-SHA256 of doc, or "" without a secret.
func signPayload(secret string, doc []byte) string {
	if secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(doc)
	return hex.EncodeToString(mac.Sum(nil))
}

func (microFrontendStrategy) apply(ctx context.Context, p *Packager, pc *PackageContext, payload Payload) error {
	m, h, err := p.buildManifest(ctx, pc)
	if err != nil {
		return err
	}
	if err := p.history.Append(ctx, h); err != nil {
		return lperrors.InternalWrap(err, "packager.microFrontend", "failed to append deploy history")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	payload["SHIELD_WEB_CONFIG"] = string(data)
	return nil
}

// buildManifest resolves each child module's published asset and returns the
// manifest with the history row recording it.
func (p *Packager) buildManifest(ctx context.Context, pc *PackageContext) (*Manifest, *domain.DeployHistory, error) {
	const op = "packager.buildManifest"

	env := pc.requestEnv()
	m := &Manifest{Name: pc.Project.Name, RemoteApps: make(map[string]string, len(pc.MicroModules))}
	if d := pc.domain(); d != nil && json.Valid([]byte(d.MicroConfig)) {
		m.Config = json.RawMessage(d.MicroConfig)
	}

	for _, mod := range pc.MicroModules {
		child, err := p.projects.FindByID(ctx, mod.ProjectID)
		if err != nil {
			return nil, nil, notFound(err, op, fmt.Sprintf("module project %d not found", mod.ProjectID))
		}
		childIt, err := p.iterations.FindByID(ctx, mod.IterationID)
		if err != nil {
			return nil, nil, notFound(err, op, fmt.Sprintf("module iteration %d not found", mod.IterationID))
		}
		m.RemoteApps[child.Name] = p.settings.AssetURL(env, child.Name, childIt.Version)
	}

	h := newHistory(pc.Task, p.clock)
	h.MicroModules = pc.MicroModules
	return m, h, nil
}

// InjectOnly rewrites the live host document with the manifest instead of
// building, and records the resulting document as the task's artifact.
func (p *Packager) InjectOnly(ctx context.Context, pc *PackageContext) (*domain.DeployHistory, error) {
	const op = "packager.InjectOnly"

	if pc.Store == nil || pc.Store.Binding == nil {
		return nil, lperrors.Validation(op, "inject-only publishing requires a config-store domain")
	}
	m, _, err := p.buildManifest(ctx, pc)
	if err != nil {
		return nil, err
	}

	env := pc.requestEnv()
	at := pc.Store.Binding.StoreCoordinates
	html, err := p.store.RenderHTML(ctx, env, at)
	if err != nil {
		return nil, lperrors.DependencyWrap(err, op, "failed to read live document")
	}
	injected, err := InjectManifest(html, m)
	if err != nil {
		return nil, lperrors.Validation(op, err.Error())
	}
	if err := p.store.WriteHTML(ctx, env, at, injected); err != nil {
		return nil, lperrors.DependencyWrap(err, op, "failed to write live document")
	}
	return p.recorder.record(ctx, pc.Task, []byte(injected), pc.MicroModules)
}
