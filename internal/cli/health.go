package cli

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/launchpad/internal/infrastructure/artifact"
	"github.com/relicta-tech/launchpad/internal/infrastructure/persistence/postgres"
	"github.com/relicta-tech/launchpad/internal/infrastructure/redisstore"
)

// HealthStatus represents the overall health status.
type HealthStatus string

const (
	// HealthStatusHealthy indicates all checks passed.
	HealthStatusHealthy HealthStatus = "healthy"
	// HealthStatusDegraded indicates some non-critical checks failed.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusUnhealthy indicates critical checks failed.
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name    string            `json:"name"`
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
	Latency time.Duration     `json:"latency_ms,omitempty"`
}

// HealthReport contains the full health check results.
type HealthReport struct {
	Status      HealthStatus      `json:"status"`
	Version     string            `json:"version"`
	Timestamp   time.Time         `json:"timestamp"`
	Components  []ComponentHealth `json:"components"`
	Environment map[string]string `json:"environment,omitempty"`
}

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code   int
	Status HealthStatus
}

func (e *ExitError) Error() string {
	return "health status " + string(e.Status)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check launchpad's configuration and backing services",
	Long: `Check the configuration and connect to every configured backing
service: PostgreSQL storage, Redis and the artifact bucket.

Exit codes:
  0 - All checks passed (healthy)
  1 - Some non-critical checks failed (degraded)
  2 - Critical checks failed (unhealthy)`,
	RunE: runHealth,
}

type healthCheck struct {
	name     string
	check    func(context.Context) ComponentHealth
	critical bool
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	report := buildHealthReport(ctx, []healthCheck{
		{"config", checkConfig, false},
		{"storage", checkStorage, true},
		{"redis", checkRedis, false},
		{"artifacts", checkArtifacts, false},
	})

	if outputJSON {
		if err := writeJSON(cmd, report); err != nil {
			return err
		}
	} else {
		outputHealthText(cmd, report)
	}
	return healthExit(report.Status)
}

func buildHealthReport(ctx context.Context, checks []healthCheck) *HealthReport {
	report := &HealthReport{
		Status:     HealthStatusHealthy,
		Version:    versionInfo.Version,
		Timestamp:  time.Now().UTC(),
		Components: make([]ComponentHealth, 0, len(checks)),
		Environment: map[string]string{
			"go_version": runtime.Version(),
			"os":         runtime.GOOS,
			"arch":       runtime.GOARCH,
		},
	}

	for _, c := range checks {
		health := c.check(ctx)
		health.Name = c.name
		report.Components = append(report.Components, health)

		switch {
		case health.Status == HealthStatusUnhealthy && c.critical:
			report.Status = HealthStatusUnhealthy
		case health.Status != HealthStatusHealthy && report.Status == HealthStatusHealthy:
			report.Status = HealthStatusDegraded
		}
	}
	return report
}

func checkConfig(_ context.Context) ComponentHealth {
	health := ComponentHealth{
		Details: map[string]string{
			"address":  cfg.Server.Address,
			"warnings": strconv.Itoa(len(configWarnings)),
		},
	}
	if len(configWarnings) > 0 {
		health.Status = HealthStatusDegraded
		health.Message = configWarnings[0]
		return health
	}
	health.Status = HealthStatusHealthy
	health.Message = "configuration is valid"
	return health
}

func checkStorage(ctx context.Context) ComponentHealth {
	health := ComponentHealth{Details: map[string]string{"driver": cfg.Storage.Driver}}
	if cfg.Storage.Driver != "postgres" {
		health.Status = HealthStatusHealthy
		health.Message = "in-memory storage"
		return health
	}

	start := time.Now()
	db, err := postgres.Open(ctx, postgres.Config{
		URL:          cfg.Storage.DSN,
		MaxOpenConns: 1,
	})
	health.Latency = time.Since(start)
	if err != nil {
		health.Status = HealthStatusUnhealthy
		health.Message = err.Error()
		return health
	}
	_ = db.Close()

	health.Status = HealthStatusHealthy
	health.Message = "postgres reachable"
	return health
}

func checkRedis(ctx context.Context) ComponentHealth {
	health := ComponentHealth{Details: map[string]string{}}
	if !cfg.Redis.Enabled {
		health.Status = HealthStatusDegraded
		health.Message = "disabled: locks are process-local and third-party tokens are unavailable"
		return health
	}
	health.Details["addr"] = cfg.Redis.Addr

	start := time.Now()
	store, err := redisstore.New(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TokenKey: cfg.Redis.TokenKey,
	})
	health.Latency = time.Since(start)
	if err != nil {
		health.Status = HealthStatusUnhealthy
		health.Message = err.Error()
		return health
	}
	_ = store.Close()

	health.Status = HealthStatusHealthy
	health.Message = "redis reachable"
	return health
}

func checkArtifacts(ctx context.Context) ComponentHealth {
	health := ComponentHealth{Details: map[string]string{}}
	if !cfg.Artifacts.Enabled {
		health.Status = HealthStatusDegraded
		health.Message = "disabled: artifacts are kept in memory"
		return health
	}
	health.Details["bucket"] = cfg.Artifacts.Bucket

	store, err := artifact.New(artifact.Config{
		Endpoint:  cfg.Artifacts.Endpoint,
		AccessKey: cfg.Artifacts.AccessKey,
		SecretKey: cfg.Artifacts.SecretKey,
		Bucket:    cfg.Artifacts.Bucket,
		Region:    cfg.Artifacts.Region,
		UseSSL:    cfg.Artifacts.UseSSL,
	})
	if err != nil {
		health.Status = HealthStatusUnhealthy
		health.Message = err.Error()
		return health
	}

	start := time.Now()
	err = store.Ping(ctx)
	health.Latency = time.Since(start)
	if err != nil {
		health.Status = HealthStatusUnhealthy
		health.Message = err.Error()
		return health
	}

	health.Status = HealthStatusHealthy
	health.Message = "bucket reachable"
	return health
}

func outputHealthText(cmd *cobra.Command, report *HealthReport) {
	out := cmd.OutOrStdout()

	statusIcon := "?"
	switch report.Status {
	case HealthStatusHealthy:
		statusIcon = styles.Success.Render("healthy")
	case HealthStatusDegraded:
		statusIcon = styles.Warning.Render("degraded")
	case HealthStatusUnhealthy:
		statusIcon = styles.Error.Render("unhealthy")
	}

	fmt.Fprintf(out, "Health Status: %s\n", statusIcon)
	fmt.Fprintf(out, "Version: %s\n", report.Version)
	fmt.Fprintf(out, "Timestamp: %s\n\n", report.Timestamp.Format(time.RFC3339))

	fmt.Fprintln(out, styles.Bold.Render("Components:"))
	for _, c := range report.Components {
		icon := "?"
		switch c.Status {
		case HealthStatusHealthy:
			icon = styles.Success.Render("[OK]")
		case HealthStatusDegraded:
			icon = styles.Warning.Render("[WARN]")
		case HealthStatusUnhealthy:
			icon = styles.Error.Render("[FAIL]")
		}

		latencyStr := ""
		if c.Latency > 0 {
			latencyStr = fmt.Sprintf(" (%dms)", c.Latency.Milliseconds())
		}

		fmt.Fprintf(out, "  %s %s: %s%s\n", icon, c.Name, c.Message, latencyStr)

		if verbose {
			for k, v := range c.Details {
				fmt.Fprintf(out, "      %s: %s\n", k, styles.Info.Render(v))
			}
		}
	}

	if verbose {
		fmt.Fprintln(out, "\nEnvironment:")
		for k, v := range report.Environment {
			fmt.Fprintf(out, "  %s: %s\n", k, v)
		}
	}
}

func healthExit(status HealthStatus) error {
	switch status {
	case HealthStatusDegraded:
		return &ExitError{Code: 1, Status: status}
	case HealthStatusUnhealthy:
		return &ExitError{Code: 2, Status: status}
	}
	return nil
}
