package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/launchpad/internal/domain/publish/app"
	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/httpserver/dto"
)

// rollbacker restores and compares recorded production artifacts.
type rollbacker interface {
	Rollback(ctx context.Context, in app.RollbackInput) (*app.RollbackOutput, error)
	Diff(ctx context.Context, in app.DiffInput) (*app.DiffOutput, error)
}

// newRollbacker is replaced in tests.
var newRollbacker = func(ctx context.Context) (rollbacker, error) {
	a, err := openContainer(ctx)
	if err != nil {
		return nil, err
	}
	return a.Rollback(), nil
}

var rollbackOpts struct {
	projectID   int64
	projectType string
	version     string
	online      string
	domainID    int64
	nodeID      int
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore a recorded production artifact",
	Long: `Overwrite the live production document of a web or gateway project
with the HTML recorded for an earlier version. No build runs and no task
is created.`,
	RunE: runRollback,
}

var rollbackDiffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show the history rows of the online and rollback versions",
	RunE:  runRollbackDiff,
}

func init() {
	flags := rollbackCmd.PersistentFlags()
	flags.Int64Var(&rollbackOpts.projectID, "app", 0, "project id")
	flags.StringVar(&rollbackOpts.projectType, "type", "web", "project type (web or gateway)")
	flags.StringVar(&rollbackOpts.version, "version", "", "version to restore")
	flags.Int64Var(&rollbackOpts.domainID, "domain", 0, "gateway domain id")
	_ = rollbackCmd.MarkPersistentFlagRequired("app")
	_ = rollbackCmd.MarkPersistentFlagRequired("version")

	rollbackCmd.Flags().IntVar(&rollbackOpts.nodeID, "node", 0, "gateway config node id")
	rollbackDiffCmd.Flags().StringVar(&rollbackOpts.online, "online", "", "version currently live")
	_ = rollbackDiffCmd.MarkFlagRequired("online")

	rollbackCmd.AddCommand(rollbackDiffCmd)
}

func runRollback(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pt, err := domain.ParseProjectType(rollbackOpts.projectType)
	if err != nil {
		return err
	}

	svc, err := newRollbacker(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	out, err := svc.Rollback(ctx, app.RollbackInput{
		ProjectID:       rollbackOpts.projectID,
		ProjectType:     pt,
		RollbackVersion: rollbackOpts.version,
		DomainID:        rollbackOpts.domainID,
		NodeID:          rollbackOpts.nodeID,
	})
	if err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	if outputJSON {
		return writeJSON(cmd, dto.RollbackResponse{
			History: dto.NewHistoryDTO(out.History),
			Target:  out.Coordinates,
			Bytes:   out.Bytes,
		})
	}

	printSuccess(cmd, fmt.Sprintf("project %d rolled back to %s", rollbackOpts.projectID, rollbackOpts.version))
	printField(cmd, "task", out.History.TaskID)
	printField(cmd, "artifact", out.History.ArtifactURL)
	printField(cmd, "data id", out.Coordinates.DataID)
	printField(cmd, "group", out.Coordinates.Group)
	printField(cmd, "bytes", out.Bytes)
	return nil
}

func runRollbackDiff(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pt, err := domain.ParseProjectType(rollbackOpts.projectType)
	if err != nil {
		return err
	}

	svc, err := newRollbacker(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	out, err := svc.Diff(ctx, app.DiffInput{
		ProjectID:       rollbackOpts.projectID,
		ProjectType:     pt,
		OnlineVersion:   rollbackOpts.online,
		RollbackVersion: rollbackOpts.version,
		DomainID:        rollbackOpts.domainID,
	})
	if err != nil {
		return fmt.Errorf("diff failed: %w", err)
	}

	if outputJSON {
		return writeJSON(cmd, dto.DiffResponse{
			Online:   dto.NewHistoryDTO(out.Online),
			Rollback: dto.NewHistoryDTO(out.Rollback),
		})
	}

	printHistory(cmd, "online "+rollbackOpts.online, out.Online)
	printHistory(cmd, "rollback "+rollbackOpts.version, out.Rollback)
	return nil
}

func printHistory(cmd *cobra.Command, title string, h *domain.DeployHistory) {
	printTitle(cmd, title)
	if h == nil {
		printWarning(cmd, "no production deployment recorded")
		return
	}
	printField(cmd, "task", h.TaskID)
	printField(cmd, "artifact", h.ArtifactURL)
	printField(cmd, "deployed", h.CreatedAt.Format("2006-01-02 15:04:05"))
	for _, m := range h.MicroModules {
		printField(cmd, "module", fmt.Sprintf("project %d iteration %d", m.ProjectID, m.IterationID))
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
