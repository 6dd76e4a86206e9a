package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/watzon/cadence/internal/database"
	"github.com/watzon/cadence/internal/executions"
	"github.com/watzon/cadence/internal/policy"
	"github.com/watzon/cadence/internal/runner"
	"github.com/watzon/cadence/internal/schedules"
)

const schedulesTableWidth = 110

var (
	importPrune     bool
	listTenant      string
	listOutput      string
	historyLimit    int
	historyDecision bool
)

var schedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "Manage stored schedules",
	Long: `Manage the schedules stored in the database.

Commands:
  import   Sync schedules from a YAML manifest
  list     List schedules and their last decision
  history  Show recent decisions or executions of a schedule
  delete   Delete a schedule`,
}

var importCmd = &cobra.Command{
	Use:   "import <manifest>",
	Short: "Sync schedules from a manifest",
	Long: `Create or update every schedule listed in the manifest. The manifest is
validated as a whole first; nothing is written when any entry is invalid.

With --prune, schedules of the manifest's tenants that the manifest no
longer lists are deleted.

Examples:
  cadence schedules import schedules.yaml
  cadence schedules import schedules.yaml --prune`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedules",
	RunE:  runList,
}

var historyCmd = &cobra.Command{
	Use:   "history <tenant>/<name>",
	Short: "Show recent executions of a schedule",
	Long: `Show the most recent executions of a schedule, newest first. With
--decisions, show every audited decision instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <tenant>/<name>",
	Short: "Delete a schedule and its history",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	importCmd.Flags().BoolVar(&importPrune, "prune", false, "delete schedules missing from the manifest")

	listCmd.Flags().StringVar(&listTenant, "tenant", "", "only list schedules of this tenant")
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "output format (table, json, yaml)")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show")
	historyCmd.Flags().BoolVar(&historyDecision, "decisions", false, "show audited decisions instead of executions")

	schedulesCmd.AddCommand(importCmd, listCmd, historyCmd, deleteCmd)
	rootCmd.AddCommand(schedulesCmd)
}

func openDB() (*database.DB, error) {
	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	manifest, err := schedules.LoadManifest(args[0])
	if err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := schedules.NewStore(db).Sync(cmd.Context(), manifest, schedules.SyncOptions{Prune: importPrune})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Synced %s: %d created, %d updated, %d deleted\n",
		args[0], len(result.Created), len(result.Updated), len(result.Deleted))
	printKeys(out, "+", result.Created)
	printKeys(out, "~", result.Updated)
	printKeys(out, "-", result.Deleted)
	return nil
}

func printKeys(w io.Writer, marker string, keys []string) {
	for _, key := range keys {
		fmt.Fprintf(w, "  %s %s\n", marker, key)
	}
}

// scheduleListing is the document form of one list row.
type scheduleListing struct {
	ID             string                `json:"id" yaml:"id"`
	Definition     policy.DefinitionSpec `json:"definition" yaml:"definition"`
	Policy         policy.PolicySpec     `json:"policy" yaml:"policy"`
	LastEvaluated  *time.Time            `json:"lastEvaluatedAt,omitempty" yaml:"lastEvaluatedAt,omitempty"`
	LastBlockedBy  policy.BlockReason    `json:"lastBlockedBy,omitempty" yaml:"lastBlockedBy,omitempty"`
	NextEligibleAt *time.Time            `json:"nextEligibleAt,omitempty" yaml:"nextEligibleAt,omitempty"`
	TriggerCount   int                   `json:"triggerCount" yaml:"triggerCount"`
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	list, err := schedules.NewStore(db).List(ctx, schedules.ListOptions{TenantID: listTenant})
	if err != nil {
		return err
	}
	states, err := runner.NewStateStore(db).List(ctx)
	if err != nil {
		return err
	}

	rows := make([]scheduleListing, 0, len(list))
	for _, s := range list {
		row := scheduleListing{
			ID:         s.ID,
			Definition: s.Definition.Spec(),
			Policy:     s.Policy.Spec(),
		}
		if st := states[s.ID]; st != nil {
			row.LastEvaluated = st.LastEvaluatedAt
			row.LastBlockedBy = st.LastBlockedBy
			row.NextEligibleAt = st.NextEligibleAt
			row.TriggerCount = st.TriggerCount
		}
		rows = append(rows, row)
	}

	out := cmd.OutOrStdout()
	if listOutput != "table" {
		return writeDocument(out, listOutput, rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(out, "No schedules found.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Import some with:")
		fmt.Fprintln(out, "  cadence schedules import <manifest>")
		return nil
	}

	fmt.Fprintf(out, "%-32s %-9s %-8s %-16s %-22s %s\n", "SCHEDULE", "TYPE", "ENABLED", "LAST", "NEXT ELIGIBLE", "TRIGGERS")
	fmt.Fprintln(out, strings.Repeat("-", schedulesTableWidth))
	for _, row := range rows {
		last := "never"
		if row.LastEvaluated != nil {
			last = "triggered"
			if row.LastBlockedBy != policy.BlockedByNone {
				last = string(row.LastBlockedBy)
			}
		}
		next := "-"
		if row.NextEligibleAt != nil {
			next = row.NextEligibleAt.UTC().Format("2006-01-02 15:04 MST")
		}
		enabled := row.Definition.Enabled == nil || *row.Definition.Enabled

		fmt.Fprintf(out, "%-32s %-9s %-8t %-16s %-22s %d\n",
			row.Definition.TenantID+"/"+row.Definition.Name, row.Definition.Type, enabled, last, next, row.TriggerCount)
	}
	return nil
}

// lookupSchedule resolves "<tenant>/<name>".
func lookupSchedule(ctx context.Context, store *schedules.Store, key string) (*schedules.Schedule, error) {
	tenant, name, ok := strings.Cut(key, "/")
	if !ok || tenant == "" || name == "" {
		return nil, fmt.Errorf("expected <tenant>/<name>, got %q", key)
	}

	schedule, err := store.GetByName(ctx, tenant, name)
	if errors.Is(err, schedules.ErrNotFound) {
		return nil, fmt.Errorf("schedule %s not found", key)
	}
	return schedule, err
}

func runHistory(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	schedule, err := lookupSchedule(ctx, schedules.NewStore(db), args[0])
	if err != nil {
		return err
	}

	store := executions.NewStore(db)
	out := cmd.OutOrStdout()

	if historyDecision {
		records, err := store.ListDecisions(ctx, executions.DecisionListOptions{ScheduleID: schedule.ID, Limit: historyLimit})
		if err != nil {
			return err
		}
		for _, rec := range records {
			outcome := "TRIGGER"
			if !rec.Decision.ShouldTrigger {
				outcome = string(rec.Decision.BlockedBy)
			}
			dry := ""
			if rec.DryRun {
				dry = " (dry run)"
			}
			fmt.Fprintf(out, "%s  %-13s %s%s\n",
				rec.Decision.EvaluatedAt.UTC().Format(time.RFC3339), outcome, rec.Decision.Reason, dry)
		}
		return nil
	}

	execs, err := store.List(ctx, executions.ListOptions{ScheduleID: schedule.ID, Limit: historyLimit})
	if err != nil {
		return err
	}
	if len(execs) == 0 {
		fmt.Fprintf(out, "%s has never triggered.\n", schedule.Key())
		return nil
	}
	for _, e := range execs {
		fmt.Fprintf(out, "%s  %-10s %s\n", e.TriggeredAt.UTC().Format(time.RFC3339), e.Status, e.ID)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	store := schedules.NewStore(db)
	schedule, err := lookupSchedule(cmd.Context(), store, args[0])
	if err != nil {
		return err
	}
	if err := store.Delete(cmd.Context(), schedule.ID); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", schedule.Key())
	return nil
}
