package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/watzon/cadence/internal/policy"
)

var (
	evalFile   string
	evalNow    string
	evalOutput string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a schedule offline",
	Long: `Evaluate a schedule definition, policy and execution history and print the
decision. Nothing is read from or written to the database.

The input document (YAML or JSON) has three keys:

  definition:  {tenantId, name, type, timezone, enabled, config}
  policy:      {excludedDates, excludedDaysOfWeek, allowedTimeWindows,
                cooldownPeriodMs, maxExecutionsPerWindow, skipMissed}
  context:     {now, executionHistory: {lastExecutionAt,
                executionsInWindow, recentExecutions}}

Examples:
  cadence evaluate -f request.yaml
  cadence evaluate -f request.yaml --now 2024-01-15T09:30:00Z -o json
  cat request.json | cadence evaluate -f -`,
	RunE: runEvaluate,
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Project when a schedule is next eligible",
	Long: `Print the next instant the schedule in the input document becomes eligible,
ignoring blackout, window, cooldown and limit policies. Accepts the same
document as evaluate.`,
	RunE: runNext,
}

func init() {
	for _, cmd := range []*cobra.Command{evaluateCmd, nextCmd} {
		cmd.Flags().StringVarP(&evalFile, "file", "f", "", "input document, - for stdin")
		cmd.Flags().StringVar(&evalNow, "now", "", "evaluation time (RFC 3339), overrides context.now")
		cmd.Flags().StringVarP(&evalOutput, "output", "o", "yaml", "output format (json, yaml)")
		_ = cmd.MarkFlagRequired("file")
		rootCmd.AddCommand(cmd)
	}
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	req, err := readRequest(cmd.InOrStdin(), evalFile, evalNow)
	if err != nil {
		return err
	}

	decision, err := policy.NewService().EvaluateRequest(req)
	if err != nil {
		return err
	}

	return writeDocument(cmd.OutOrStdout(), evalOutput, decision)
}

func runNext(cmd *cobra.Command, args []string) error {
	req, err := readRequest(cmd.InOrStdin(), evalFile, evalNow)
	if err != nil {
		return err
	}

	next, err := policy.NewService().NextEligibleRequest(req)
	if err != nil {
		return err
	}

	return writeDocument(cmd.OutOrStdout(), evalOutput, map[string]*time.Time{
		"nextEligibleAt": next,
	})
}

// readRequest decodes an evaluation document. A missing context.now is
// filled from now, or the current time when now is empty.
func readRequest(stdin io.Reader, path, now string) (policy.Request, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return policy.Request{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var req policy.Request
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return policy.Request{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	switch {
	case now != "":
		t, err := time.Parse(time.RFC3339, now)
		if err != nil {
			return policy.Request{}, fmt.Errorf("invalid --now: %w", err)
		}
		req.Context.Now = t
	case req.Context.Now.IsZero():
		req.Context.Now = time.Now().UTC()
	}

	return req, nil
}
