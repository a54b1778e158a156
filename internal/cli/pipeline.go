package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewPipelineCmd создаёт группу команд для pipelines.
func NewPipelineCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Manage pipelines",
	}

	cmd.AddCommand(
		newPipelineListCmd(clientFn, outputFn),
		newPipelineStartCmd(clientFn, outputFn),
		newPipelineRunsCmd(clientFn, outputFn),
		newPipelineShowRunCmd(clientFn, outputFn),
	)

	return cmd
}

func newPipelineListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pipelines, err := client.ListPipelines()
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "STEPS", "ACTIVE"}
			rows := make([][]string, len(pipelines))
			for i, p := range pipelines {
				rows[i] = []string{p.ID, p.Name, strconv.Itoa(len(p.Steps)), yesNo(p.Active)}
			}

			out.Print(headers, rows, pipelines)
			return nil
		},
	}
}

func newPipelineStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var contextJSON string

	cmd := &cobra.Command{
		Use:   "start KEY",
		Short: "Start a pipeline by id or name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var initialContext map[string]any
			if contextJSON != "" {
				if err := json.Unmarshal([]byte(contextJSON), &initialContext); err != nil {
					return fmt.Errorf("invalid --context JSON: %w", err)
				}
			}

			pr, err := client.StartPipeline(args[0], initialContext)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Pipeline started: %s", pr.ID))
			out.Print(
				[]string{"ID", "PIPELINE_ID", "STATUS", "TOTAL_STEPS", "TRIGGER"},
				[][]string{{pr.ID, pr.PipelineID, pr.Status, strconv.Itoa(pr.TotalSteps), pr.Trigger}},
				pr,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&contextJSON, "context", "", "Initial context as JSON object")

	return cmd
}

func newPipelineRunsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListPipelineRuns(limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "PIPELINE_ID", "STATUS", "STEP", "TOTAL", "STARTED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{
					r.ID, r.PipelineID, r.Status,
					strconv.Itoa(r.CurrentStep), strconv.Itoa(r.TotalSteps),
					r.StartedAt,
				}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newPipelineShowRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show-run ID",
		Short: "Show pipeline run with steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pr, err := client.GetPipelineRun(args[0])
			if err != nil {
				return err
			}

			headers := []string{"STEP", "AGENT_ID", "STATUS", "DELAY_MIN", "SCHEDULED_FOR", "ERROR"}
			rows := make([][]string, len(pr.Steps))
			for i, s := range pr.Steps {
				rows[i] = []string{
					strconv.Itoa(s.StepIndex), s.AgentID, s.Status,
					strconv.Itoa(s.DelayMinutes), s.ScheduledFor, s.Error,
				}
			}

			out.Print(headers, rows, pr)
			return nil
		},
	}
}
