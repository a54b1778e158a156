package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewAgentCmd создаёт группу команд для управления воркерами.
func NewAgentCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage workers",
	}

	cmd.AddCommand(
		newAgentListCmd(clientFn, outputFn),
		newAgentShowCmd(clientFn, outputFn),
		newAgentRunCmd(clientFn, outputFn),
		newBlitzCmd(clientFn, outputFn),
		newStopAllCmd(clientFn, outputFn),
	)

	return cmd
}

func newAgentListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			agents, err := client.ListAgents()
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "STATUS", "DOMAIN", "TOTAL_RUNS", "LAST_RUN"}
			rows := make([][]string, len(agents))
			for i, a := range agents {
				rows[i] = []string{a.ID, a.Name, a.Status, a.Domain, strconv.Itoa(a.TotalRuns), a.LastRunAt}
			}

			out.Print(headers, rows, agents)
			return nil
		},
	}
}

func newAgentShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show worker details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			agent, err := client.GetAgent(args[0])
			if err != nil {
				return err
			}

			out.Details([][2]string{
				{"ID", agent.ID},
				{"Name", agent.Name},
				{"Status", agent.Status},
				{"Domain", agent.Domain},
				{"Total runs", strconv.Itoa(agent.TotalRuns)},
				{"Last run", agent.LastRunAt},
			}, agent)
			return nil
		},
	}
}

func newAgentRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "run ID",
		Short: "Run a worker manually",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.RunAgent(args[0], message)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run queued: %s", run.ID))
			out.Print(
				[]string{"ID", "AGENT_ID", "STATUS", "TRIGGER", "CREATED"},
				[][]string{{run.ID, run.AgentID, run.Status, run.Trigger, run.CreatedAt}},
				run,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&message, "message", "", "Message to send to the worker")
	cmd.MarkFlagRequired("message")

	return cmd
}

func newBlitzCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "blitz DOMAIN",
		Short: "Run all workers of a domain with one message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.Blitz(args[0], message)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Blitz queued: %d runs", len(runs)))

			headers := []string{"ID", "AGENT_ID", "STATUS", "TRIGGER"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{r.ID, r.AgentID, r.Status, r.Trigger}
			}
			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&message, "message", "", "Message to send to each worker")
	cmd.MarkFlagRequired("message")

	return cmd
}

func newStopAllCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stop-all",
		Short: "Kill all active worker sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			killed, err := client.StopAll()
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Sessions killed: %d", killed))
			return nil
		},
	}
}
