package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lectern/agent"
	"lectern/config"
	"lectern/streamers/cli"
)

var (
	taskConfigPath string
	taskOwner      string
	taskID         string
	taskMode       string
	taskObjective  string
	taskItems      []string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Run and inspect batch tasks",
}

var taskRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a batch task over project items",
	Long: `Run a batch task: the objective is applied to every item id in
--items, checkpointing after each one. Re-running with the same --id
resumes, skipping items that already completed.`,
	Run: func(cmd *cobra.Command, args []string) {
		runTask()
	},
}

var taskResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume an interrupted batch task",
	Run: func(cmd *cobra.Command, args []string) {
		runTask()
	},
}

var taskStatusCmd = &cobra.Command{
	Use:   "status [task_id]",
	Short: "Show the persisted state of a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		engine := buildEngine()
		defer engine.Close()

		state, err := engine.TaskStatus(taskOwner, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if state == nil {
			fmt.Printf("Task '%s' not found for owner '%s'\n", args[0], taskOwner)
			return
		}

		fmt.Printf("Task:      %s\n", state.TaskID)
		fmt.Printf("Type:      %s\n", state.TaskType)
		fmt.Printf("Status:    %s\n", state.Status)
		fmt.Printf("Phase:     %s\n", state.CurrentPhase)
		fmt.Printf("Completed: %d/%d\n", len(state.CompletedItemIDs), state.TotalItems)
		if len(state.FailedItems) > 0 {
			fmt.Println("Failed items:")
			for id, reason := range state.FailedItems {
				fmt.Printf("  %s: %s\n", id, reason)
			}
		}
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the owner's tasks",
	Run: func(cmd *cobra.Command, args []string) {
		engine := buildEngine()
		defer engine.Close()

		states, err := engine.Tasks(taskOwner)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TASK\tSTATUS\tPHASE\tDONE\tFAILED")
		for _, s := range states {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\n",
				s.TaskID, s.Status, s.CurrentPhase, len(s.CompletedItemIDs), s.TotalItems, len(s.FailedItems))
		}
		w.Flush()
	},
}

func buildEngine() *agent.Engine {
	cfg, err := config.LoadAndValidate(taskConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	engine, err := agent.NewEngine(context.Background(), agent.EngineOptions{Config: cfg})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return engine
}

func runTask() {
	ctx := context.Background()
	engine := buildEngine()
	defer engine.Close()

	handler := cli.NewTaskHandler()
	result, err := engine.RunTask(ctx, taskID, taskOwner, taskMode, taskObjective, taskItems, handler)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(result.Summary)
	if result.Partial {
		os.Exit(2)
	}
}

func init() {
	for _, c := range []*cobra.Command{taskRunCmd, taskResumeCmd, taskStatusCmd, taskListCmd} {
		c.Flags().StringVarP(&taskConfigPath, "config", "c", ".", "Path to config file or directory")
		c.Flags().StringVar(&taskOwner, "owner", "", "Owner identity the task runs as")
		c.MarkFlagRequired("owner")
	}

	for _, c := range []*cobra.Command{taskRunCmd, taskResumeCmd} {
		c.Flags().StringVar(&taskID, "id", "", "Task id (reuse to resume)")
		c.Flags().StringVar(&taskMode, "mode", "", "Batch mode to run")
		c.Flags().StringVar(&taskObjective, "objective", "", "Objective applied to each item")
		c.Flags().StringSliceVar(&taskItems, "items", nil, "Item ids to process")
		c.MarkFlagRequired("id")
		c.MarkFlagRequired("mode")
		c.MarkFlagRequired("objective")
		c.MarkFlagRequired("items")
	}

	taskCmd.AddCommand(taskRunCmd, taskResumeCmd, taskStatusCmd, taskListCmd)
	rootCmd.AddCommand(taskCmd)
}
