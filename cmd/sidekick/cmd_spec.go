package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexcodex/sidekick/agents"
	"github.com/lexcodex/sidekick/persistence"
)

func newSpecCmd() *cobra.Command {
	spec := &cobra.Command{
		Use:   "spec",
		Short: "Staged feature workflow: requirements, design, tasks, implementation",
	}
	spec.AddCommand(
		newSpecInitCmd(),
		newSpecStageCmd("requirements", "Generate the requirements stage"),
		newSpecStageCmd("design", "Generate the design stage"),
		newSpecStageCmd("tasks", "Generate the implementation task list"),
		newSpecNextCmd(),
		newSpecAutoCmd(),
		newSpecStatusCmd(),
	)
	return spec
}

func buildWorkflow(cmd *cobra.Command, implementing bool) (*agents.SpecWorkflow, *runtime, error) {
	rt, err := buildRuntime(cmd)
	if err != nil {
		return nil, nil, err
	}
	workflow := &agents.SpecWorkflow{
		Model: rt.model,
		Loop: rt.loop(implementing, func(msg string) {
			fmt.Println(noticeStyle.Render(msg))
		}),
		Store: persistence.NewSpecStore(rt.root),
		Root:  rt.root,
		Progress: func(msg string) {
			fmt.Println(noticeStyle.Render(msg))
		},
	}
	return workflow, rt, nil
}

func newSpecInitCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "init <title>",
		Short: "Start a new spec document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflow, _, err := buildWorkflow(cmd, false)
			if err != nil {
				return err
			}
			doc, err := workflow.Create(strings.Join(args, " "), description)
			if err != nil {
				return err
			}
			fmt.Println(successStyle.Render("created spec " + doc.ID + ": " + doc.Title))
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "What the feature should do; may embed #[[file:path]] references")
	return cmd
}

func newSpecStageCmd(stage, short string) *cobra.Command {
	return &cobra.Command{
		Use:   stage + " <spec-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflow, _, err := buildWorkflow(cmd, false)
			if err != nil {
				return err
			}
			doc, err := workflow.Store.Load(args[0])
			if err != nil {
				return err
			}
			switch stage {
			case "requirements":
				err = workflow.GenerateRequirements(cmd.Context(), doc)
			case "design":
				err = workflow.GenerateDesign(cmd.Context(), doc)
			case "tasks":
				err = workflow.GenerateTasks(cmd.Context(), doc)
			}
			if err != nil {
				return err
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("spec %s is now at %s", doc.ID, doc.Status)))
			return nil
		},
	}
}

func newSpecNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next <spec-id>",
		Short: "Implement the next pending task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflow, rt, err := buildWorkflow(cmd, true)
			if err != nil {
				return err
			}
			defer rt.processes.StopAll()
			if workflow.Loop.Diagnostics != nil {
				defer workflow.Loop.Diagnostics.Close()
			}
			doc, err := workflow.Store.Load(args[0])
			if err != nil {
				return err
			}
			task, err := workflow.Next(cmd.Context(), doc)
			if err != nil {
				return err
			}
			fmt.Println(successStyle.Render("completed task " + task.ID + ": " + task.Title))
			return nil
		},
	}
}

func newSpecAutoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auto <spec-id>",
		Short: "Implement all runnable pending tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflow, rt, err := buildWorkflow(cmd, true)
			if err != nil {
				return err
			}
			defer rt.processes.StopAll()
			if workflow.Loop.Diagnostics != nil {
				defer workflow.Loop.Diagnostics.Close()
			}
			doc, err := workflow.Store.Load(args[0])
			if err != nil {
				return err
			}
			plan, err := workflow.Auto(cmd.Context(), doc)
			if err != nil {
				return err
			}
			fmt.Println(headerStyle.Render(plan.Summary()))
			fmt.Println(successStyle.Render(fmt.Sprintf("spec %s is now at %s", doc.ID, doc.Status)))
			return nil
		},
	}
}

func newSpecStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List spec documents and their progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			workflow, _, err := buildWorkflow(cmd, false)
			if err != nil {
				return err
			}
			docs, err := workflow.Store.List()
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Println(noticeStyle.Render("no specs yet, start one with `sidekick spec init`"))
				return nil
			}
			for _, doc := range docs {
				done := 0
				for _, task := range doc.Tasks {
					if task.Status == persistence.TaskDone || task.Status == persistence.TaskSkipped {
						done++
					}
				}
				fmt.Printf("%s %s  %s", headerStyle.Render(doc.ID), doc.Title, string(doc.Status))
				if len(doc.Tasks) > 0 {
					fmt.Printf("  %d/%d tasks", done, len(doc.Tasks))
				}
				fmt.Println()
			}
			return nil
		},
	}
}
