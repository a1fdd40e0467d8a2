package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent <goal>",
		Short: "Run one autonomous multi-step task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			goal := strings.Join(args, " ")
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.processes.StopAll()

			loop := rt.loop(true, func(msg string) {
				fmt.Println(noticeStyle.Render(msg))
			})
			if loop.Diagnostics != nil {
				defer loop.Diagnostics.Close()
			}

			plan, err := loop.Run(cmd.Context(), goal)
			if err != nil {
				return err
			}
			for _, step := range plan.Steps {
				marker := successStyle.Render("done   ")
				switch step.Status {
				case "failed":
					marker = errStyle.Render("failed ")
				case "pending":
					marker = noticeStyle.Render("pending")
				case "skipped":
					marker = noticeStyle.Render("skipped")
				}
				fmt.Printf("%s %s: %s\n", marker, step.ID, step.Description)
				if step.Error != "" {
					fmt.Println(errStyle.Render("        " + step.Error))
				}
			}
			fmt.Println(headerStyle.Render(plan.Summary()))
			if plan.Status != "done" {
				return errors.New("agent run did not complete")
			}
			return nil
		},
	}
}
