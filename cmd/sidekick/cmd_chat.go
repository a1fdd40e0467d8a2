package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexcodex/sidekick/agents"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive assistant session in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.processes.StopAll()

			steering, err := agents.LoadSteering(rt.root)
			if err != nil {
				return err
			}
			session := agents.NewSession(rt.model, rt.executor, rt.selector())
			session.Steering = steering
			session.HistoryBudget = rt.cfg.HistoryBudget

			fmt.Println(headerStyle.Render("sidekick") + noticeStyle.Render("  model "+rt.cfg.Model+"  workspace "+rt.root))
			if !rt.embeddings.Ready() {
				fmt.Println(noticeStyle.Render("no semantic index yet, run `sidekick index` for better context"))
			}
			fmt.Println(noticeStyle.Render("commands: /open <file>  /undo [file]  /agent <goal>  /quit"))

			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for {
				fmt.Print(promptStyle.Render("> "))
				if !scanner.Scan() {
					return scanner.Err()
				}
				input := strings.TrimSpace(scanner.Text())
				if input == "" {
					continue
				}
				if strings.HasPrefix(input, "/") {
					if quit := runSlashCommand(cmd, rt, session, input); quit {
						return nil
					}
					continue
				}

				reply, err := session.Turn(cmd.Context(), input)
				if err != nil {
					// Model outages and bad responses stay inside the loop.
					fmt.Println(errStyle.Render("error: " + err.Error()))
					continue
				}
				fmt.Println(replyStyle.Render(reply))
			}
		},
	}
}

// runSlashCommand handles one /command; returns true on /quit.
func runSlashCommand(cmd *cobra.Command, rt *runtime, session *agents.Session, input string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/open":
		if len(fields) < 2 {
			fmt.Println(errStyle.Render("usage: /open <file>"))
			return false
		}
		session.OpenFile(fields[1])
		fmt.Println(noticeStyle.Render("opened " + fields[1]))
	case "/undo":
		path := ""
		if len(fields) > 1 {
			path = fields[1]
		}
		snap, err := rt.snapshots.UndoLast(path)
		if err != nil {
			fmt.Println(errStyle.Render("undo: " + err.Error()))
			return false
		}
		fmt.Println(successStyle.Render("reverted " + snap.Path))
	case "/agent":
		if len(fields) < 2 {
			fmt.Println(errStyle.Render("usage: /agent <goal>"))
			return false
		}
		goal := strings.TrimSpace(strings.TrimPrefix(input, "/agent"))
		loop := rt.loop(true, func(msg string) {
			fmt.Println(noticeStyle.Render(msg))
		})
		plan, err := loop.Run(cmd.Context(), goal)
		if loop.Diagnostics != nil {
			loop.Diagnostics.Close()
		}
		if err != nil {
			fmt.Println(errStyle.Render("agent: " + err.Error()))
			return false
		}
		session.AddNote(plan.Summary())
		fmt.Println(successStyle.Render(plan.Summary()))
	default:
		fmt.Println(errStyle.Render("unknown command " + fields[0]))
	}
	return false
}
