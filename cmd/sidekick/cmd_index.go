package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexcodex/sidekick/index"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Build the semantic index for the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			started := time.Now()
			chunks, err := index.ChunkCodebase(rt.root)
			if err != nil {
				return err
			}
			fmt.Println(noticeStyle.Render(fmt.Sprintf("embedding %d chunks with %s", len(chunks), rt.cfg.EmbedModel)))
			if err := rt.embeddings.IndexChunks(cmd.Context(), chunks); err != nil {
				return err
			}
			if err := rt.embeddings.Save(); err != nil {
				return err
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("indexed %d chunks in %s", rt.embeddings.ChunkCount(), time.Since(started).Round(time.Second))))
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the semantic index updated as files change",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			if !rt.embeddings.Ready() {
				return fmt.Errorf("no index to update, run `sidekick index` first")
			}

			watcher := index.NewWatcher(rt.root, rt.embeddings, time.Duration(rt.cfg.DebounceMs)*time.Millisecond)
			if err := watcher.Start(cmd.Context()); err != nil {
				return err
			}
			defer watcher.Stop()

			fmt.Println(noticeStyle.Render("watching " + rt.root + ", ctrl-c to stop"))
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			select {
			case <-stop:
			case <-cmd.Context().Done():
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index and workspace status",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			fmt.Println(headerStyle.Render("workspace ") + rt.root)
			fmt.Println(headerStyle.Render("model     ") + rt.cfg.Model + " via " + rt.cfg.Endpoint)
			if rt.embeddings.Ready() {
				fmt.Println(headerStyle.Render("index     ") + fmt.Sprintf("%d chunks, updated %s", rt.embeddings.ChunkCount(), rt.embeddings.UpdatedAt().Format(time.RFC822)))
			} else {
				fmt.Println(headerStyle.Render("index     ") + "not built")
			}

			idx, err := rt.service.Get(rt.root)
			if err != nil {
				return err
			}
			fmt.Println(headerStyle.Render("symbols   ") + idx.Summary)
			return nil
		},
	}
}
