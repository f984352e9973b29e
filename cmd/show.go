package main

import (
	"fmt"
	"io"
	"strings"

	"site_watcher/internal/db"
	"site_watcher/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const shownItems = 3

func showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadDeps()
			if err != nil {
				return err
			}
			defer log.Sync()

			var store db.SnapshotStore
			if cfg.Store.Backend == "mongo" {
				m, err := db.NewMongoDB(cfg.Store.Mongo)
				if err != nil {
					return err
				}
				defer m.Close()
				store = m
			} else {
				store = db.NewFileSnapshotStore(cfg.Store.SnapshotFile)
			}

			snap, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			talkSnap, err := db.NewTalkStore(cfg.Store.TalkSnapshotFile).Load(cmd.Context())
			if err != nil {
				return err
			}

			renderSnapshot(cmd.OutOrStdout(), snap)
			renderTalk(cmd.OutOrStdout(), talkSnap)
			return nil
		},
	}
}

func renderSnapshot(w io.Writer, snap *models.Snapshot) {
	if snap == nil {
		fmt.Fprintln(w, "No page snapshot stored yet")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Page snapshot (%s)", snap.Shape())
	t.AppendHeader(table.Row{"Section", "Kind", "Value"})

	for _, label := range snap.Labels() {
		fp, _ := snap.Get(label)
		if fp.IsList() {
			t.AppendRow(table.Row{label, "items", summarizeItems(fp.Items)})
			continue
		}
		value := "(missing)"
		if fp.Hash != nil {
			value = *fp.Hash
			if len(value) > 16 {
				value = value[:16] + "…"
			}
		}
		t.AppendRow(table.Row{label, "hash", value})
	}
	t.Render()
}

func renderTalk(w io.Writer, snap *models.TalkSnapshot) {
	if snap == nil {
		fmt.Fprintln(w, "No talk snapshot stored yet")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Talk comments", "Latest"})
	latest := ""
	if n := len(snap.Comments); n > 0 {
		latest = snap.Comments[n-1]
	}
	t.AppendRow(table.Row{len(snap.Comments), latest})
	t.Render()
}

func summarizeItems(items []string) string {
	if len(items) <= shownItems {
		return fmt.Sprintf("%d: %s", len(items), strings.Join(items, ", "))
	}
	return fmt.Sprintf("%d: …, %s", len(items), strings.Join(items[len(items)-shownItems:], ", "))
}
