package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dgallion1/zortex/internal/doctree"
	"github.com/dgallion1/zortex/internal/document"
	"github.com/dgallion1/zortex/internal/outline"
)

type inspectReport struct {
	Path     string            `json:"path"`
	Lines    int               `json:"lines"`
	Metadata document.Metadata `json:"metadata"`
	Outline  []outline.Entry   `json:"outline"`
	Tasks    []doctree.Task    `json:"tasks"`
}

type taskRow struct {
	Path string `json:"path"`
	doctree.Task
}

func newInspectCmd(f *flags) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print the outline, header and tasks of a note as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd, *f)
			if err != nil {
				return err
			}
			cfg.WatchFiles = false
			mgr, err := newManager(cfg, log, nil)
			if err != nil {
				return err
			}
			defer mgr.Close()

			doc, err := mgr.GetFile(args[0])
			if err != nil {
				return err
			}
			rep := inspectReport{
				Path:     doc.Path(),
				Metadata: doc.Metadata(),
				Tasks:    doc.Tasks(),
			}
			doc.View(func(root *doctree.Section, lines []string) {
				rep.Lines = len(lines)
				rep.Outline = outline.Build(root, lines, outline.Config{MaxDepth: depth})
			})
			return writeIndented(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "Deepest section nesting to list (0 for all)")
	return cmd
}

func newTasksCmd(f *flags) *cobra.Command {
	var (
		all    bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "tasks [dir]",
		Short: "List open tasks across the notes directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd, *f)
			if err != nil {
				return err
			}
			root := cfg.NotesDir
			if len(args) == 1 {
				root = args[0]
			}
			cfg.WatchFiles = false
			mgr, err := newManager(cfg, log, nil)
			if err != nil {
				return err
			}
			defer mgr.Close()

			var rows []taskRow
			stats, err := mgr.Scan(cmd.Context(), root, func(path string, doc *document.Document) error {
				for _, t := range doc.Tasks() {
					if all || !t.Completed {
						rows = append(rows, taskRow{Path: path, Task: t})
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			sort.SliceStable(rows, func(i, j int) bool {
				if rows[i].Path != rows[j].Path {
					return rows[i].Path < rows[j].Path
				}
				return rows[i].Line < rows[j].Line
			})
			if stats.Unavailable > 0 {
				log.Warn("some notes could not be read", "unavailable", stats.Unavailable)
			}
			if asJSON {
				return writeIndented(cmd.OutOrStdout(), rows)
			}
			return writeTaskList(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include completed tasks")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a task list")
	return cmd
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTaskList(w io.Writer, rows []taskRow) error {
	for _, r := range rows {
		box := " "
		if r.Completed {
			box = "x"
		}
		if _, err := fmt.Fprintf(w, "%s:%d [%s] %s  (%s)\n", r.Path, r.Line, box, r.Text, r.ID); err != nil {
			return err
		}
	}
	return nil
}
