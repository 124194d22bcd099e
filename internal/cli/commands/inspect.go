package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/restdecl/internal/cli/ui"
	"github.com/conduit-lang/restdecl/pkg/rest"
	"github.com/conduit-lang/restdecl/runtime/metadata"
)

func newInspectCommand(g *globals) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "inspect [definition]",
		Short: "Show what a definition declares",
		Long: `Show the definitions recorded in the metadata store, or the bindings,
cache policies and invalidation companions of one definition.

Examples:
  restdecl inspect
  restdecl inspect PostsAPI
  restdecl inspect PostsAPI --output yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			return runInspect(cmd, metadata.Default(), output, args)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")

	return cmd
}

func runInspect(cmd *cobra.Command, store *metadata.Store, output string, args []string) error {
	w := cmd.OutOrStdout()

	if len(args) == 0 {
		var all []rest.Description
		for _, name := range store.Types() {
			d, err := rest.Describe(store, name)
			if err != nil {
				return err
			}
			all = append(all, d)
		}
		if output != "table" {
			return render(w, output, all)
		}
		t := ui.NewTable(w, color.NoColor, "DEFINITION", "METHODS", "BASE URL")
		for _, d := range all {
			t.AddRow(d.Name, fmt.Sprint(len(d.Methods)), d.BaseURL)
		}
		t.Render()
		return nil
	}

	name := args[0]
	d, err := rest.Describe(store, name)
	if errors.Is(err, rest.ErrNotDefined) {
		suggestions := ui.FindSimilar(name, store.Types(), nil)
		ui.DefinitionNotFound(name, suggestions, color.NoColor).Write(cmd.ErrOrStderr())
		return reportedError{err}
	}
	if err != nil {
		return err
	}

	if output != "table" {
		return render(w, output, d)
	}
	describe(w, d)
	return nil
}

func describe(w io.Writer, d rest.Description) {
	noColor := color.NoColor

	ui.Header(w, d.Name, noColor)

	kv := ui.NewKeyValueTable(w, noColor)
	kv.AddRow("Base URL", d.BaseURL)
	kv.AddRow("Error handler", yesNo(d.ErrorHandler))
	kv.Render()
	fmt.Fprintln(w)

	for _, s := range []struct {
		title string
		lines []string
	}{
		{"Headers", d.Headers},
		{"Query", d.Query},
		{"Instance fields", d.Fields},
		{"Cache companions", d.Companions},
	} {
		section := ui.NewSection(w, s.title, noColor)
		for _, line := range s.lines {
			section.AddLine("%s", line)
		}
		section.Render()
	}

	t := ui.NewTable(w, noColor, "MEMBER", "VERB", "PATH", "RESPONSE", "CACHE")
	bindings := ui.NewSection(w, "Bindings", noColor)
	for _, m := range d.Methods {
		t.AddRow(m.Name, m.Verb, m.Path, m.ResponseType, m.Cache)
		for _, b := range []struct {
			kind   string
			values []string
		}{
			{"path", m.PathBindings},
			{"query", m.Query},
			{"header", m.Headers},
			{"body", m.Body},
		} {
			if len(b.values) > 0 {
				bindings.AddLine("%s %s: %s", m.Name, b.kind, strings.Join(b.values, ", "))
			}
		}
	}
	t.Render()
	fmt.Fprintln(w)
	bindings.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
