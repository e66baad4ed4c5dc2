package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/metagraph/internal/cli/ui"
	"github.com/conduit-lang/metagraph/internal/export"
)

func newInspectCommand(app *App, root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [class]",
		Short: "Show loaded classes and their properties",
		Long: `Load the metadata and show it as tables.

Without arguments every loaded class is listed. With a class name, the class and
its properties are shown, inherited ones included.

Examples:
  metagraph inspect
  metagraph inspect sales_Order`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(app, root)
			if err != nil {
				return err
			}
			defer env.close()

			session, err := env.load(cmd.Context())
			if err != nil {
				return err
			}
			doc, err := export.Build(session)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				renderClasses(out, doc, root.noColor)
				return nil
			}

			for _, class := range doc.Classes {
				if class.Name == args[0] {
					renderClass(out, class, root.noColor)
					return nil
				}
			}
			return &classNotFoundError{
				name:        args[0],
				suggestions: ui.FindSimilar(args[0], doc.ClassNames(), 3),
			}
		},
	}
}

func renderClasses(w io.Writer, doc *export.Document, noColor bool) {
	ui.Header(w, fmt.Sprintf("Classes (%d)", len(doc.Classes)), noColor)

	table := ui.NewTable(w, []string{"NAME", "TYPE", "STORE", "ANCESTORS", "PROPERTIES"}, noColor)
	for _, c := range doc.Classes {
		table.AddRow(c.Name, c.Type, c.Store, strings.Join(c.Ancestors, ", "), strconv.Itoa(len(c.Properties)))
	}
	table.Render()
}

func renderClass(w io.Writer, class export.Class, noColor bool) {
	ui.Header(w, "Class "+class.Name, noColor)

	kv := ui.NewKeyValueTable(w, noColor)
	kv.AddRow("Type", class.Type)
	kv.AddRow("Store", class.Store)
	if len(class.Ancestors) > 0 {
		kv.AddRow("Ancestors", strings.Join(class.Ancestors, ", "))
	}
	if class.PrimaryKey != "" {
		kv.AddRow("Primary key", class.PrimaryKey)
	}
	kv.Render()
	fmt.Fprintln(w)

	table := ui.NewTable(w, []string{"PROPERTY", "KIND", "CARDINALITY", "RANGE", "STORE", "FLAGS"}, noColor)
	for _, p := range class.Properties {
		table.AddRow(p.Name, p.Kind, p.Cardinality, p.Range, p.Store, propertyFlags(p))
	}
	table.Render()
}

func propertyFlags(p export.Property) string {
	var flags []string
	if p.Mandatory {
		flags = append(flags, "mandatory")
	}
	if p.ReadOnly {
		flags = append(flags, "read-only")
	}
	if p.Ordered {
		flags = append(flags, "ordered")
	}
	if p.Inverse != "" {
		flags = append(flags, "inverse "+p.Inverse)
	}
	if p.DeclaredBy != "" {
		flags = append(flags, "from "+p.DeclaredBy)
	}
	for _, c := range p.Constraints {
		if c.Value != "" {
			flags = append(flags, c.Kind+"="+c.Value)
		} else {
			flags = append(flags, c.Kind)
		}
	}
	return strings.Join(flags, ", ")
}
