package cmds

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/mb0/glob"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/grillo/pkg/catalog"
	"github.com/go-go-golems/grillo/pkg/events"
	"github.com/go-go-golems/grillo/pkg/gateway"
)

func NewModelsCommand() *cobra.Command {
	ret := &cobra.Command{
		Use:   "models",
		Short: "List and install models",
	}
	ret.AddCommand(newModelsListCommand())
	ret.AddCommand(newModelsPullCommand())
	return ret
}

func newModelsListCommand() *cobra.Command {
	ret := &cobra.Command{
		Use:   "list",
		Short: "List the models available on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, _ := cmd.Flags().GetString("filter")

			m, s, err := newManager()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), s)
			defer cancel()

			models := m.ListModels(ctx)
			if err := m.Catalog().Err(); err != nil {
				return err
			}
			models, err = filterModels(models, filter)
			if err != nil {
				return err
			}
			return printModels(cmd.OutOrStdout(), models, m.Catalog().Selected())
		},
	}
	ret.Flags().String("filter", "", "Only show models whose name:tag matches this glob")
	return ret
}

func filterModels(models []gateway.ModelDescriptor, pattern string) ([]gateway.ModelDescriptor, error) {
	if pattern == "" {
		return models, nil
	}
	ret := []gateway.ModelDescriptor{}
	for _, model := range models {
		// check if pattern matches either the bare name or name:tag
		matching, err := glob.Match(pattern, model.FullName())
		if err != nil {
			return nil, err
		}
		if !matching {
			matching, err = glob.Match(pattern, model.Name)
			if err != nil {
				return nil, err
			}
		}
		if matching {
			ret = append(ret, model)
		}
	}
	return ret, nil
}

func printModels(w io.Writer, models []gateway.ModelDescriptor, selected string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "\tNAME\tSIZE\tMODIFIED")
	for _, model := range models {
		marker := ""
		if model.FullName() == selected || model.Name == selected {
			marker = "*"
		}
		size := "-"
		if model.Size > 0 {
			size = humanize.Bytes(uint64(model.Size))
		}
		modified := "-"
		if !model.ModifiedAt.IsZero() {
			modified = humanize.Time(model.ModifiedAt)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", marker, model.FullName(), size, modified)
	}
	return tw.Flush()
}

func newModelsPullCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <name>",
		Short: "Download a model onto the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := newManager()
			if err != nil {
				return err
			}
			defer m.Close()

			inst, err := m.InstallModel(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for p := range inst.Updates() {
				_, _ = fmt.Fprintf(w, "\r%s", formatProgress(p))
			}
			_, _ = fmt.Fprintln(w)

			if err := inst.Wait(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(w, "installed %s\n", inst.Model)
			return nil
		},
	}
}

func formatProgress(p catalog.Progress) string {
	return events.FormatInstallProgress(p.Status, p.Percentage, p.BytesCompleted, p.BytesTotal, p.BytesPerSecond)
}
