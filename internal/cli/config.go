package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewConfigCmd создаёт группу команд для тестовых процедур.
func NewConfigCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage test configurations",
	}

	cmd.AddCommand(
		newConfigListCmd(clientFn, outputFn),
		newConfigShowCmd(clientFn, outputFn),
		newConfigImportCmd(clientFn, outputFn),
		newConfigDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

func newConfigListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List test configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			configs, err := client.ListTestConfigs()
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "STEPS", "KINDS", "UPDATED"}
			rows := make([][]string, len(configs))
			for i, c := range configs {
				rows[i] = []string{c.ID, c.Name, strconv.Itoa(len(c.Steps)), formatCounts(c.StepCounts), c.UpdatedAt}
			}

			out.PrintTable(Table{Headers: headers, Rows: rows, RightAlign: []string{"STEPS"}}, configs)
			return nil
		},
	}
}

func newConfigShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show test configuration steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			cfg, err := client.GetTestConfig(args[0])
			if err != nil {
				return err
			}

			rows := make([][]string, len(cfg.Steps))
			for i, s := range cfg.Steps {
				rows[i] = []string{strconv.Itoa(s.Order), s.Kind, s.Label, s.ID}
			}

			out.PrintTable(Table{
				Title:      cfg.Name,
				Headers:    []string{"ORDER", "KIND", "STEP", "ID"},
				Rows:       rows,
				RightAlign: []string{"ORDER"},
			}, cfg)
			return nil
		},
	}
}

func newConfigImportCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import test configurations from a YAML file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var r io.Reader
			if args[0] == "-" {
				r = cmd.InOrStdin()
			} else {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open %s: %w", args[0], err)
				}
				defer f.Close()
				r = f
			}

			res, err := client.ImportTestConfigs(r, replace)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Imported: %d created, %d updated", len(res.Created), len(res.Updated)))

			var rows [][]string
			for _, name := range res.Created {
				rows = append(rows, []string{name, "created"})
			}
			for _, name := range res.Updated {
				rows = append(rows, []string{name, "updated"})
			}
			out.Print([]string{"NAME", "ACTION"}, rows, res)
			return nil
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "Replace steps of configurations with matching names")

	return cmd
}

func newConfigDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var confirm string

	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a test configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteTestConfig(args[0], confirm); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Test config deleted: %s", args[0]))
			return nil
		},
	}

	cmd.Flags().StringVar(&confirm, "confirm", "", "Configuration name, required to confirm deletion")
	_ = cmd.MarkFlagRequired("confirm")

	return cmd
}

// formatCounts выводит число шагов по видам: "QUESTION=1 VOLTAGE=2".
func formatCounts(counts map[string]int) string {
	kinds := make([]string, 0, len(counts))
	for k, n := range counts {
		if n > 0 {
			kinds = append(kinds, k)
		}
	}
	sort.Strings(kinds)

	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, " ")
}
