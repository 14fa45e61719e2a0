package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nucleus/internal/machine"
)

var vectorsCmd = &cobra.Command{
	Use:   "vectors",
	Short: "List registered interrupt vectors",
	Long: `Assembles a machine from the configuration and lists every vector with
handlers, along with the controller line state each one programmed.`,
	RunE: runVectors,
}

func runVectors(cmd *cobra.Command, args []string) error {
	m, err := machine.New(cfg, nil)
	if err != nil {
		return err
	}

	var rows [][]string
	for _, v := range m.Table.RegisteredVectors() {
		st, ok := m.GIC.State(v)
		if !ok {
			continue
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", v),
			strings.Join(m.Table.HandlerNames(v), ","),
			st.Mode.String(),
			fmt.Sprintf("%d", st.Priority),
			fmt.Sprintf("%#x", st.Target),
			fmt.Sprintf("%t", st.Enabled),
		})
	}
	fmt.Print(renderTable([]string{"VECTOR", "HANDLERS", "TRIGGER", "PRIORITY", "TARGET", "ENABLED"}, rows))
	return nil
}
