package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"screenloom/runtime"
)

var checkCmd = &cobra.Command{
	Use:   "check [flow files or directories]",
	Short: "Validate flow files without running them",
	Long: `Check loads each flow file, decodes every node payload and verifies
the graph: start page present, targets resolving, parallel containers
holding only allowed kinds, challenge tables well formed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := runtime.NewFlowLoader()
		failed := 0

		for _, arg := range args {
			graphs, err := checkPath(loader, arg)
			if err != nil {
				fmt.Printf("FAIL %s: %v\n", arg, err)
				failed++
				continue
			}
			for _, g := range graphs {
				fmt.Printf("OK   %s (%d pages)\n", g.ID, len(g.Pages))
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d file(s) failed validation", failed)
		}
		return nil
	},
}

func checkPath(loader *runtime.FlowLoader, path string) ([]*runtime.FlowGraph, error) {
	if isDir(path) {
		return loader.LoadDir(path)
	}
	g, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	return []*runtime.FlowGraph{g}, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
