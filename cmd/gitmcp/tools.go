package main

import (
	"github.com/goccy/go-json"
	"github.com/gomantics/gitmcp/domains/tools"
	"github.com/spf13/cobra"
)

type catalogOutput struct {
	Version string       `json:"version"`
	Tools   []tools.Tool `json:"tools"`
}

func newToolsCommand() *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalog as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := tools.NewCatalog()

			list := catalog.Tools()
			if group != "" {
				list = catalog.Group(tools.Group(group))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(catalogOutput{Version: catalog.Version(), Tools: list})
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "Only print tools of this group")
	return cmd
}
