package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	infrastorage "github.com/avatarctic/cloud-storage-provider/internal/infrastructure/storage"
)

func newProvidersCmd(rootFlags *rootFlags, load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the configured storage instances and their health checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := load(cmd.Context(), newLogger(cmd, rootFlags))
			if err != nil {
				return err
			}
			defer app.Close()

			if app.Storage == nil || len(app.Storage.Keys()) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No storage instances configured.")
				return nil
			}

			tags := make(map[string][]string)
			for _, reg := range app.Storage.Checks() {
				tags[reg.Name] = reg.Tags
			}

			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "KEY\tCHECK\tTAGS")
			for _, key := range app.Storage.Keys() {
				name := infrastorage.CheckName(key)
				fmt.Fprintf(writer, "%s\t%s\t%s\n", key, name, strings.Join(tags[name], ","))
			}
			return writer.Flush()
		},
	}
}
