package main

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-storefront/internal/schema"
)

func tablesCmd(env *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Manage the DynamoDB tables",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create every storefront table; existing tables are left alone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			storage, err := env.storage()
			if err != nil {
				return err
			}
			_, admin, err := env.clients(cmd.Context(), storage)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, def := range schema.Definitions(storage.Tables()) {
				_, err := admin.CreateTable(cmd.Context(), def.CreateTableInput())
				var inUse *types.ResourceInUseException
				switch {
				case errors.As(err, &inUse):
					fmt.Fprintf(out, "exists   %s\n", def.Name)
				case err != nil:
					return fmt.Errorf("create table %s: %w", def.Name, err)
				default:
					fmt.Fprintf(out, "created  %s\n", def.Name)
				}
			}
			return nil
		},
	})
	return cmd
}
