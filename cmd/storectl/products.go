package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

// seedFile is the YAML layout accepted by "products seed".
type seedFile struct {
	Products []catalog.ProductInput `yaml:"products"`
}

func loadSeedFile(path string) (*seedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.Products) == 0 {
		return nil, fmt.Errorf("%s: no products", path)
	}

	v := validation.New()
	for i, p := range f.Products {
		if err := v.Struct(p); err != nil {
			return nil, fmt.Errorf("product %d (%q): %v", i, p.Name, validation.FieldErrors(err))
		}
	}
	return &f, nil
}

func productsCmd(env *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Manage the catalog",
	}

	var (
		file   string
		dryRun bool
	)
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Create the products listed in a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadSeedFile(file)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "%d products valid\n", len(f.Products))
				return nil
			}

			storage, err := env.storage()
			if err != nil {
				return err
			}
			db, _, err := env.clients(cmd.Context(), storage)
			if err != nil {
				return err
			}
			svc := catalog.NewService(catalog.NewStore(db, storage.ProductsTable), nil, env.logger)
			for _, in := range f.Products {
				p, err := svc.Create(cmd.Context(), in)
				if err != nil {
					return fmt.Errorf("create %q: %w", in.Name, err)
				}
				fmt.Fprintf(out, "%s  %s\n", p.ID, p.Name)
			}
			return nil
		},
	}
	seed.Flags().StringVarP(&file, "file", "f", "", "YAML file with a products list")
	seed.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the file without writing")
	_ = seed.MarkFlagRequired("file")

	cmd.AddCommand(seed)
	return cmd
}
