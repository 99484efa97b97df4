package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/listwatch/listwatch/internal/catalog"
)

// newResolveCmd creates the 'resolve' subcommand, which turns free-text
// vehicle descriptions into search URLs via the catalog mapping.
func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <free text>",
		Short: "Resolve free text to a vehicle search URL",
		Long: `Matches free text like "toyota corolla hybrid" against the manufacturer
and model catalog and prints the corresponding search URL. Useful for
building the searches section of the configuration file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runResolveCommand,
	}
}

func runResolveCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	cat, err := catalog.Load(appInstance.Config().Catalog.MappingFile)
	if err != nil {
		return err
	}

	text := strings.Join(args, " ")
	match, err := cat.Resolve(text)
	if errors.Is(err, catalog.ErrNoMatch) {
		cmd.PrintErrf("no manufacturer or model matches %q\n", text)
		return err
	}
	if err != nil {
		return err
	}

	cmd.Printf("manufacturer: %s (%s)\n", match.Manufacturer.NameEn, match.Manufacturer.NameHe)
	if match.Model != nil {
		cmd.Printf("model:        %s (%s)\n", match.Model.NameEn, match.Model.NameHe)
	}
	if match.Hybrid {
		cmd.Println("engine:       hybrid")
	}
	cmd.Printf("url:          %s\n", match.URL)
	return nil
}
