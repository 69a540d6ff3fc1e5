package main

import (
	"github.com/spf13/cobra"

	"github.com/vthunder/distill/internal/entity"
)

var mergeTypes []string

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge raw collections into canonical entities",
	Long: `Ask the merge model to fold duplicates within each raw collection and
write the canonical collections to merged/. Themes are deduplicated without
a model call.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		types, err := parseTypes(mergeTypes)
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd)
		defer stop()
		return withLock("merge", func(string) error {
			return stageMerge(ctx, types)
		})
	},
}

func init() {
	mergeCmd.Flags().StringSliceVar(&mergeTypes, "type", nil, "Entity types to merge (wire keys, e.g. personen); default all")
	rootCmd.AddCommand(mergeCmd)
}

func parseTypes(keys []string) ([]entity.Type, error) {
	var types []entity.Type
	for _, k := range keys {
		t, err := entity.ParseType(k)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}
