package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

// NameOverrideDocument mirrors the import-names wire format for schema
// generation.
type NameOverrideDocument struct {
	Functions []NameOverrideEntry `json:"Functions" jsonschema:"title=Functions,description=Function name overrides"`
}

// NameOverrideEntry is one override record.
type NameOverrideEntry struct {
	Address uint64 `json:"Address" jsonschema:"title=Address,description=Function start address"`
	Name    string `json:"Name" jsonschema:"title=Name,description=Replacement function name"`
}

var schemaCmd = &cobra.Command{
	Use:    "schema",
	Short:  "Generate JSON schema for the name-override document",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		reflector := new(jsonschema.Reflector)
		bts, err := json.MarshalIndent(reflector.Reflect(&NameOverrideDocument{}), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal schema: %w", err)
		}
		fmt.Println(string(bts))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
