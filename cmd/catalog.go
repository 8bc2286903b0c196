package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/compound-rag/internal/catalog"
)

var compoundCmd = &cobra.Command{
	Use:   "compound",
	Short: "Manage compounds",
}

var compoundCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a compound",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		return withCatalog(func(store *catalog.Store) error {
			c := &catalog.Compound{ID: id, Title: args[0]}
			if err := store.CreateCompound(cmd.Context(), c); err != nil {
				return err
			}
			fmt.Printf("Created compound %s (%s)\n", c.ID, c.Title)
			return nil
		})
	},
}

var compoundListCmd = &cobra.Command{
	Use:   "list",
	Short: "List compounds",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		return withCatalog(func(store *catalog.Store) error {
			compounds, err := store.ListCompounds(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(compounds)
			}
			if len(compounds) == 0 {
				fmt.Println("No compounds. Create one with `compoundrag compound create`.")
				return nil
			}
			for _, c := range compounds {
				fmt.Printf("  %s  %s\n", c.ID, c.Title)
			}
			return nil
		})
	},
}

var departmentCmd = &cobra.Command{
	Use:   "department",
	Short: "Manage the departments of a compound",
}

var departmentCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a department in a compound",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		compoundID, _ := cmd.Flags().GetString("compound")
		return withCatalog(func(store *catalog.Store) error {
			d := &catalog.Department{CompoundID: compoundID, Title: args[0]}
			if err := store.CreateDepartment(cmd.Context(), d); err != nil {
				return err
			}
			fmt.Printf("Created department %s (%s) in compound %s\n", d.ID, d.Title, compoundID)
			return nil
		})
	},
}

var departmentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the departments of a compound",
	RunE: func(cmd *cobra.Command, args []string) error {
		compoundID, _ := cmd.Flags().GetString("compound")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		return withCatalog(func(store *catalog.Store) error {
			if err := store.RequireCompound(cmd.Context(), compoundID); err != nil {
				return err
			}
			departments, err := store.ListDepartments(cmd.Context(), compoundID)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(departments)
			}
			for _, d := range departments {
				fmt.Printf("  %s  %s\n", d.ID, d.Title)
			}
			return nil
		})
	},
}

var departmentAssignCmd = &cobra.Command{
	Use:   "assign [department-id] [document-id...]",
	Short: "Assign documents to a department",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		compoundID, _ := cmd.Flags().GetString("compound")
		return withCatalog(func(store *catalog.Store) error {
			for _, docID := range args[1:] {
				if err := store.AssignDocument(cmd.Context(), compoundID, args[0], docID); err != nil {
					return fmt.Errorf("assigning %s: %w", docID, err)
				}
				fmt.Printf("Assigned %s to %s\n", docID, args[0])
			}
			return nil
		})
	},
}

// withCatalog runs fn against the metadata database named by the config.
func withCatalog(fn func(*catalog.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, closeDB, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer closeDB()
	return fn(store)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	compoundCreateCmd.Flags().String("id", "", "compound id (generated when empty)")
	compoundListCmd.Flags().Bool("json", false, "output as JSON")
	compoundCmd.AddCommand(compoundCreateCmd, compoundListCmd)

	for _, c := range []*cobra.Command{departmentCreateCmd, departmentListCmd, departmentAssignCmd} {
		c.Flags().String("compound", "", "compound id")
		_ = c.MarkFlagRequired("compound")
	}
	departmentListCmd.Flags().Bool("json", false, "output as JSON")
	departmentCmd.AddCommand(departmentCreateCmd, departmentListCmd, departmentAssignCmd)

	rootCmd.AddCommand(compoundCmd, departmentCmd)
}
