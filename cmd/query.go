package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/compound-rag/internal/search"
	"github.com/ziadkadry99/compound-rag/internal/sqlquery"
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question of a compound's documents or business tables",
	Long: `Answers a question from the indexed documents of a compound, optionally
restricted to a department or to specific documents. With --table the
question is answered from an allow-listed business table instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().String("compound", "", "compound id")
	_ = queryCmd.MarkFlagRequired("compound")
	queryCmd.Flags().String("department", "", "search only the documents of this department")
	queryCmd.Flags().StringSlice("documents", nil, "search only these document ids")
	queryCmd.Flags().Int("top-k", 0, "number of passages to retrieve (defaults to retrieval.top_k)")
	queryCmd.Flags().String("table", "", "answer from this business table instead of documents")
	queryCmd.Flags().StringSlice("columns", nil, "columns to return from --table")
	queryCmd.Flags().Bool("summary", false, "summarize --table results with the LLM")
	queryCmd.Flags().Bool("json", false, "output the result as JSON")
	queryCmd.MarkFlagsMutuallyExclusive("department", "documents")
	queryCmd.MarkFlagsMutuallyExclusive("department", "table")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	question := args[0]
	compoundID, _ := cmd.Flags().GetString("compound")
	departmentID, _ := cmd.Flags().GetString("department")
	documentIDs, _ := cmd.Flags().GetStringSlice("documents")
	topK, _ := cmd.Flags().GetInt("top-k")
	table, _ := cmd.Flags().GetString("table")
	columns, _ := cmd.Flags().GetStringSlice("columns")
	summary, _ := cmd.Flags().GetBool("summary")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if table != "" {
		res, err := a.database.SearchDatabase(ctx, compoundID, sqlquery.Request{
			Query:   question,
			Table:   table,
			Columns: columns,
			Summary: summary,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		return printDatabaseResult(res)
	}

	var res *search.Result
	if departmentID != "" {
		res, err = a.search.SearchDepartmentDocuments(ctx, compoundID, departmentID, question, topK)
	} else {
		res, err = a.search.SearchDocuments(ctx, compoundID, question, documentIDs, topK)
	}
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}
	printSearchResult(res)
	return nil
}

func printSearchResult(res *search.Result) {
	if res.Answer != "" {
		fmt.Println(res.Answer)
		fmt.Println()
	}
	if res.Degraded {
		fmt.Println("(answer generation unavailable; showing retrieved passages)")
		for i, p := range res.Passages {
			fmt.Printf("  %d. [%.2f] %s\n", i+1, p.Score, truncate(strings.Join(strings.Fields(p.Text), " "), 160))
		}
		fmt.Println()
	}
	if len(res.Sources) == 0 {
		return
	}
	fmt.Println("Sources:")
	for _, s := range res.Sources {
		fmt.Printf("  [%s] %s (%s, chars %d-%d)\n", s.Citation, s.Title, s.DocumentID, s.Start, s.End)
	}
}

func printDatabaseResult(res *sqlquery.Result) error {
	if res.Summary != "" {
		fmt.Println(res.Summary)
		fmt.Println()
	}
	fmt.Printf("%d row(s) from %s", res.RowCount, res.Table)
	if res.Truncated {
		fmt.Print(" (truncated at the row cap)")
	}
	fmt.Println()
	for _, row := range res.Results {
		line, err := json.Marshal(row)
		if err != nil {
			return err
		}
		fmt.Printf("  %s\n", line)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
