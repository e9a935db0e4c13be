package cmd

import (
	"bufio"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(verifyCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify <username>...",
	Short: "Checks which usernames resolve to real profiles; reads stdin when no arguments are given.",
	Run: func(cmd *cobra.Command, args []string) {
		usernames := args
		if len(usernames) == 0 {
			scan := bufio.NewScanner(os.Stdin)
			for scan.Scan() {
				if line := scan.Text(); line != "" {
					usernames = append(usernames, line)
				}
			}
			if err := scan.Err(); err != nil {
				log.Fatal(err)
			}
		}

		var results []struct {
			Username   string `json:"username"`
			Exists     bool   `json:"exists"`
			Suggestion string `json:"suggestion"`
			Error      string `json:"error"`
		}
		res, err := client.R().
			SetContext(cmd.Context()).
			SetBody(map[string]any{
				"owner":     owner,
				"usernames": usernames,
			}).
			Post("/api/verify")
		call(res, err, &results)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Username", "Exists", "Did you mean", "Error"})
		for _, r := range results {
			exists := ""
			if r.Exists {
				exists = "yes"
			}
			t.AppendRow(table.Row{r.Username, exists, r.Suggestion, r.Error})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
