package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var scanMethod string
var scanMaxItems int

func init() {
	startCmd.Flags().StringVarP(
		&scanMethod, "method", "m", "direct-api",
		"extraction method: direct-api, sandbox-browser or scraping-service")
	startCmd.Flags().IntVar(
		&scanMaxItems, "max-items", 0, "cap on extracted profiles (0 uses the daemon default)")
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(jobsCmd)
}

type scanJob struct {
	ID          string    `json:"id"`
	Target      string    `json:"target"`
	Method      string    `json:"method"`
	Status      string    `json:"status"`
	Phase       string    `json:"phase"`
	Percent     int       `json:"percent"`
	Message     string    `json:"message"`
	ErrorKind   string    `json:"error_kind"`
	Error       string    `json:"error"`
	Partial     bool      `json:"partial"`
	Extracted   int       `json:"extracted"`
	Merged      int       `json:"merged"`
	Unfollowed  int       `json:"unfollowed"`
	Refollowed  int       `json:"refollowed"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at"`
}

func jobRow(job scanJob) table.Row {
	outcome := job.Message
	if job.Status == "failed" {
		outcome = fmt.Sprintf("%s: %s", job.ErrorKind, job.Error)
	}
	return table.Row{
		job.ID, job.Target, job.Method,
		fmt.Sprintf("%s (%s %d%%)", job.Status, job.Phase, job.Percent),
		job.Unfollowed, job.Refollowed, outcome,
	}
}

func renderJobs(jobs []scanJob) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{
		"Job", "Target", "Method", "Status", "Unfollowed", "Refollowed", "Outcome",
	})
	for _, job := range jobs {
		t.AppendRow(jobRow(job))
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

var startCmd = &cobra.Command{
	Use:   "start <target>",
	Short: "Starts a follower scan of the target handle.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var out struct {
			JobID    string `json:"job_id"`
			Accepted bool   `json:"accepted"`
		}
		res, err := client.R().
			SetContext(cmd.Context()).
			SetBody(map[string]any{
				"owner":     owner,
				"target":    args[0],
				"method":    scanMethod,
				"max_items": scanMaxItems,
			}).
			Post("/api/scans")
		call(res, err, &out)

		if out.Accepted {
			fmt.Printf("started job %s\n", out.JobID)
		} else {
			fmt.Printf("a scan of %s is already live as job %s\n", args[0], out.JobID)
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Prints the current state of one scan job.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var job scanJob
		res, err := client.R().
			SetContext(cmd.Context()).
			Get("/api/scans/" + args[0])
		call(res, err, &job)
		renderJobs([]scanJob{job})
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Lists the owner's recent scan jobs.",
	Run: func(cmd *cobra.Command, args []string) {
		var jobs []scanJob
		res, err := client.R().
			SetContext(cmd.Context()).
			SetQueryParam("owner", owner).
			Get("/api/scans")
		call(res, err, &jobs)
		renderJobs(jobs)
	},
}
