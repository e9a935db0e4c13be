package cmd

import (
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(followersCmd)
	rootCmd.AddCommand(eventsCmd)
}

var followersCmd = &cobra.Command{
	Use:   "followers <target>",
	Short: "Prints the stored follower snapshot for the target handle.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var followers []struct {
			Username      string    `json:"username"`
			DisplayName   string    `json:"display_name"`
			Status        string    `json:"status"`
			FollowerCount int64     `json:"follower_count"`
			FirstSeen     time.Time `json:"first_seen"`
			LastSeen      time.Time `json:"last_seen"`
		}
		res, err := client.R().
			SetContext(cmd.Context()).
			SetQueryParam("owner", owner).
			SetQueryParam("target", args[0]).
			Get("/api/followers")
		call(res, err, &followers)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{
			"Username", "Name", "Status", "Followers", "First seen", "Last seen",
		})
		for _, f := range followers {
			t.AppendRow(table.Row{
				f.Username, f.DisplayName, f.Status, f.FollowerCount,
				f.FirstSeen.Format(time.DateOnly),
				f.LastSeen.Format(time.DateOnly),
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events <target>",
	Short: "Prints the derived unfollow/refollow history for the target handle.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var events []struct {
			Username    string    `json:"username"`
			EventType   string    `json:"event_type"`
			EventTime   time.Time `json:"event_time"`
			DisplayName string    `json:"display_name"`
		}
		res, err := client.R().
			SetContext(cmd.Context()).
			SetQueryParam("owner", owner).
			SetQueryParam("target", args[0]).
			Get("/api/events")
		call(res, err, &events)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"When", "Event", "Username", "Name"})
		for _, e := range events {
			t.AppendRow(table.Row{
				e.EventTime.Format(time.ANSIC), e.EventType, e.Username, e.DisplayName,
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
