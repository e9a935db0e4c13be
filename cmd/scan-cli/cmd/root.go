package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var BaseUrl string

var client *resty.Client

var owner string

var rootCmd = &cobra.Command{
	Use:   "scan-cli",
	Short: "scan-cli is a CLI interface for the follower scan daemon.",
}

func Execute() {
	client = resty.New()
	client.SetBaseURL(BaseUrl)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&owner, "owner", "o", "", "owner account the request acts for")
	rootCmd.MarkPersistentFlagRequired("owner")
}

// call decodes a 2xx response into out and dies on anything else
func call(res *resty.Response, err error, out any) {
	if err != nil {
		log.Fatal(err)
	}
	if res.StatusCode() >= 300 {
		log.Fatalf("daemon returned status %d: %s", res.StatusCode(), res.Body())
	}
	if out == nil {
		return
	}
	if err := json.Unmarshal(res.Body(), out); err != nil {
		log.Fatal(err)
	}
}
