package main

import (
	"fmt"
	"os"
	"followtrace-backend/cmd/scan-cli/cmd"
)

func main() {
	baseUrl, ok := os.LookupEnv("SCANNERD_BASE_URL")
	if !ok {
		fmt.Println("You should specify the base url of the scanner daemon in the environment variable SCANNERD_BASE_URL.")
		os.Exit(1)
	}
	cmd.BaseUrl = baseUrl

	cmd.Execute()
}
