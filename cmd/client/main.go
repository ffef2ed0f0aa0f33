package main

import (
	"flag"
	"os"

	"github.com/peerpay/backend/internal/client"
)

func main() {
	apiURL := flag.String("api", defaultAPIURL(), "base URL of the PeerPay API")
	flag.Parse()

	console := client.NewConsole(client.New(*apiURL), os.Stdin, os.Stdout)
	console.Run()
}

func defaultAPIURL() string {
	if url := os.Getenv("PEERPAY_API_URL"); url != "" {
		return url
	}
	return "http://localhost:8080/api/v1"
}
