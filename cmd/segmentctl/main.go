package main

import (
	"flag"

	"tablecrm/cmd/pkg/cli"
)

func main() {
	method := flag.String("method", "GET", "HTTP method")
	endpoint := flag.String("endpoint", "/segments", "API endpoint")
	data := flag.String("data", "", "JSON payload")
	host := flag.String("host", "http://localhost:8080", "API host")
	token := flag.String("token", "", "account token")
	flag.Parse()
	client := cli.NewClient(*host, *token)
	client.Request(*method, *endpoint, *data)
}
