package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
)

type Client struct {
	Host  string
	Token string
}

func NewClient(host, token string) *Client {
	return &Client{Host: host, Token: token}
}

func (c *Client) Request(method, endpoint, data string) {
	target := c.Host + endpoint
	if c.Token != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		target += sep + "token=" + url.QueryEscape(c.Token)
	}
	var req *http.Request
	var err error
	if data != "" {
		req, err = http.NewRequest(method, target, strings.NewReader(data))
	} else {
		req, err = http.NewRequest(method, target, nil)
	}
	if err != nil {
		log.Fatal("Failed to create request:", err)
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatal("Request failed:", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal("Failed to read response:", err)
	}
	var prettyJSON map[string]interface{}
	if err := json.Unmarshal(body, &prettyJSON); err == nil {
		prettyBody, _ := json.MarshalIndent(prettyJSON, "", "  ")
		fmt.Printf("Status: %s\n", resp.Status)
		fmt.Println("Response:")
		fmt.Println(string(prettyBody))
	} else {
		fmt.Printf("Status: %s\n", resp.Status)
		fmt.Printf("Response: %s\n", string(body))
	}
}
