package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Smoke test against a running server. The account must exist and hold
// enough credit for one message.
func main() {
	baseURL := flag.String("url", "http://localhost:3000", "server base URL")
	account := flag.String("account", "admin", "billing account (basic auth username)")
	apiKey := flag.String("key", os.Getenv("API_KEY"), "API key (basic auth password)")
	to := flag.String("to", "5512345678", "destination number")
	flag.Parse()

	client := &http.Client{Timeout: 30 * time.Second}

	fmt.Println("--- GET /api/accounts/{id}/balance ---")
	status, body, err := call(client, http.MethodGet, *baseURL+"/api/accounts/"+*account+"/balance", *account, *apiKey, nil)
	report(status, body, err)

	fmt.Println("--- POST /api/sms/send ---")
	payload := map[string]interface{}{
		"numbers": []string{*to},
		"content": "Hello from the verification script",
	}
	status, body, err = call(client, http.MethodPost, *baseURL+"/api/sms/send", *account, *apiKey, payload)
	report(status, body, err)

	fmt.Println("--- GET /api/accounts/{id}/usage ---")
	status, body, err = call(client, http.MethodGet, *baseURL+"/api/accounts/"+*account+"/usage", *account, *apiKey, nil)
	report(status, body, err)
}

func report(status int, body string, err error) {
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Status: %d\nBody: %s\n", status, body)
}

func call(client *http.Client, method, url, user, pass string, data interface{}) (int, string, error) {
	var reader io.Reader
	if data != nil {
		jsonBytes, err := json.Marshal(data)
		if err != nil {
			return 0, "", err
		}
		reader = bytes.NewReader(jsonBytes)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return 0, "", err
	}
	req.SetBasicAuth(user, pass)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), err
}
