// Command seed_users loads a JSON batch of users into a running API
// instance through the bulk import endpoint. The batch commits or aborts
// as a unit, so rerunning after a failure is safe.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

type importRow struct {
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	Role       string `json:"role"`
	RegisterNo string `json:"register_no,omitempty"`
	Program    string `json:"program,omitempty"`
	BatchYear  int    `json:"batch_year,omitempty"`
	TutorEmail string `json:"tutor_email,omitempty"`
}

type importResult struct {
	TotalRows  int      `json:"total_rows"`
	Processed  int      `json:"processed"`
	Duplicates []string `json:"duplicates,omitempty"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	var (
		baseURL   string
		batchPath string
		email     string
		password  string
		timeout   time.Duration
	)

	flag.StringVar(&baseURL, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&batchPath, "batch", "batch.json", "Path to JSON file with an array of import rows")
	flag.StringVar(&email, "email", "", "Admin email")
	flag.StringVar(&password, "password", "", "Admin password")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Per-request timeout")
	flag.Parse()

	if email == "" || password == "" {
		log.Fatal("both -email and -password are required")
	}

	raw, err := os.ReadFile(batchPath)
	if err != nil {
		log.Fatalf("read batch file: %v", err)
	}
	var rows []importRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		log.Fatalf("parse batch file: %v", err)
	}
	if len(rows) == 0 {
		log.Fatal("batch file contains no rows")
	}

	client := &http.Client{Timeout: timeout}

	token, err := login(client, baseURL, email, password)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}

	result, status, err := runImport(client, baseURL, token, rows)
	if err != nil {
		log.Fatalf("import failed: %v", err)
	}

	switch status {
	case http.StatusOK:
		fmt.Printf("imported %d/%d rows\n", result.Processed, result.TotalRows)
	case http.StatusConflict:
		fmt.Printf("aborted: %d duplicate emails\n", len(result.Duplicates))
		for _, email := range result.Duplicates {
			fmt.Printf("  %s\n", email)
		}
		os.Exit(1)
	default:
		log.Fatalf("unexpected status %d", status)
	}
}

func login(client *http.Client, baseURL, email, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := client.Post(baseURL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, env.Error.Message)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return "", err
	}
	return payload.AccessToken, nil
}

func runImport(client *http.Client, baseURL, token string, rows []importRow) (*importResult, int, error) {
	body, _ := json.Marshal(map[string]interface{}{"rows": rows})
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/imports/users", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if env.Error != nil && resp.StatusCode != http.StatusConflict {
		return nil, resp.StatusCode, fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
	}

	var result importResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return nil, resp.StatusCode, err
	}
	return &result, resp.StatusCode, nil
}

func decodeEnvelope(resp *http.Response) (*envelope, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unexpected response body: %s", string(raw))
	}
	return &env, nil
}
