package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Backfill helper: reads a CSV of image URLs and replays them through the
// service's URL recognition endpoint with source=import, so historical
// footage shows up in the history view alongside live captures.
//
// CSV columns: image_url[,note]

const defaultServiceURL = "http://localhost:8080"

type recognizeRequest struct {
	ImageURL string `json:"image_url"`
	Source   string `json:"source"`
}

type recognizeResponse struct {
	Saved     bool            `json:"saved"`
	Detection json.RawMessage `json:"detection"`
	Error     string          `json:"error"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run import_detections.go <path-to-csv> [service-url]")
		fmt.Println("Example: go run import_detections.go footage.csv http://localhost:8080")
		os.Exit(1)
	}

	csvPath := os.Args[1]
	serviceURL := defaultServiceURL
	if len(os.Args) > 2 {
		serviceURL = strings.TrimRight(os.Args[2], "/")
	}

	urls, err := readImageURLs(csvPath)
	if err != nil {
		fmt.Printf("Error reading CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Read %d image URLs from %s\n", len(urls), csvPath)

	var saved, empty, failed int
	for i, imageURL := range urls {
		result, err := submitImage(serviceURL, imageURL)
		switch {
		case err != nil:
			failed++
			fmt.Printf("  [%d/%d] FAILED %s: %v\n", i+1, len(urls), imageURL, err)
		case result.Saved:
			saved++
			fmt.Printf("  [%d/%d] saved %s\n", i+1, len(urls), imageURL)
		case result.Error != "":
			failed++
			fmt.Printf("  [%d/%d] not stored %s: %s\n", i+1, len(urls), imageURL, result.Error)
		default:
			empty++
			fmt.Printf("  [%d/%d] no plates in %s\n", i+1, len(urls), imageURL)
		}
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("  Saved:     %d\n", saved)
	fmt.Printf("  No plates: %d\n", empty)
	fmt.Printf("  Failed:    %d\n", failed)
}

func readImageURLs(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	var urls []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		if len(record) == 0 {
			continue
		}
		imageURL := strings.TrimSpace(record[0])
		if imageURL == "" || imageURL == "image_url" {
			continue
		}
		urls = append(urls, imageURL)
	}
	return urls, nil
}

func submitImage(serviceURL, imageURL string) (*recognizeResponse, error) {
	payload, err := json.Marshal(recognizeRequest{ImageURL: imageURL, Source: "import"})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequest("POST", serviceURL+"/api/v1/recognitions/url", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var result recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}
