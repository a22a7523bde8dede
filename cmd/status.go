package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// fetchStatus queries a running instance's status endpoint and prints it,
// the CLI equivalent of the original service's --status flag.
func fetchStatus(port int) error {
	client := &http.Client{Timeout: 5 * time.Second}
	url := fmt.Sprintf("http://127.0.0.1:%d/status", port)

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("query %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status endpoint returned %s: %s", resp.Status, body)
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(string(out))
	return nil
}
