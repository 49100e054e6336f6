// Package main provides the gaugectl CLI for managing the gauge server.
// It communicates with the gauge-server HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	// Global flags
	serverURL    string
	actorFlag    string
	rolesFlag    string
	globalClient *gaugeClient
)

// gaugeClient wraps an HTTP client and the server base URL.
type gaugeClient struct {
	baseURL    string
	httpClient *http.Client
}

func newGaugeClient(baseURL string) *gaugeClient {
	return &gaugeClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// doRequest performs an HTTP request and returns the response body bytes.
// It returns an error if the status code indicates a failure.
func (c *gaugeClient) doRequest(method, path string, body any) ([]byte, error) {
	url := c.baseURL + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if actorFlag != "" {
		req.Header.Set("X-Remote-User", actorFlag)
	}
	if rolesFlag != "" {
		req.Header.Set("X-Remote-Group", rolesFlag)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to gauge server at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			if errResp.Code != "" {
				return nil, fmt.Errorf("server error (%d, %s): %s", resp.StatusCode, errResp.Code, errResp.Error)
			}
			return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// printJSON pretty-prints a response body.
func printJSON(body []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(buf.String())
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "gaugectl",
		Short: "CLI for the gauge registry server",
		Long: `gaugectl is a command-line tool for managing gauges and gauge sets.

It provides commands for creating and pairing sets, moving gauges
through their lifecycle, and driving the calibration workflow.

The CLI communicates with the gauge-server HTTP API.`,
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			globalClient = newGaugeClient(serverURL)
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Gauge server URL")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Acting user; sets X-Remote-User")
	rootCmd.PersistentFlags().StringVar(&rolesFlag, "roles", "", "Comma-separated roles; sets X-Remote-Group")

	rootCmd.AddCommand(newSetsCmd())
	rootCmd.AddCommand(newGaugesCmd())
	rootCmd.AddCommand(newBatchesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
