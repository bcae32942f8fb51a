package cli

import (
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var addr string

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the running server's /health snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStats(addr)
		},
	}
	statsCmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8080", "base address of a running loglite server")
	return statsCmd
}

func printStats(addr string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(addr + "/health")
	if err != nil {
		return fmt.Errorf("requesting /health: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading /health response: %w", err)
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		return fmt.Errorf("decoding /health response: %w", err)
	}
	encoded, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
