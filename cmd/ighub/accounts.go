package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List active sessions on a running hub",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Sessions []struct {
				Username  string    `json:"username"`
				IsActive  bool      `json:"is_active"`
				CreatedAt time.Time `json:"created_at"`
				UpdatedAt time.Time `json:"updated_at"`
			} `json:"sessions"`
		}
		if err := hubRequest(http.MethodGet, "/sessions", nil, &result); err != nil {
			return err
		}

		if len(result.Sessions) == 0 {
			fmt.Println("No active sessions")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "USERNAME\tACTIVE\tUPDATED")
		for _, s := range result.Sessions {
			fmt.Fprintf(w, "%s\t%t\t%s\n", s.Username, s.IsActive, s.UpdatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Control activity monitoring on a running hub",
}

var monitorStartCmd = &cobra.Command{
	Use:   "start [username]",
	Short: "Start monitoring all accounts, or one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/monitor/start"
		if len(args) == 1 {
			path += "/" + args[0]
		}
		return runMessageCommand(http.MethodPost, path)
	},
}

var monitorStopCmd = &cobra.Command{
	Use:   "stop [username]",
	Short: "Stop monitoring all accounts, or one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/monitor/stop"
		if len(args) == 1 {
			path += "/" + args[0]
		}
		return runMessageCommand(http.MethodPost, path)
	},
}

var monitorStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which accounts are monitored",
	RunE: func(cmd *cobra.Command, args []string) error {
		var status struct {
			Monitoring     bool                 `json:"monitoring"`
			ActiveAccounts []string             `json:"active_accounts"`
			LastChecks     map[string]time.Time `json:"last_checks"`
		}
		if err := hubRequest(http.MethodGet, "/monitor/status", nil, &status); err != nil {
			return err
		}

		if !status.Monitoring {
			fmt.Println("Monitoring is not running")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "USERNAME\tLAST CHECK")
		for _, username := range status.ActiveAccounts {
			fmt.Fprintf(w, "%s\t%s\n", username, status.LastChecks[username].Format(time.RFC3339))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	monitorCmd.AddCommand(monitorStartCmd)
	monitorCmd.AddCommand(monitorStopCmd)
	monitorCmd.AddCommand(monitorStatusCmd)
	rootCmd.AddCommand(monitorCmd)
}

func runMessageCommand(method, path string) error {
	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := hubRequest(method, path, nil, &result); err != nil {
		return err
	}
	fmt.Println(result.Message)
	return nil
}

// hubRequest sends one request to the running hub and decodes the JSON
// response into out.
func hubRequest(method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequest(method, hubAddr+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	token := authToken
	if token == "" {
		token = os.Getenv("IGHUB_AUTH_TOKEN")
	}
	if token != "" {
		req.Header.Set("X-Auth-Token", token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("hub unreachable at %s: %w", hubAddr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("hub rejected the auth token")
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("not found: %s", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("hub returned %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
