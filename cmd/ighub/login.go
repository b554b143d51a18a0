package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const keyringService = "ighub"

var (
	savePassword bool
	fromKeyring  bool
)

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Log an account into a running hub",
	Long: `Log an Instagram account into a running hub.

The password is read from the system keychain when --keyring is set,
otherwise you are prompted for it. Pass --save to store the password in
the keychain for future logins.`,
	Example: `  # Prompt for the password
  ighub login myaccount

  # Prompt once, remember in the keychain
  ighub login myaccount --save

  # Reuse the stored password
  ighub login myaccount --keyring`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().BoolVar(&savePassword, "save", false, "store the password in the system keychain")
	loginCmd.Flags().BoolVar(&fromKeyring, "keyring", false, "read the password from the system keychain")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	username := strings.TrimSpace(args[0])

	password, err := resolvePassword(username)
	if err != nil {
		return err
	}

	if savePassword {
		if err := keyring.Set(keyringService, username, password); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to save password to keychain: %v\n", err)
		}
	}

	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := hubRequest(http.MethodPost, "/login", bytes.NewReader(body), &result); err != nil {
		return err
	}

	if !result.Success {
		return fmt.Errorf("login failed: %s", result.Message)
	}
	fmt.Println(result.Message)
	return nil
}

func resolvePassword(username string) (string, error) {
	if fromKeyring {
		password, err := keyring.Get(keyringService, username)
		if err != nil {
			return "", fmt.Errorf("no stored password for %s: %w", username, err)
		}
		return password, nil
	}

	fmt.Printf("Password for %s: ", username)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimSpace(string(raw))
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	return password, nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout <username>",
	Short: "Log an account out of a running hub",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := strings.TrimSpace(args[0])

		var result struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}
		if err := hubRequest(http.MethodPost, "/logout/"+username, nil, &result); err != nil {
			return err
		}

		// Drop the stored password too; a missing entry is fine.
		if err := keyring.Delete(keyringService, username); err != nil && err != keyring.ErrNotFound {
			fmt.Fprintf(os.Stderr, "warning: failed to remove password from keychain: %v\n", err)
		}

		fmt.Println(result.Message)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
