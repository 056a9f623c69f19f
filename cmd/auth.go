package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/marcus/tally/internal/config"
	"github.com/marcus/tally/internal/identity"
	"github.com/marcus/tally/internal/output"
	"github.com/marcus/tally/internal/remote"
)

var authCmd = &cobra.Command{
	Use:     "auth",
	Short:   "Manage the signed-in owner",
	GroupID: "system",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with an API key issued by tally-remote",
	Example: `  tally auth login --server https://tally.example.com
  tally auth login --key tally_live_...`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL, _ := cmd.Flags().GetString("server")
		if serverURL == "" {
			serverURL = cfg.Remote.URL
		}
		key, _ := cmd.Flags().GetString("key")
		if key == "" {
			var err error
			if key, err = promptKey(); err != nil {
				output.Error("%v", err)
				return err
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		user, err := remote.New(serverURL, key).CurrentUser(ctx)
		if err != nil {
			if errors.Is(err, remote.ErrUnauthorized) {
				err = fmt.Errorf("API key rejected by %s", serverURL)
			}
			reportErr(err)
			return err
		}

		creds := &identity.Credentials{
			APIKey:    key,
			UserID:    user.ID,
			Email:     user.Email,
			ServerURL: serverURL,
		}
		if err := identity.SaveCredentials(config.Dir(), creds); err != nil {
			output.Error("save credentials: %v", err)
			return err
		}
		return printJSONOr(user, func() {
			output.Success("Logged in as %s", user.Email)
		})
	},
}

func promptKey() (string, error) {
	fmt.Print("API key: ")
	var line string
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read key: %w", err)
		}
		line = string(b)
	} else {
		s, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && s == "" {
			return "", fmt.Errorf("read key: %w", err)
		}
		line = s
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("API key required")
	}
	return line, nil
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved API key",
	Long: `Forget the saved API key. Queued changes and cached records stay on
disk and are replayed after the next login.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := identity.ClearCredentials(config.Dir()); err != nil {
			output.Error("logout: %v", err)
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"whoami"},
	Short:   "Show who is signed in",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := credentials()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		owner, ok := creds.OwnerID()
		if !ok {
			if jsonOutput {
				return output.JSON(map[string]any{"authenticated": false})
			}
			fmt.Println("Not logged in. Run: tally auth login")
			return nil
		}
		return printJSONOr(map[string]any{
			"authenticated": true,
			"user_id":       owner,
			"email":         creds.Email,
			"server":        creds.ServerURL,
		}, func() {
			who := creds.Email
			if who == "" {
				who = owner
			}
			fmt.Printf("Logged in as %s\n", who)
			fmt.Printf("  Server: %s\n", creds.ServerURL)
			fmt.Printf("  Owner:  %s\n", owner)
		})
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd)
	authLoginCmd.Flags().String("server", "", "remote service URL (default: remote.url from config)")
	authLoginCmd.Flags().String("key", "", "API key; prompted when omitted")
}
