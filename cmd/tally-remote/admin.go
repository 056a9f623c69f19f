package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/marcus/tally/internal/api"
	"github.com/marcus/tally/internal/serverdb"
)

func runAdmin(args []string) {
	if len(args) == 0 {
		printAdminUsage()
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "create-user":
		err = runAdminCreateUser(args[1:])
	case "create-key":
		err = runAdminCreateKey(args[1:])
	case "revoke-key":
		err = runAdminRevokeKey(args[1:])
	case "users":
		err = runAdminUsers(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown admin command: %s\n", args[0])
		printAdminUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, `Usage: tally-remote admin <command> [flags]

Commands:
  create-user  Create a user (or print the existing one)
  create-key   Create an API key for a user, creating the user if needed
  revoke-key   Revoke an API key
  users        List users and their keys`)
}

func newFlagSet(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet("admin "+name, pflag.ExitOnError)
	dbPath := fs.String("db", "", "path to the server database (default: TALLY_REMOTE_DB_PATH or ./data/tally-remote.db)")
	return fs, dbPath
}

func openDB(dbPath string) (*serverdb.ServerDB, error) {
	if dbPath == "" {
		dbPath = api.LoadConfig().ServerDBPath
	}
	store, err := serverdb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return store, nil
}

func runAdminCreateUser(args []string) error {
	fs, dbPath := newFlagSet("create-user")
	email := fs.String("email", "", "user email address")
	fs.Parse(args)
	if *email == "" {
		fs.Usage()
		return fmt.Errorf("--email is required")
	}

	store, err := openDB(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	user, err := store.EnsureUser(*email)
	if err != nil {
		return err
	}
	fmt.Printf("user %s\n  id: %s\n", user.Email, user.ID)
	return nil
}

func runAdminCreateKey(args []string) error {
	fs, dbPath := newFlagSet("create-key")
	email := fs.String("email", "", "owner email address")
	name := fs.String("name", "cli", "key name")
	ttl := fs.Duration("expires-in", 0, "key lifetime (0 = never expires)")
	fs.Parse(args)
	if *email == "" {
		fs.Usage()
		return fmt.Errorf("--email is required")
	}

	store, err := openDB(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	user, err := store.EnsureUser(*email)
	if err != nil {
		return err
	}

	var expiresAt *time.Time
	if *ttl > 0 {
		t := time.Now().Add(*ttl).UTC()
		expiresAt = &t
	}
	plaintext, ak, err := store.GenerateAPIKey(user.ID, *name, expiresAt)
	if err != nil {
		return err
	}

	fmt.Printf("created API key for %s\n", user.Email)
	fmt.Printf("  user id: %s\n", user.ID)
	fmt.Printf("  name:    %s\n", ak.Name)
	if ak.ExpiresAt != nil {
		fmt.Printf("  expires: %s\n", ak.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Printf("  key:     %s\n", plaintext)
	fmt.Println("\nSave this key now -- it will not be shown again.")
	return nil
}

func runAdminRevokeKey(args []string) error {
	fs, dbPath := newFlagSet("revoke-key")
	email := fs.String("email", "", "owner email address")
	keyID := fs.String("key", "", "key id (see: tally-remote admin users)")
	fs.Parse(args)
	if *email == "" || *keyID == "" {
		fs.Usage()
		return fmt.Errorf("--email and --key are required")
	}

	store, err := openDB(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	user, err := store.GetUserByEmail(*email)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user not found: %s", *email)
	}
	if err := store.RevokeAPIKey(*keyID, user.ID); err != nil {
		return err
	}
	fmt.Printf("revoked key %s\n", *keyID)
	return nil
}

func runAdminUsers(args []string) error {
	fs, dbPath := newFlagSet("users")
	fs.Parse(args)

	store, err := openDB(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	users, err := store.ListUsers()
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Printf("%s  %s\n", u.ID, u.Email)
		keys, err := store.ListAPIKeys(u.ID)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Printf("    %s  %s  %s...\n", k.ID, k.Name, k.KeyPrefix)
		}
	}
	return nil
}
