package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"holidaze/internal/app/gateway"
)

var (
	authEmail    string
	authPassword string

	registerName    string
	registerManager bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and share the session with every open client",
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := passwordFrom(cmd.InOrStdin(), authPassword)
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app) error {
			snap, err := a.account.Login(cmd.Context(), authEmail, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", snap.Handle(), snap.User.Role())
			return nil
		})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := passwordFrom(cmd.InOrStdin(), authPassword)
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app) error {
			profile, err := a.account.Register(cmd.Context(), gateway.RegisterInput{
				Name:         registerName,
				Email:        authEmail,
				Password:     password,
				VenueManager: registerManager,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s. Sign in with: holidaze login --email %s\n", profile.Name, profile.Email)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out everywhere on this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.account.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			snap := a.account.Session.Snapshot()
			if !snap.IsAuthenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> (%s)\n", snap.User.Name, snap.User.Email, snap.User.Role())
			return nil
		})
	},
}

// passwordFrom returns flagValue, or the first line of in when the flag is empty.
func passwordFrom(in io.Reader, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv("HOLIDAZE_PASSWORD"); env != "" {
		return env, nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("a password is required (--password, HOLIDAZE_PASSWORD or stdin)")
	}
	return line, nil
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVar(&authEmail, "email", "", "account email")
		c.Flags().StringVar(&authPassword, "password", "", "account password (read from stdin when empty)")
		_ = c.MarkFlagRequired("email")
	}
	registerCmd.Flags().StringVar(&registerName, "name", "", "profile name")
	registerCmd.Flags().BoolVar(&registerManager, "venue-manager", false, "register as a venue manager")
	_ = registerCmd.MarkFlagRequired("name")

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd)
}
