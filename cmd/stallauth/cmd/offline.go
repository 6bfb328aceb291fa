package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"

	"github.com/stallpos/auth-service/internal/client/gateway"
	"github.com/stallpos/auth-service/internal/client/offline"
	"github.com/stallpos/auth-service/internal/core/domain"
	"github.com/stallpos/auth-service/internal/pkg/config"
	"github.com/stallpos/auth-service/pkg/logger"
)

var (
	username    string
	password    string
	newPassword string
)

var offlineCmd = &cobra.Command{
	Use:   "offline",
	Short: "Manage the offline credential mirror on this device",
}

var offlineSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create or refresh the bootstrap accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMirror(cmd.Context(), func(m *offline.Mirror) error {
			if err := m.EnsureSeeds(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "offline seeds are up to date")
			return nil
		})
	},
}

var offlineLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Check credentials against the mirror without the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMirror(cmd.Context(), func(m *offline.Mirror) error {
			res, err := m.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in offline as %s (%s)\n", res.User.Username, res.User.Role)
			return nil
		})
	},
}

var offlinePasswdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Replace the offline verifier of a synced account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMirror(cmd.Context(), func(m *offline.Mirror) error {
			if _, err := m.Login(cmd.Context(), username, password); err != nil {
				return err
			}
			if err := m.UpdatePassword(cmd.Context(), username, newPassword); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "offline password updated")
			return nil
		})
	},
}

var offlineRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Reset the offline password by answering the secret word challenge",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMirror(cmd.Context(), func(m *offline.Mirror) error {
			positions, err := m.SecretWordChallenge(cmd.Context(), username)
			if err != nil {
				return err
			}
			answers, err := askPositions(cmd.InOrStdin(), cmd.OutOrStdout(), positions)
			if err != nil {
				return err
			}
			if err := m.RecoverWithSecretWord(cmd.Context(), username, positions, answers, newPassword); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "offline password reset")
			return nil
		})
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in against the server, falling back to the offline mirror",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(cmd.Context(), func(g *gateway.Gateway) error {
			res, err := g.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			if res.Offline {
				fmt.Fprintf(cmd.OutOrStdout(), "server unreachable; signed in offline as %s\n", res.User.Username)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\ntoken: %s\n", res.User.Username, res.Token)
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{offlineLoginCmd, offlinePasswdCmd, offlineRecoverCmd, loginCmd} {
		c.Flags().StringVarP(&username, "username", "u", "", "Account username")
		_ = c.MarkFlagRequired("username")
	}
	for _, c := range []*cobra.Command{offlineLoginCmd, offlinePasswdCmd, loginCmd} {
		c.Flags().StringVarP(&password, "password", "p", "", "Current password")
		_ = c.MarkFlagRequired("password")
	}
	for _, c := range []*cobra.Command{offlinePasswdCmd, offlineRecoverCmd} {
		c.Flags().StringVar(&newPassword, "new-password", "", "New password")
		_ = c.MarkFlagRequired("new-password")
	}

	offlineCmd.AddCommand(offlineSeedCmd, offlineLoginCmd, offlinePasswdCmd, offlineRecoverCmd)
	rootCmd.AddCommand(offlineCmd, loginCmd)
}

// seedsFrom turns the bootstrap admin settings into the mirror's seed set.
func seedsFrom(cfg *config.Config) []offline.Seed {
	if cfg.Bootstrap.AdminUsername == "" || cfg.Bootstrap.AdminPassword == "" {
		return nil
	}
	return []offline.Seed{{
		Username: cfg.Bootstrap.AdminUsername,
		Password: cfg.Bootstrap.AdminPassword,
		Role:     domain.RoleAdmin,
	}}
}

func withMirror(ctx context.Context, fn func(*offline.Mirror) error) error {
	store, err := offline.OpenBoltStorage(cfg.Client.OfflineDBPath, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return err
	}
	defer store.Close()

	m := offline.NewMirror(store, seedsFrom(cfg), logger.Component("offline"))
	if err := m.EnsureSeeds(ctx); err != nil {
		return err
	}
	return fn(m)
}

// askPositions prompts for one character per challenged position.
func askPositions(in io.Reader, out io.Writer, positions []int) (map[int]string, error) {
	scanner := bufio.NewScanner(in)
	answers := make(map[int]string, len(positions))
	for _, pos := range positions {
		fmt.Fprintf(out, "character #%d of your secret word: ", pos)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.ErrUnexpectedEOF
		}
		answers[pos] = strings.TrimSpace(scanner.Text())
	}
	return answers, nil
}
