package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stallpos/auth-service/internal/client/gateway"
	"github.com/stallpos/auth-service/internal/client/offline"
	"github.com/stallpos/auth-service/internal/client/remote"
	"github.com/stallpos/auth-service/pkg/logger"
)

var (
	sessionToken string
	resetToken   string
	phone        string
	emailAddr    string
	secretWord   string
	code         string
	method       string
	contact      string
)

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change the password on the server and refresh the offline mirror",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(cmd.Context(), func(g *gateway.Gateway) error {
			token, err := onlineToken(cmd.Context(), g)
			if err != nil {
				return err
			}
			s, err := g.ChangePassword(cmd.Context(), token, password, newPassword)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password changed for %s\ntoken: %s\n", s.User.Username, s.Token)
			return nil
		})
	},
}

var recoveryCmd = &cobra.Command{
	Use:   "recovery",
	Short: "Manage the recovery details stored on the server",
}

var recoverySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update phone, email or secret word; the secret word is also kept for offline recovery",
	RunE: func(cmd *cobra.Command, args []string) error {
		var in remote.RecoveryUpdate
		if cmd.Flags().Changed("phone") {
			in.Phone = &phone
		}
		if cmd.Flags().Changed("email") {
			in.Email = &emailAddr
		}
		if cmd.Flags().Changed("secret-word") {
			in.SecretWord = &secretWord
		}
		if in.Phone == nil && in.Email == nil && in.SecretWord == nil {
			return errors.New("nothing to update: pass --phone, --email or --secret-word")
		}

		return withGateway(cmd.Context(), func(g *gateway.Gateway) error {
			token, err := onlineToken(cmd.Context(), g)
			if err != nil {
				return err
			}
			u, err := g.UpdateRecovery(cmd.Context(), token, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recovery details updated for %s\n", u.Username)
			return nil
		})
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Recover a forgotten password through the server",
}

var recoverCodeCmd = &cobra.Command{
	Use:   "code",
	Short: "Email a verification code to the account's recovery address",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newRemote().RequestCode(cmd.Context(), username, emailAddr); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "verification code sent to %s\n", emailAddr)
		return nil
	},
}

var recoverVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Exchange an emailed code for a reset token",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := newRemote().VerifyCode(cmd.Context(), emailAddr, code)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reset token: %s\n", token)
		return nil
	},
}

var recoverResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Set a new password with a reset token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(cmd.Context(), func(g *gateway.Gateway) error {
			res, err := g.ResetWithToken(cmd.Context(), resetToken, newPassword)
			return printReset(cmd, res, err)
		})
	},
}

var recoverContactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Set a new password by confirming the phone or email on file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(cmd.Context(), func(g *gateway.Gateway) error {
			res, err := g.ResetByContact(cmd.Context(), username, method, contact, newPassword)
			return printReset(cmd, res, err)
		})
	},
}

var recoverSecretWordCmd = &cobra.Command{
	Use:   "secret-word",
	Short: "Set a new password by giving the full secret word",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(cmd.Context(), func(g *gateway.Gateway) error {
			res, err := g.ResetWithSecretWord(cmd.Context(), username, secretWord, newPassword)
			return printReset(cmd, res, err)
		})
	},
}

func init() {
	passwdCmd.Flags().StringVarP(&username, "username", "u", "", "Account username")
	passwdCmd.Flags().StringVarP(&password, "password", "p", "", "Current password")
	passwdCmd.Flags().StringVar(&newPassword, "new-password", "", "New password")
	passwdCmd.Flags().StringVar(&sessionToken, "token", "", "Session token; skips the sign-in step")
	_ = passwdCmd.MarkFlagRequired("password")
	_ = passwdCmd.MarkFlagRequired("new-password")

	recoverySetCmd.Flags().StringVarP(&username, "username", "u", "", "Account username")
	recoverySetCmd.Flags().StringVarP(&password, "password", "p", "", "Current password")
	recoverySetCmd.Flags().StringVar(&sessionToken, "token", "", "Session token; skips the sign-in step")
	recoverySetCmd.Flags().StringVar(&phone, "phone", "", "Recovery phone, empty to clear")
	recoverySetCmd.Flags().StringVar(&emailAddr, "email", "", "Recovery email, empty to clear")
	recoverySetCmd.Flags().StringVar(&secretWord, "secret-word", "", "Secret word, 6-20 letters or digits")

	recoverCodeCmd.Flags().StringVarP(&username, "username", "u", "", "Account username")
	recoverCodeCmd.Flags().StringVar(&emailAddr, "email", "", "Recovery email on file")
	_ = recoverCodeCmd.MarkFlagRequired("username")
	_ = recoverCodeCmd.MarkFlagRequired("email")

	recoverVerifyCmd.Flags().StringVar(&emailAddr, "email", "", "Recovery email on file")
	recoverVerifyCmd.Flags().StringVar(&code, "code", "", "Six digit code from the email")
	_ = recoverVerifyCmd.MarkFlagRequired("email")
	_ = recoverVerifyCmd.MarkFlagRequired("code")

	recoverResetCmd.Flags().StringVar(&resetToken, "token", "", "Reset token from recover verify")
	_ = recoverResetCmd.MarkFlagRequired("token")

	recoverContactCmd.Flags().StringVarP(&username, "username", "u", "", "Account username")
	recoverContactCmd.Flags().StringVar(&method, "method", "", "phone or email")
	recoverContactCmd.Flags().StringVar(&contact, "contact", "", "Phone number or email on file")
	_ = recoverContactCmd.MarkFlagRequired("username")
	_ = recoverContactCmd.MarkFlagRequired("method")
	_ = recoverContactCmd.MarkFlagRequired("contact")

	recoverSecretWordCmd.Flags().StringVarP(&username, "username", "u", "", "Account username")
	recoverSecretWordCmd.Flags().StringVar(&secretWord, "secret-word", "", "The full secret word")
	_ = recoverSecretWordCmd.MarkFlagRequired("username")
	_ = recoverSecretWordCmd.MarkFlagRequired("secret-word")

	for _, c := range []*cobra.Command{recoverResetCmd, recoverContactCmd, recoverSecretWordCmd} {
		c.Flags().StringVar(&newPassword, "new-password", "", "New password")
		_ = c.MarkFlagRequired("new-password")
	}

	recoveryCmd.AddCommand(recoverySetCmd)
	recoverCmd.AddCommand(recoverCodeCmd, recoverVerifyCmd, recoverResetCmd, recoverContactCmd, recoverSecretWordCmd)
	rootCmd.AddCommand(passwdCmd, recoveryCmd, recoverCmd)
}

func newRemote() *remote.Client {
	return remote.New(cfg.Client.ServerURL, cfg.Client.Timeout)
}

func withGateway(ctx context.Context, fn func(*gateway.Gateway) error) error {
	return withMirror(ctx, func(m *offline.Mirror) error {
		return fn(gateway.New(newRemote(), m, logger.Component("gateway")))
	})
}

// onlineToken returns --token or signs in through the gateway. Changes that
// only the server can make fail when the sign-in fell back offline.
func onlineToken(ctx context.Context, g *gateway.Gateway) (string, error) {
	if sessionToken != "" {
		return sessionToken, nil
	}
	if username == "" || password == "" {
		return "", errors.New("pass --token, or --username and --password")
	}
	res, err := g.Login(ctx, username, password)
	if err != nil {
		return "", err
	}
	if res.Offline {
		return "", fmt.Errorf("signed in offline only: %w", remote.ErrUnreachable)
	}
	return res.Token, nil
}

func printReset(cmd *cobra.Command, res *remote.Reset, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "password reset for %s\n", res.User.Username)
	return nil
}
