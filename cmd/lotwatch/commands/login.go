package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"lotwatch/internal/auth"
	"lotwatch/internal/store"
	"time"

	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
)

var loginFlags struct {
	email    string
	password string
	token    string
	headless bool
	timeout  time.Duration
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to mac.bid and store the session for later commands.",
	Long: `Sign in through a chrome window and store the bearer token and cookies.

Pass --token to store a token copied from the browser instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := app.Store(ctx)
		if err != nil {
			return err
		}

		var cred store.Credential
		if loginFlags.token != "" {
			cred = store.Credential{Name: auth.DefaultCredentialName, Token: loginFlags.token}
			claims, err := auth.ParseJWT(loginFlags.token, app.clock.Now())
			switch {
			case err == nil:
				cred.CustomerID = claims.CustomerID
				cred.ExpiresAt = claims.ExpiresAt
			case errors.Is(err, auth.ErrNotJWT):
			default:
				return err
			}
		} else {
			email, password, err := loginPrompt()
			if err != nil {
				return err
			}
			slog.Info("opening browser", "headless", loginFlags.headless)
			cred, err = auth.BrowserLogin(ctx, auth.LoginOptions{
				Email:    email,
				Password: password,
				Headless: loginFlags.headless,
				Timeout:  loginFlags.timeout,
			})
			if err != nil {
				return err
			}
		}

		err = st.SaveCredential(ctx, cred)
		if err != nil {
			return err
		}
		if cred.ExpiresAt.IsZero() {
			fmt.Println("signed in")
			return nil
		}
		fmt.Printf(
			"signed in as customer %s, token expires %s\n",
			cred.CustomerID,
			cred.ExpiresAt.Local().Format(time.DateTime),
		)
		return nil
	},
}

// loginPrompt asks for whatever the flags and config did not provide.
func loginPrompt() (string, string, error) {
	email := loginFlags.email
	if email == "" {
		email = app.cfg.Auth.Email
	}
	password := loginFlags.password
	if password == "" {
		password = app.cfg.Auth.Password
	}

	ui := input.DefaultUI()
	var err error
	if email == "" {
		email, err = ui.Ask("mac.bid email:", &input.Options{Required: true, Loop: true})
		if err != nil {
			return "", "", err
		}
	}
	if password == "" {
		password, err = ui.Ask("mac.bid password:", &input.Options{Required: true, Loop: true, Mask: true})
		if err != nil {
			return "", "", err
		}
	}
	return email, password, nil
}

func init() {
	flags := loginCmd.Flags()
	flags.StringVar(&loginFlags.email, "email", "", "Account email, defaults to auth.email.")
	flags.StringVar(&loginFlags.password, "password", "", "Account password, defaults to auth.password.")
	flags.StringVar(&loginFlags.token, "token", "", "Store this bearer token instead of signing in.")
	flags.BoolVar(&loginFlags.headless, "headless", false, "Run chrome without a window.")
	flags.DurationVar(&loginFlags.timeout, "timeout", time.Minute*2, "Give up when no token shows up in time.")

	rootCmd.AddCommand(loginCmd)
}
