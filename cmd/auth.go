package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/tax-intake/internal/authflow"
)

// -- login --

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password, or as a guest",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "client", false, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		anonymous, _ := cmd.Flags().GetBool("anonymous")
		if anonymous {
			if err := env.Flow.LoginAnonymous(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed in as guest.")
			return nil
		}

		email, _ := cmd.Flags().GetString("email")
		password, err := flagOrPrompt(cmd, "password", "Password: ")
		if err != nil {
			return err
		}
		if err := env.Flow.Login(ctx, email, password); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s.\n", email)
		return nil
	},
}

// -- logout --

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored login",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "client", true, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		env.Flow.SignOut(ctx)
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

// -- signup --

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account; a guest account is converted in place",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "client", true, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		email, _ := cmd.Flags().GetString("email")
		password, err := flagOrPrompt(cmd, "password", "Password: ")
		if err != nil {
			return err
		}
		confirm, err := flagOrPrompt(cmd, "confirm", "Repeat password: ")
		if err != nil {
			return err
		}
		if err := env.Flow.Signup(ctx, email, password, confirm); err != nil {
			return userError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Account %s created.\n", email)
		return nil
	},
}

// -- reset-password --

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password",
	Short: "Email a password reset link",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "client", false, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		email, _ := cmd.Flags().GetString("email")
		if err := env.Flow.ResetPassword(ctx, email); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "A reset link was sent to %s.\n", email)
		return nil
	},
}

// -- delete-account --

var deleteAccountCmd = &cobra.Command{
	Use:   "delete-account",
	Short: "Delete the signed-in account and all its data",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := requireSignIn(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		phrase, err := flagOrPrompt(cmd, "confirm", fmt.Sprintf("Type %q to confirm: ", authflow.DeleteConfirmation))
		if err != nil {
			return err
		}
		if err := env.Flow.DeleteAccount(ctx, phrase); err != nil {
			return userError(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Account deleted.")
		return nil
	},
}

// -- oauth --

var oauthCmd = &cobra.Command{
	Use:   "oauth",
	Short: "Sign in through an external identity provider",
}

var oauthURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the provider sign-in URL",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "client", false, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		redirect, _ := cmd.Flags().GetString("redirect")
		u, err := env.Flow.OAuthURL(ctx, redirect)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), u)
		return nil
	},
}

var oauthCallbackCmd = &cobra.Command{
	Use:   "callback",
	Short: "Complete a provider sign-in with the returned code",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "client", false, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		code, _ := cmd.Flags().GetString("code")
		state, _ := cmd.Flags().GetString("state")
		if err := env.Flow.OAuthCallback(ctx, code, state); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s.\n", env.Session.Email())
		return nil
	},
}

// -- terms --

var termsCmd = &cobra.Command{
	Use:   "accept-terms",
	Short: "Record acceptance of the terms of use",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "client", false, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		revoke, _ := cmd.Flags().GetBool("revoke")
		return env.Flow.AcceptTerms(ctx, !revoke)
	},
}

// flagOrPrompt returns the flag value, asking on stdin when it is empty.
func flagOrPrompt(cmd *cobra.Command, name, prompt string) (string, error) {
	v, _ := cmd.Flags().GetString(name)
	if v != "" {
		return v, nil
	}
	return newLinePrompter(cmd.InOrStdin(), cmd.ErrOrStderr()).readLine(prompt)
}

func init() {
	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password (prompted when empty)")
	loginCmd.Flags().Bool("anonymous", false, "sign in as a guest")

	signupCmd.Flags().String("email", "", "account email")
	signupCmd.Flags().String("password", "", "new password (prompted when empty)")
	signupCmd.Flags().String("confirm", "", "repeat the new password (prompted when empty)")

	resetPasswordCmd.Flags().String("email", "", "account email")
	deleteAccountCmd.Flags().String("confirm", "", "confirmation phrase")

	oauthURLCmd.Flags().String("redirect", "http://localhost:8080/oauth/callback", "redirect URI registered with the provider")
	oauthCallbackCmd.Flags().String("code", "", "authorization code")
	oauthCallbackCmd.Flags().String("state", "", "state returned by the provider")
	oauthCmd.AddCommand(oauthURLCmd, oauthCallbackCmd)

	termsCmd.Flags().Bool("revoke", false, "withdraw acceptance")

	rootCmd.AddCommand(loginCmd, logoutCmd, signupCmd, resetPasswordCmd, deleteAccountCmd, oauthCmd, termsCmd)
}
