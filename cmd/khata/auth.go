package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/khata/internal/logging"
	ksync "github.com/mschirtzinger/khata/internal/sync"
	"github.com/mschirtzinger/khata/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "sync",
	Short:   "Sign in to Google Drive",
	Long: `Sign in to Google Drive and store the credential in the local cache.

khata requests access only to files it creates. Open the printed URL, approve
access, and paste the authorization code back (or pass it with --code).`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		code, _ := cmd.Flags().GetString("code")

		a, err := openApp(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		if a.provider == nil {
			fmt.Println("No sign-in needed with remote.backend=memory")
			return
		}
		if cfg.OAuth.ClientID == "" {
			fatalf("oauth.client_id is not configured (set it in the config file or KHATA_OAUTH_CLIENT_ID)")
		}

		url := a.provider.AuthCodeURL(uuid.NewString())
		if code == "" {
			code, err = ui.PromptAuthCode(url)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Open this URL and rerun with --code:\n  %s\n", url)
				fatalf("%v", err)
			}
		}

		cred, err := a.provider.Exchange(ctx, code)
		if err != nil {
			fatalf("sign-in failed: %v", err)
		}
		a.logger("auth").Printf("Stored credential %s for %s", logging.Token(cred.AccessToken), cred.Account)

		fmt.Printf("%s Signed in as %s\n", ui.RenderPass("✓"), cred.Account)

		// Push anything saved while signed out.
		lr := a.load(ctx)
		if lr.Pushed == nil && a.engine.Pending() {
			fmt.Println(ui.Outcome(a.engine.Save(ctx, ksync.Manual)))
		}
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "sync",
	Short:   "Forget the stored Google credential",
	Long: `Remove the stored credential. The ledger on this device is kept; changes
made while signed out are pushed after the next login.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp(cmd.Context())
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		if a.provider == nil {
			return
		}
		if err := a.provider.Logout(context.WithoutCancel(cmd.Context())); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Signed out\n", ui.RenderPass("✓"))
	},
}

func init() {
	loginCmd.Flags().String("code", "", "Authorization code from the consent page")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
