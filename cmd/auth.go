// Package cmd implements the command-line interface for tannoy.
package cmd

import (
	"fmt"
	"syscall"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tannoy-player/tannoy/auth"
	"github.com/tannoy-player/tannoy/icon"
)

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authDeleteCmd)

	authSetCmd.Flags().StringP("token", "t", "", "Provide the token directly instead of prompting")
}

// authCmd manages the resolution service access token in the system keyring.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the resolution service access token",
}

var authSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the resolution service access token",
	Run: func(cmd *cobra.Command, args []string) {
		token := lo.Must(cmd.Flags().GetString("token"))

		if token == "" {
			cmd.Print("Token: ")
			raw, err := term.ReadPassword(int(syscall.Stdin))
			cmd.Println()
			handleErr(err)
			token = string(raw)
		}

		if token == "" {
			handleErr(fmt.Errorf("empty token"))
		}

		handleErr(auth.SetToken(token))
		fmt.Printf("%s Token stored\n", icon.Get(icon.Success))
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether an access token is stored",
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := auth.GetToken(); err != nil {
			fmt.Printf("%s No token stored\n", icon.Get(icon.Fail))
			return
		}
		fmt.Printf("%s Token present\n", icon.Get(icon.Success))
	},
}

var authDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored access token",
	Run: func(cmd *cobra.Command, args []string) {
		handleErr(auth.DeleteToken())
		fmt.Printf("%s Token removed\n", icon.Get(icon.Success))
	},
}
