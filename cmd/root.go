// Package cmd implements the command-line interface for tannoy.
package cmd

import (
	"fmt"
	"os"
	"strings"

	cc "github.com/ivanpirog/coloredcobra"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tannoy-player/tannoy/color"
	"github.com/tannoy-player/tannoy/constant"
	"github.com/tannoy-player/tannoy/icon"
	"github.com/tannoy-player/tannoy/key"
	"github.com/tannoy-player/tannoy/log"
	"github.com/tannoy-player/tannoy/open"
	"github.com/tannoy-player/tannoy/server"
	"github.com/tannoy-player/tannoy/style"
	"github.com/tannoy-player/tannoy/util"
	"github.com/tannoy-player/tannoy/version"
	"github.com/tannoy-player/tannoy/where"
)

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print the application version")
	rootCmd.Flags().BoolP("open", "o", false, "Open the server address in the default browser once listening")

	rootCmd.Flags().StringP("host", "H", "", "Bind address for the HTTP server")
	lo.Must0(viper.BindPFlag(key.ServerHost, rootCmd.Flags().Lookup("host")))

	rootCmd.Flags().IntP("port", "p", 0, "Port for the HTTP server")
	lo.Must0(viper.BindPFlag(key.ServerPort, rootCmd.Flags().Lookup("port")))

	rootCmd.PersistentFlags().StringP("icons", "I", "", "Set the visual icon variant (e.g., nerd, emoji, square)")
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("icons", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return icon.AvailableVariants(), cobra.ShellCompDirectiveDefault
	}))
	lo.Must0(viper.BindPFlag(key.IconsVariant, rootCmd.PersistentFlags().Lookup("icons")))

	helpFunc := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		helpFunc(cmd, args)
		version.Notify()
	})

	// Initialize cleanup of localized temporary files on application startup.
	go func() {
		_ = util.Delete(where.Temp())
	}()
}

// rootCmd starts the queue server; everything else is tooling around it.
var rootCmd = &cobra.Command{
	Use:   constant.Tannoy,
	Short: "A personal media-queue server driving mpv",
	Long: constant.AsciiArtLogo + "\n" +
		style.New().Italic(true).Foreground(color.HiRed).Render("    - A personal media-queue server driving mpv"),
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("version") {
			versionCmd.Run(versionCmd, args)
			return
		}

		CheckDependencies()

		if lo.Must(cmd.Flags().GetBool("open")) {
			url := fmt.Sprintf("http://%s:%d", viper.GetString(key.ServerHost), viper.GetInt(key.ServerPort))
			if err := open.Start(url); err != nil {
				log.Warnf("open %s: %s", url, err)
			}
		}

		handleErr(server.Run())
	},
}

// Execute initializes child command routing and processes the CLI entry point.
func Execute() {
	if viper.GetBool(key.CliColored) {
		cc.Init(&cc.Config{
			RootCmd:       rootCmd,
			Headings:      cc.HiCyan + cc.Bold + cc.Underline,
			Commands:      cc.HiYellow + cc.Bold,
			Example:       cc.Italic,
			ExecName:      cc.Bold,
			Flags:         cc.Bold,
			FlagsDataType: cc.Italic + cc.HiBlue,
		})
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func handleErr(err error) {
	if err != nil {
		log.Error(err)
		_, _ = fmt.Fprintf(os.Stderr, "%s %s\n", icon.Get(icon.Fail), strings.Trim(err.Error(), " \n"))
		os.Exit(1)
	}
}
