package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"talksync/pkg/auth"
	"talksync/pkg/talk"
	"talksync/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored refresh tokens",
	Long: `Store, list and remove the refresh tokens used to obtain access tokens.

Tokens are kept in the system keyring when available and otherwise in an
encrypted file under the user config directory. A token in the group
config file always takes precedence.`,
}

var loginCmd = &cobra.Command{
	Use:   "login <group>",
	Short: "Store the refresh token of a group",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout <group>",
	Short: "Remove the stored refresh token of a group",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogout,
}

var listCredsCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored refresh tokens",
	Args:  cobra.NoArgs,
	RunE:  runListCredentials,
}

var guideCmd = &cobra.Command{
	Use:   "guide <group>",
	Short: "Explain where a group's refresh token comes from",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		auth.ShowRefreshTokenGuide(ui.Output, args[0])
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCredsCmd)
	authCmd.AddCommand(guideCmd)
}

func credentialManager() (*auth.Manager, error) {
	m, err := auth.NewManager()
	if err != nil {
		return nil, &exitError{code: 1, err: fmt.Errorf("failed to initialize credential manager: %w", err)}
	}
	return m, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	group := strings.TrimSpace(args[0])
	if _, ok := talk.LookupGroup(group); !ok {
		return &exitError{code: 1, err: fmt.Errorf("unknown group %q", group)}
	}

	m, err := credentialManager()
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Output, "Refresh token for %s: ", ui.Cyan(group))
	token, err := readSecret()
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("failed to read refresh token: %w", err)}
	}
	if token == "" {
		return &exitError{code: 1, err: fmt.Errorf("refresh token cannot be empty")}
	}

	if err := m.Store(&auth.Credential{Group: group, RefreshToken: token, LastModified: time.Now()}); err != nil {
		return &exitError{code: 1, err: err}
	}
	ui.PrintSuccess(fmt.Sprintf("Refresh token stored for %s (%s)", group, auth.MaskToken(token)))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	m, err := credentialManager()
	if err != nil {
		return err
	}
	if err := m.Delete(args[0]); err != nil {
		return &exitError{code: 1, err: err}
	}
	ui.PrintSuccess("Refresh token removed for " + args[0])
	return nil
}

func runListCredentials(cmd *cobra.Command, args []string) error {
	m, err := credentialManager()
	if err != nil {
		return err
	}
	creds, err := m.List()
	if err != nil {
		return &exitError{code: 1, err: err}
	}
	if len(creds) == 0 {
		ui.PrintWarning("No stored refresh tokens")
		return nil
	}

	tw := tabwriter.NewWriter(ui.Output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tTOKEN\tUPDATED")
	for _, c := range creds {
		updated := "-"
		if !c.LastModified.IsZero() {
			updated = c.LastModified.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Group, auth.MaskToken(c.RefreshToken), updated)
	}
	return tw.Flush()
}

// readSecret reads a line without echo when stdin is a terminal
func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(ui.Output)
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
