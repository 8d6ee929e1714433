package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowRefreshTokenGuide explains where a group's refresh token comes from
// and where talksync looks for it
func ShowRefreshTokenGuide(w io.Writer, group string) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "REFRESH TOKEN FOR GROUP %q\n", group)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The messaging app stores a long-lived refresh token after login.")
	fmt.Fprintln(w, "talksync exchanges it for a short-lived access token on every run.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "talksync looks for the token in this order:")
	fmt.Fprintf(w, "  1. \"token\" in %sConfig.json\n", group)
	fmt.Fprintln(w, "  2. the system keyring (talksync auth login)")
	fmt.Fprintln(w, "  3. the encrypted credentials file (talksync auth login)")
	fmt.Fprintf(w, "  4. the %s environment variable\n", EnvVar(group))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The token grants full access to the account. Never share it.")
	fmt.Fprintln(w, rule)
}
