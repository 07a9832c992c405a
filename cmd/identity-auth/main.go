// Command identity-auth asks an identityd server whether a credential belongs to a user.
//
// Exit status is 0 for "okay", 1 for "not okay" and 2 for any error.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"g10.app/identity/internal/client"
	"g10.app/identity/internal/config"
	"g10.app/identity/internal/protocol"
)

const (
	exitOkay    = 0
	exitNotOkay = 1
	exitError   = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("identity-auth", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", config.EnvString("IDENTITY_AUTH_ADDR", "127.0.0.1:6708"), "identityd address")
	user := fs.StringP("user", "u", "", "user name")
	password := fs.StringP("password", "p", "", "secret, hashed locally with SHA-256")
	digest := fs.String("digest", "", "pre-computed hex SHA-256 digest, sent verbatim")
	timeout := fs.Duration("timeout", 5*time.Second, "overall exchange timeout")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOkay
		}
		return exitError
	}

	if *user == "" {
		fmt.Fprintln(stderr, "identity-auth: --user is required")
		return exitError
	}
	passwordSet := fs.Changed("password")
	if passwordSet == (*digest != "") {
		fmt.Fprintln(stderr, "identity-auth: exactly one of --password and --digest is required")
		return exitError
	}

	c := client.New(*addr, *timeout)
	ctx := context.Background()
	var (
		outcome protocol.Outcome
		err     error
	)
	if passwordSet {
		outcome, err = c.Authenticate(ctx, *user, *password)
	} else {
		outcome, err = c.AuthenticateDigest(ctx, *user, *digest)
	}
	if err != nil {
		fmt.Fprintf(stderr, "identity-auth: %v\n", err)
		return exitError
	}

	fmt.Fprintln(stdout, outcome)
	if outcome != protocol.Granted {
		return exitNotOkay
	}
	return exitOkay
}
