package main

import (
	"fmt"
	"os"
	"time"

	"go-relayer/internal/config"

	"github.com/pquerna/otp/totp"
)

// Prints the current TOTP code for the configured admin secret, useful for
// logging in from a machine without an authenticator app.
func main() {
	secret := os.Getenv("ADMIN_TOTP_SECRET")
	if secret == "" {
		if err := config.LoadConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		secret = config.AppConfig.Admin.TOTPSecret
	}
	if secret == "" {
		fmt.Fprintln(os.Stderr, "no TOTP secret: set ADMIN_TOTP_SECRET or admin.totp_secret in config")
		os.Exit(1)
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate TOTP code: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Current TOTP code: %s (valid ~30s)\n", code)
}
