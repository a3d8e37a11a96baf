// Command token prints a bearer token signed with the configured auth.jwt_secret.
package main

import (
	"flag"
	"fmt"
	"os"

	"habittracker/internal/config"
	pkgconfig "habittracker/pkg/config"
	"habittracker/pkg/util"
)

func main() {
	subject := flag.String("sub", "habit-client", "token subject")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	flag.Parse()

	cfg, err := config.Load(pkgconfig.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "auth.jwt_secret is not set; the api is running without authentication")
		os.Exit(1)
	}

	lifetime := cfg.Auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, err := util.GenerateJWT(*subject, cfg.Auth.JWTSecret, lifetime)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
