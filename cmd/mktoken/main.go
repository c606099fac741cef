// Command mktoken issues a bearer token for an identity using the configured
// JWT secret. Intended for local development and operator scripts.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/atmx/binary-amm/internal/auth"
	"github.com/atmx/binary-amm/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("AMM_CONFIG"), "path to TOML config file")
	ttl := flag.Duration("ttl", 0, "token lifetime (default: auth.token_ttl)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: mktoken [-config path] [-ttl 24h] <identity>")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if len(cfg.Auth.JWTSecret) < 16 {
		fmt.Fprintln(os.Stderr, "auth.jwt_secret must be at least 16 bytes")
		os.Exit(1)
	}
	lifetime := cfg.Auth.TokenTTL.Duration
	if *ttl > 0 {
		lifetime = *ttl
	}

	tok, err := auth.NewSigner([]byte(cfg.Auth.JWTSecret), lifetime).Issue(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue token:", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
