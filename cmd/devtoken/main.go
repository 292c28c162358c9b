// Command devtoken prints a bearer token for local testing of the API.
//
//	JWT_SECRET=... go run ./cmd/devtoken -user alice -ttl 24h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"emitrack/internal/auth"
	"emitrack/internal/cli"
)

func main() {
	user := flag.String("user", "", "user id to embed in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cli.LoadEnvFile()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" || *user == "" {
		fmt.Fprintln(os.Stderr, "usage: devtoken -user <id> [-ttl 24h] (JWT_SECRET must be set)")
		os.Exit(2)
	}

	token, err := auth.NewVerifier(secret).Sign(*user, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
