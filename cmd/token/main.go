// Command token mints a session token for local development.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/omochice/realtime-chat/internal/auth"
)

type tokenConfig struct {
	JWTSecret string        `env:"JWT_SECRET,required=true"`
	TokenTTL  time.Duration `env:"TOKEN_TTL,default=360h"`
}

func main() {
	userID := flag.String("user", "", "User id carried in the _id claim")
	name := flag.String("name", "", "Display name")
	ttl := flag.Duration("ttl", 0, "Token lifetime (defaults to TOKEN_TTL)")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "User id is required. Use -user flag")
		os.Exit(2)
	}

	_ = godotenv.Load()
	var cfg tokenConfig
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	if *ttl == 0 {
		*ttl = cfg.TokenTTL
	}

	token, err := auth.IssueToken(cfg.JWTSecret, *userID, *name, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
