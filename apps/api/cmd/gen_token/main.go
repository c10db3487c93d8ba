// Command gen_token prints a session token for local API testing. Pass it as
// the negrostrees_session cookie.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	email := flag.String("email", "admin@example.com", "session email")
	role := flag.String("role", "app_user", "session role: app_user, head_user or public_user")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("APP_SIGNING_SECRET")
	if len(secret) < 16 {
		fmt.Fprintln(os.Stderr, "APP_SIGNING_SECRET must be set to at least 16 characters")
		os.Exit(1)
	}

	claims := jwt.MapClaims{
		"email": *email,
		"role":  *role,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(*ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(signed)
}
