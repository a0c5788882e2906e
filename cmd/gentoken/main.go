// Generates an admin JWT for local API testing.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/campbase/server/internal/auth"
)

func main() {
	var (
		secret   = flag.String("secret", os.Getenv("JWT_SECRET"), "JWT signing secret")
		username = flag.String("username", "admin", "token subject")
		role     = flag.String("role", auth.RoleAdmin, "token role")
		expiry   = flag.Duration("expiry", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "Error: provide a secret via --secret or JWT_SECRET")
		os.Exit(1)
	}

	manager := auth.NewJWTManager(*secret, *expiry, "campbase")
	token, err := manager.Generate(*username, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("JWT Token:")
	fmt.Println(token)
	fmt.Println("\nTest with:")
	fmt.Printf("curl -H 'Authorization: Bearer %s' http://localhost:8080/api/v1/admin/payments\n", token)
}
