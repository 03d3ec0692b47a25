//go:build ignore

// genhash prints bcrypt hashes for seeding local_identities rows.
//
//	go run scripts/genhash.go admin@example.sa 'S3cret-pass'
package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	if len(os.Args) < 3 || len(os.Args)%2 == 0 {
		fmt.Fprintln(os.Stderr, "usage: genhash <email> <password> [<email> <password> ...]")
		os.Exit(2)
	}

	for i := 1; i+1 < len(os.Args); i += 2 {
		email, pass := os.Args[i], os.Args[i+1]
		hash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
		if err != nil {
			fmt.Println("Error:", err)
			continue
		}
		fmt.Printf("-- %s\nINSERT INTO local_identities (email, password_hash) VALUES ('%s', '%s');\n\n", email, email, string(hash))
	}
}
