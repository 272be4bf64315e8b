package main

import (
	"fmt"
	"os"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 12

// Prints an ADMIN_PASSWORD_HASH line for the relay's admin API.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: go run scripts/hash-password.go <password>\n")
		os.Exit(1)
	}

	password := os.Args[1]
	if utf8.RuneCountInString(password) < minPasswordLength {
		fmt.Fprintf(os.Stderr, "Warning: password is shorter than %d characters\n", minPasswordLength)
	}

	// bcrypt ignores bytes past 72.
	if len(password) > 72 {
		fmt.Fprintf(os.Stderr, "Error: password must be at most 72 bytes\n")
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("ADMIN_PASSWORD_HASH='%s'\n", hash)
}
