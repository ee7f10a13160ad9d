// Command hash-generator prints the bcrypt hash of an admin key, for use as
// TRYON_AUTH_ADMIN_KEY_HASH. The key is read from -key or, when omitted, from
// the first line of standard input.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// minKeyLength is the shortest accepted admin key.
const minKeyLength = 16

func main() {
	key := flag.String("key", "", "admin key to hash (read from stdin when empty)")
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	flag.Parse()

	hash, err := generate(*key, os.Stdin, *cost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash-generator: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

// generate hashes key, reading it from in when key is empty.
func generate(key string, in io.Reader, cost int) (string, error) {
	if key == "" {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		key = strings.TrimSpace(line)
	}
	if len(key) < minKeyLength {
		return "", fmt.Errorf("key must be at least %d characters", minKeyLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}
