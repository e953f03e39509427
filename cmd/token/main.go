package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/eldtechnologies/chatrelay/internal/auth"
)

func main() {
	genKey := flag.Bool("genkey", false, "Generate an Ed25519 keypair for JWT_PUBLIC_KEY and exit")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HS256 secret (defaults to $JWT_SECRET)")
	privKeyB64 := flag.String("key", "", "Base64-encoded Ed25519 private key; signs EdDSA instead of HS256")
	userID := flag.String("user", "", "User id (userid claim)")
	username := flag.String("name", "", "Username claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *genKey {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Public key (base64):  %s\n", base64.StdEncoding.EncodeToString(pub))
		fmt.Printf("Private key (base64): %s\n", base64.StdEncoding.EncodeToString(priv))
		return
	}

	if *userID == "" || (*secret == "" && *privKeyB64 == "") {
		fmt.Fprintln(os.Stderr, "Usage: token -user <id> [-name <username>] [-ttl 24h] (-secret <s> | -key <private-key-base64>)")
		fmt.Fprintln(os.Stderr, "       token -genkey")
		os.Exit(1)
	}

	id := auth.Identity{UserID: *userID, Username: *username}

	var (
		token string
		err   error
	)
	if *privKeyB64 != "" {
		raw, decodeErr := base64.StdEncoding.DecodeString(*privKeyB64)
		if decodeErr != nil || len(raw) != ed25519.PrivateKeySize {
			fmt.Fprintln(os.Stderr, "Invalid private key")
			os.Exit(1)
		}
		token, err = auth.IssueEd25519(ed25519.PrivateKey(raw), id, *ttl)
	} else {
		token, err = auth.Issue(*secret, id, *ttl)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
