package main

import (
	"fmt"
	"log"
	"os"

	"github.com/booner/backend/pkg/utils/keygen"
	"github.com/booner/backend/pkg/utils/sshkeygen"
)

func main() {
	privateKeyPath, publicKeyPath, err := sshkeygen.DefaultKeyPaths(sshkeygen.DefaultKeyName)
	if err != nil {
		log.Fatalf("Failed to resolve key paths: %v", err)
	}
	if len(os.Args) > 1 {
		privateKeyPath = os.Args[1]
		publicKeyPath = privateKeyPath + ".pub"
	}

	fmt.Printf("Generating Ed25519 SSH key pair...\n")
	fmt.Printf("Private key: %s\n", privateKeyPath)
	fmt.Printf("Public key: %s\n", publicKeyPath)

	created, err := sshkeygen.GenerateEd25519KeyPair(privateKeyPath, publicKeyPath, "booner-orchestrator")
	if err != nil {
		log.Fatalf("Failed to generate key pair: %v", err)
	}
	if created {
		fmt.Printf("✓ Key pair generated successfully\n")
	} else {
		fmt.Printf("✓ Key pair already exists (skipped)\n")
	}

	encKey, err := keygen.GenerateEncryptionKey()
	if err != nil {
		log.Fatalf("Failed to generate encryption key: %v", err)
	}
	fmt.Printf("\nAdd the public key to authorized_keys on every deployment target and set\n")
	fmt.Printf("  access.key_path: %s\n", privateKeyPath)
	fmt.Printf("in config/targets.yaml. Suggested security.encryption_key:\n  %s\n", encKey)
}
