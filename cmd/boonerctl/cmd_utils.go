package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/booner/backend/pkg/utils/crypto"
	"github.com/booner/backend/pkg/utils/keygen"
	"github.com/spf13/cobra"
)

func runEncrypt(cmd *cobra.Command, args []string) error {
	key := os.Getenv("BOONER_SECURITY_ENCRYPTION_KEY")
	if key == "" {
		return errors.New("BOONER_SECURITY_ENCRYPTION_KEY must be set to the server's encryption key")
	}
	sealed, err := crypto.Seal(args[0], key)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), sealed)
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	token, err := keygen.GenerateToken(tokenLength)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
