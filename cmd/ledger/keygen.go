package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"voting-ledger/config"
)

const OutKey = "out"

func keygenCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "keygen",
		Short: "Generates a participant or administrator key",
		Args:  cobra.NoArgs,
		RunE:  keygenFunc,
	}
	addKeygenFlags(c.Flags())
	return c
}

func addKeygenFlags(flags *pflag.FlagSet) {
	flags.String(OutKey, "", "Write the credentials to this file instead of stdout only (must not exist)")
}

func keygenFunc(c *cobra.Command, _ []string) error {
	out, err := c.Flags().GetString(OutKey)
	if err != nil {
		return err
	}

	var creds config.AdminCredentials
	if out != "" {
		if _, err := os.Stat(out); err == nil {
			return fmt.Errorf("%s already exists", out)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		key, _, err := config.LoadOrGenerateAdminKey(out)
		if err != nil {
			return err
		}
		creds = config.NewAdminCredentials(key)
	} else {
		key, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		creds = config.NewAdminCredentials(key)
	}

	return printJSON(c, creds)
}

func printJSON(c *cobra.Command, v any) error {
	enc := json.NewEncoder(c.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
