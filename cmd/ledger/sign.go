package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"voting-ledger/api"
	"voting-ledger/auth"
	"voting-ledger/config"
)

const (
	KeyKey        = "key"
	KeyFileKey    = "key-file"
	CommitmentKey = "commitment"
)

func signCommand() *cobra.Command {
	c := &cobra.Command{
		Use:       "sign <commit|reveal|stop>",
		Short:     "Prints a signed request body for the ledger API",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{api.ActionCommit, api.ActionReveal, api.ActionStop},
		RunE:      signFunc,
	}
	addSignFlags(c.Flags())
	return c
}

func addSignFlags(flags *pflag.FlagSet) {
	flags.String(KeyKey, "", "Hex private key of the caller")
	flags.String(KeyFileKey, "", "Credentials file written by keygen, instead of --key")
	flags.String(CommitmentKey, "", "Commitment to submit (commit)")
	flags.String(CandidateKey, "", "Candidate address (reveal)")
	addSecretFlags(flags)
}

func signFunc(c *cobra.Command, args []string) error {
	flags := c.Flags()
	key, err := signingKey(flags)
	if err != nil {
		return err
	}

	var payload any
	switch action := args[0]; action {
	case api.ActionCommit:
		s, err := flags.GetString(CommitmentKey)
		if err != nil {
			return err
		}
		var hash common.Hash
		if err := hash.UnmarshalText([]byte(s)); err != nil {
			return fmt.Errorf("--%s: %w", CommitmentKey, err)
		}
		payload = api.CommitPayload{Action: action, Commitment: hash}
	case api.ActionReveal:
		candidate, err := addressFlag(flags, CandidateKey)
		if err != nil {
			return err
		}
		secret, ok, err := secretFlags(flags)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("--%s or --%s is required", SecretKey, SecretHexKey)
		}
		payload = api.RevealPayload{Action: action, Candidate: candidate, Secret: secret}
	case api.ActionStop:
		payload = api.StopPayload{Action: action}
	default:
		return fmt.Errorf("unknown action %q", action)
	}

	env, err := auth.SignJSON(payload, key)
	if err != nil {
		return err
	}
	// Indenting would change the signed payload bytes.
	return json.NewEncoder(c.OutOrStdout()).Encode(env)
}

func signingKey(flags *pflag.FlagSet) (*ecdsa.PrivateKey, error) {
	hexKey, err := flags.GetString(KeyKey)
	if err != nil {
		return nil, err
	}
	keyFile, err := flags.GetString(KeyFileKey)
	if err != nil {
		return nil, err
	}

	switch {
	case hexKey != "" && keyFile != "":
		return nil, fmt.Errorf("--%s and --%s are mutually exclusive", KeyKey, KeyFileKey)
	case hexKey != "":
		return auth.ParsePrivateKey(hexKey)
	case keyFile != "":
		return config.LoadAdminKey(keyFile)
	default:
		return nil, errors.New("a signing key is required, use --key or --key-file")
	}
}
