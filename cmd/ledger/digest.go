package main

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"voting-ledger/commitment"
)

const (
	CandidateKey   = "candidate"
	ParticipantKey = "participant"
	SecretKey      = "secret"
	SecretHexKey   = "secret-hex"
)

type digestOutput struct {
	Participant common.Address    `json:"participant"`
	Candidate   common.Address    `json:"candidate"`
	Secret      commitment.Secret `json:"secret"`
	Commitment  common.Hash       `json:"commitment"`
}

func digestCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "digest",
		Short: "Computes the commitment for a vote",
		Long: "Computes keccak256(candidate || secret || participant). Without --secret or\n" +
			"--secret-hex a random secret is generated; keep it for the reveal.",
		Args: cobra.NoArgs,
		RunE: digestFunc,
	}
	addDigestFlags(c.Flags())
	return c
}

func addDigestFlags(flags *pflag.FlagSet) {
	flags.String(CandidateKey, "", "Candidate address (required)")
	flags.String(ParticipantKey, "", "Participant address (required)")
	addSecretFlags(flags)
}

func addSecretFlags(flags *pflag.FlagSet) {
	flags.String(SecretKey, "", "Secret as text, at most 31 bytes")
	flags.String(SecretHexKey, "", "Secret as 32 hex-encoded bytes")
}

func digestFunc(c *cobra.Command, _ []string) error {
	flags := c.Flags()
	candidate, err := addressFlag(flags, CandidateKey)
	if err != nil {
		return err
	}
	participant, err := addressFlag(flags, ParticipantKey)
	if err != nil {
		return err
	}

	secret, ok, err := secretFlags(flags)
	if err != nil {
		return err
	}
	if !ok {
		if secret, err = commitment.NewSecret(); err != nil {
			return err
		}
	}

	return printJSON(c, digestOutput{
		Participant: participant,
		Candidate:   candidate,
		Secret:      secret,
		Commitment:  commitment.Digest(candidate, secret, participant),
	})
}

func addressFlag(flags *pflag.FlagSet, key string) (common.Address, error) {
	s, err := flags.GetString(key)
	if err != nil {
		return common.Address{}, err
	}
	if s == "" {
		return common.Address{}, fmt.Errorf("--%s is required", key)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("--%s: invalid address %q", key, s)
	}
	return common.HexToAddress(s), nil
}

// secretFlags reads --secret or --secret-hex. ok is false when neither is set.
func secretFlags(flags *pflag.FlagSet) (secret commitment.Secret, ok bool, err error) {
	text, err := flags.GetString(SecretKey)
	if err != nil {
		return secret, false, err
	}
	hex, err := flags.GetString(SecretHexKey)
	if err != nil {
		return secret, false, err
	}

	switch {
	case text != "" && hex != "":
		return secret, false, errors.New("--secret and --secret-hex are mutually exclusive")
	case text != "":
		secret, err = commitment.SecretFromString(text)
	case hex != "":
		secret, err = commitment.ParseSecret(hex)
	default:
		return secret, false, nil
	}
	return secret, err == nil, err
}
