package main

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"voting-ledger/config"
	"voting-ledger/service"
)

const AdminKey = "admin"

var errAuditFailed = errors.New("journal audit failed")

func auditCommand() *cobra.Command {
	cfg := config.Default()
	c := &cobra.Command{
		Use:   "audit",
		Short: "Replays a stored journal and reports the tally and any discrepancies",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return auditFunc(c, cfg)
		},
	}
	cfg.BindFlags(c.Flags())
	addAuditFlags(c.Flags())
	return c
}

func addAuditFlags(flags *pflag.FlagSet) {
	flags.String(AdminKey, "", "Administrator address (default: read from the admin credentials)")
}

func auditFunc(c *cobra.Command, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if config.StoreKind(cfg.Store) == config.StoreMemory {
		return errors.New("a memory journal cannot be audited after the server exits")
	}

	admin, err := auditAdmin(c.Flags(), cfg)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := c.Context()
	store, closeStore, err := openStore(ctx, cfg, logger.Named("storage"))
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("failed to close journal store", zap.Error(err))
		}
	}()

	blocks, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load journal: %w", err)
	}

	report := service.Audit(blocks, admin)
	if err := printJSON(c, report); err != nil {
		return err
	}
	if !report.OK() {
		return errAuditFailed
	}
	return nil
}

func auditAdmin(flags *pflag.FlagSet, cfg *config.Config) (common.Address, error) {
	s, err := flags.GetString(AdminKey)
	if err != nil {
		return common.Address{}, err
	}
	if s != "" {
		return addressFlag(flags, AdminKey)
	}

	key, err := config.LoadAdminKey(cfg.AdminKeyPath())
	if err != nil {
		return common.Address{}, fmt.Errorf("pass --%s or provide the admin credentials: %w", AdminKey, err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}
