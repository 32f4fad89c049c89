package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/pairing"
)

// pairingCmd operates directly on the configured pairing store, without
// starting the rest of the daemon — an operator tool for inspecting and
// correcting sender auth state from a shell.
func pairingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairing",
		Short: "Inspect and manage sender pairing state",
	}
	cmd.AddCommand(pairingListCmd())
	cmd.AddCommand(pairingVerifyCmd())
	cmd.AddCommand(pairingBlockCmd())
	cmd.AddCommand(pairingUnblockCmd())
	return cmd
}

func openPairingService() (*pairing.Service, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return pairing.NewService(pairing.Options{
		Path:                 config.ExpandHome(cfg.Auth.PairingDBPath),
		CodeTTL:              cfg.Auth.CodeTTL(),
		MaxMessagesPerMinute: cfg.Auth.MaxPerMinute(),
	})
}

func pairingListCmd() *cobra.Command {
	var channel string
	c := &cobra.Command{
		Use:   "list",
		Short: "List sender pairing records for a channel type",
		RunE: func(cmd *cobra.Command, args []string) error {
			if channel == "" {
				return fmt.Errorf("--channel is required")
			}
			svc, err := openPairingService()
			if err != nil {
				return err
			}
			for _, rec := range svc.GetAllSenders(channeltype.Type(channel)) {
				fmt.Printf("%-30s %-10s %s\n", rec.SenderID, rec.Status, rec.Label)
			}
			return nil
		},
	}
	c.Flags().StringVar(&channel, "channel", "", "channel type (discord, telegram, ...)")
	return c
}

func pairingVerifyCmd() *cobra.Command {
	var channel, code string
	c := &cobra.Command{
		Use:   "verify <sender-id>",
		Short: "Approve a sender by confirming their pairing code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if channel == "" || code == "" {
				return fmt.Errorf("--channel and --code are required")
			}
			svc, err := openPairingService()
			if err != nil {
				return err
			}
			ok, err := svc.VerifyPairing(args[0], channeltype.Type(channel), code)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("code did not match")
			}
			if err := svc.Flush(); err != nil {
				return err
			}
			fmt.Println("approved")
			return nil
		},
	}
	c.Flags().StringVar(&channel, "channel", "", "channel type")
	c.Flags().StringVar(&code, "code", "", "pairing code")
	return c
}

func pairingBlockCmd() *cobra.Command {
	var channel string
	c := &cobra.Command{
		Use:   "block <sender-id>",
		Short: "Block a sender on a channel type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if channel == "" {
				return fmt.Errorf("--channel is required")
			}
			svc, err := openPairingService()
			if err != nil {
				return err
			}
			if err := svc.BlockSender(args[0], channeltype.Type(channel)); err != nil {
				return err
			}
			if err := svc.Flush(); err != nil {
				return err
			}
			fmt.Println("blocked")
			return nil
		},
	}
	c.Flags().StringVar(&channel, "channel", "", "channel type")
	return c
}

func pairingUnblockCmd() *cobra.Command {
	var channel string
	c := &cobra.Command{
		Use:   "unblock <sender-id>",
		Short: "Unblock a previously blocked sender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if channel == "" {
				return fmt.Errorf("--channel is required")
			}
			svc, err := openPairingService()
			if err != nil {
				return err
			}
			if err := svc.UnblockSender(args[0], channeltype.Type(channel)); err != nil {
				return err
			}
			if err := svc.Flush(); err != nil {
				return err
			}
			fmt.Println("unblocked")
			return nil
		},
	}
	c.Flags().StringVar(&channel, "channel", "", "channel type")
	return c
}
