package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Initialise the data directory's master encryption key",
	Long: `Generates the 64-hex-character master encryption key file the
Encryption Service requires (spec §4.10, §6). Refuses to overwrite an
existing key unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		force, _ := cmd.Flags().GetBool("force")

		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}

		keyPath := filepath.Join(dataDir, "encryption_key")
		if _, err := os.Stat(keyPath); err == nil && !force {
			return fmt.Errorf("%s already exists, pass --force to regenerate (this invalidates every stored secret)", keyPath)
		}

		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return fmt.Errorf("generate key: %w", err)
		}

		if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(raw)), 0600); err != nil {
			return fmt.Errorf("write key file: %w", err)
		}

		fmt.Printf("master encryption key written to %s\n", keyPath)
		return nil
	},
}

func init() {
	setupCmd.Flags().Bool("force", false, "Overwrite an existing key")
	rootCmd.AddCommand(setupCmd)
}
