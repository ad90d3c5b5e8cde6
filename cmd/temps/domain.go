package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/temps/internal/paaserr"
	"github.com/cuemby/temps/internal/security"
	"github.com/cuemby/temps/internal/store"
	"github.com/cuemby/temps/internal/types"
)

var domainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Manage custom domains and their certificates",
}

var domainImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a domain certificate",
	Long: `Parse a PEM certificate chain and private key, refuse if the
certificate has already expired, warn if its SAN set does not cover the
domain, encrypt the private key and persist the domain row.

Exit codes: 0 success, 2 validation failure, 3 store failure.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, _ := cmd.Flags().GetString("domain")
		certPath, _ := cmd.Flags().GetString("certificate")
		keyPath, _ := cmd.Flags().GetString("private-key")
		force, _ := cmd.Flags().GetBool("force")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		if domain == "" || certPath == "" || keyPath == "" {
			fmt.Fprintln(os.Stderr, "--domain, --certificate and --private-key are all required")
			os.Exit(2)
		}

		pemChain, err := os.ReadFile(certPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading certificate: %v\n", err)
			os.Exit(2)
		}
		keyPEM, err := os.ReadFile(keyPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading private key: %v\n", err)
			os.Exit(2)
		}

		parsed, err := security.ParsePEMChain(string(pemChain))
		if err != nil {
			fmt.Fprintf(os.Stderr, "certificate rejected: %v\n", err)
			os.Exit(2)
		}

		if !parsed.CoversDomain(domain) && !force {
			fmt.Fprintf(os.Stderr, "certificate SAN set does not cover %q (pass --force to import anyway)\n", domain)
			os.Exit(2)
		} else if !parsed.CoversDomain(domain) {
			fmt.Fprintf(os.Stderr, "warning: certificate SAN set does not cover %q, importing anyway (--force)\n", domain)
		}

		svc, err := loadEncryptionService(dataDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}

		encryptedKey, err := svc.Encrypt(keyPEM)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encrypting private key: %v\n", err)
			os.Exit(2)
		}

		s, err := store.NewBoltStore(dataDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "opening store: %v\n", err)
			os.Exit(3)
		}
		defer s.Close()

		record := &types.DomainCertificate{
			Domain:              domain,
			PEMChain:            string(pemChain),
			EncryptedPrivateKey: encryptedKey,
			NotAfter:            parsed.NotAfter,
			IsWildcard:          strings.HasPrefix(domain, "*."),
			VerificationMethod:  types.VerificationManual,
			Status:              types.CertStatusActive,
			CreatedAt:           time.Now(),
			UpdatedAt:           time.Now(),
		}

		if existing, err := s.GetCertificate(domain); err == nil && existing != nil {
			record.CreatedAt = existing.CreatedAt
			if err := s.UpdateCertificate(record); err != nil {
				fmt.Fprintf(os.Stderr, "updating domain: %v\n", err)
				os.Exit(3)
			}
		} else if err := s.CreateCertificate(record); err != nil {
			fmt.Fprintf(os.Stderr, "creating domain: %v\n", err)
			os.Exit(3)
		}

		fmt.Printf("domain imported: %s (expires %s)\n", domain, parsed.NotAfter.Format(time.RFC3339))
		return nil
	},
}

var domainListCmd = &cobra.Command{
	Use:   "list",
	Short: "List imported domains",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")

		s, err := store.NewBoltStore(dataDir)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer s.Close()

		certs, err := s.ListCertificates()
		if err != nil {
			return fmt.Errorf("listing domains: %w", err)
		}

		if len(certs) == 0 {
			fmt.Println("no domains imported")
			return nil
		}

		fmt.Printf("%-32s %-10s %-22s %s\n", "DOMAIN", "STATUS", "EXPIRES", "WILDCARD")
		for _, c := range certs {
			wildcard := "no"
			if c.IsWildcard {
				wildcard = "yes"
			}
			fmt.Printf("%-32s %-10s %-22s %s\n", c.Domain, c.Status, c.NotAfter.Format(time.RFC3339), wildcard)
		}
		return nil
	},
}

func init() {
	domainCmd.AddCommand(domainImportCmd)
	domainCmd.AddCommand(domainListCmd)

	domainImportCmd.Flags().String("domain", "", "Domain name to import (required)")
	domainImportCmd.Flags().String("certificate", "", "Path to PEM certificate chain (required)")
	domainImportCmd.Flags().String("private-key", "", "Path to PEM private key (required)")
	domainImportCmd.Flags().Bool("force", false, "Import even if the SAN set does not cover --domain")
}

// loadEncryptionService reads the data directory's master key file. Its
// absence is a hard error requiring setup (spec §6).
func loadEncryptionService(dataDir string) (*security.EncryptionService, error) {
	keyPath := filepath.Join(dataDir, "encryption_key")
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, paaserr.Wrap(paaserr.KindValidation, fmt.Sprintf("master key file %s is missing, run setup first", keyPath), err)
	}
	return security.LoadMasterKey(strings.TrimSpace(string(raw)))
}
