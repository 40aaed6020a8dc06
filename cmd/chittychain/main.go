package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/chittyos/chittychain/pkg/config"
	"github.com/chittyos/chittychain/pkg/crypto"
	"github.com/chittyos/chittychain/pkg/identity"
	"github.com/chittyos/chittychain/pkg/intake"
	"github.com/chittyos/chittychain/pkg/service"
	"github.com/chittyos/chittychain/pkg/store"

	_ "github.com/lib/pq" // Postgres Driver
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "validate":
		return runValidateCmd(stdout, stderr)
	case "audit":
		return runAuditCmd(args[2:], stdout, stderr)
	case "mint":
		return runMintCmd(stdout, stderr)
	case "status":
		return runStatusCmd(args[2:], stdout, stderr)
	case "check-signature":
		return runCheckSignatureCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "chittychain - evidence integrity and custody ledger")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: chittychain <command> [args]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  validate                 Walk the chain and report the first divergence")
	fmt.Fprintln(w, "  audit [artifact-id]      Export the audit trail as JSON lines")
	fmt.Fprintln(w, "  mint                     Mint every Ready artifact into one block")
	fmt.Fprintln(w, "  status <artifact-id>     Print one artifact's verification state")
	fmt.Fprintln(w, "  check-signature <id>     Re-verify an artifact's stored trust lock")
}

// buildService assembles the ledger core from environment configuration.
// Cleanup closes the backing store.
func buildService(cfg *config.Config) (*service.Service, func(), error) {
	if cfg.SigningKey == "" {
		return nil, nil, fmt.Errorf("SIGNING_KEY is not set")
	}
	signer, err := crypto.NewHMACSigner([]byte(cfg.SigningKey))
	if err != nil {
		return nil, nil, fmt.Errorf("init signer: %w", err)
	}

	var (
		st      *store.SQLStore
		cleanup func()
	)
	switch cfg.StoreBackend {
	case "postgres":
		st, err = store.OpenPostgres(cfg.DatabaseURL)
	case "sqlite":
		st, err = store.OpenSQLite(cfg.DatabasePath)
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	cleanup = func() { _ = st.Close() }

	dir, err := loadDirectory()
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	intakeOpts, err := loadProfileGate(cfg.ProfilesDir)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	svc, err := service.New(service.Config{
		Store:                  st,
		Signer:                 signer,
		Directory:              dir,
		CorroborationThreshold: cfg.CorroborationThreshold,
		IntakeOptions:          intakeOpts,
		Logger:                 slog.Default(),
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

// loadProfileGate loads jurisdiction profiles and builds the intake gate.
// A missing or empty profiles directory means no per-jurisdiction policy.
func loadProfileGate(profilesDir string) ([]intake.Option, error) {
	profiles, err := config.LoadAllProfiles(profilesDir)
	if err != nil {
		return nil, fmt.Errorf("load jurisdiction profiles: %w", err)
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	gate, err := intake.NewProfileGate(profiles)
	if err != nil {
		return nil, err
	}
	return []intake.Option{intake.WithProfileGate(gate)}, nil
}

// loadDirectory reads the submitter trust registry, a JSON object of
// submitter ID to composite trust score. Missing registry means an empty
// directory; financial-tier verification will then reject every submitter.
func loadDirectory() (identity.Directory, error) {
	path := os.Getenv("TRUST_REGISTRY_PATH")
	if path == "" {
		return identity.NewStaticDirectory(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trust registry: %w", err)
	}
	var scores map[string]float64
	if err := json.Unmarshal(data, &scores); err != nil {
		return nil, fmt.Errorf("parse trust registry %s: %w", path, err)
	}
	return identity.NewStaticDirectory(scores), nil
}

func runValidateCmd(stdout, stderr io.Writer) int {
	svc, cleanup, err := buildService(config.Load())
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	defer cleanup()

	report, err := svc.ValidateChain(context.Background())
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
	if !report.Valid {
		return 1
	}
	return 0
}

func runAuditCmd(args []string, stdout, stderr io.Writer) int {
	svc, cleanup, err := buildService(config.Load())
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	defer cleanup()

	filter := store.AuditFilter{}
	if len(args) > 0 {
		filter.ArtifactID = args[0]
	}
	res, err := svc.ExportAudit(context.Background(), filter, stdout)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	fmt.Fprintf(stderr, "%d entries, checksum sha256:%s\n", res.EntryCount, res.Checksum)
	return 0
}

func runMintCmd(stdout, stderr io.Writer) int {
	svc, cleanup, err := buildService(config.Load())
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	defer cleanup()

	b, err := svc.MintAllReady(context.Background(), "cli")
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	if b == nil {
		fmt.Fprintln(stdout, "nothing ready to mint")
		return 0
	}
	fmt.Fprintf(stdout, "minted block %d over %d artifacts (%s)\n", b.Index, len(b.ArtifactIDs), b.BlockHash)
	return 0
}

func runStatusCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: chittychain status <artifact-id>")
		return 2
	}
	svc, cleanup, err := buildService(config.Load())
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	defer cleanup()

	a, err := svc.Artifact(context.Background(), args[0])
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(a)
	return 0
}

func runCheckSignatureCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: chittychain check-signature <artifact-id>")
		return 2
	}
	svc, cleanup, err := buildService(config.Load())
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	defer cleanup()

	if err := svc.VerifyStoredSignature(context.Background(), args[0]); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	fmt.Fprintf(stdout, "trust lock on %s verifies\n", args[0])
	return 0
}
