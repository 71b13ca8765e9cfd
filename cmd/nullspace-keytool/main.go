package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"nullspace/go-auth/internal/securestore"
	"nullspace/go-auth/internal/vault"
)

const (
	exitOK           = 0
	exitInvalidInput = 10
	exitAuthFailed   = 20
	exitStoreFailed  = 30
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitInvalidInput)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "unlock":
		runUnlock(os.Args[2:])
	case "export":
		runExport(os.Args[2:])
	case "import":
		runImport(os.Args[2:])
	case "change-password":
		runChangePassword(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "delete":
		runDelete(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	default:
		printUsage()
		os.Exit(exitInvalidInput)
	}
}

func openVault(dataDir string) *vault.Vault {
	store, err := securestore.NewDirStore(dataDir)
	if err != nil {
		writeStderrln(err.Error(), exitStoreFailed)
	}
	return vault.New(store)
}

func resolvePassword(flagValue, envName string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	return os.Getenv(envName)
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	dataDir := fs.String("data-dir", ".", "vault data directory")
	password := fs.String("password", "", "vault password (or NS_VAULT_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	v := openVault(*dataDir)
	pubHex, err := v.Create(resolvePassword(*password, "NS_VAULT_PASSWORD"))
	if err != nil {
		writeStderrln(err.Error(), vaultExitCode(err))
		return
	}
	if err := printJSON(map[string]any{
		"created":    true,
		"public_key": pubHex,
	}); err != nil {
		writeStderrln(err.Error(), exitStoreFailed)
	}
	os.Exit(exitOK)
}

func runUnlock(args []string) {
	fs := flag.NewFlagSet("unlock", flag.ExitOnError)
	dataDir := fs.String("data-dir", ".", "vault data directory")
	password := fs.String("password", "", "vault password (or NS_VAULT_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	v := openVault(*dataDir)
	if err := v.Unlock(resolvePassword(*password, "NS_VAULT_PASSWORD")); err != nil {
		writeStderrln(err.Error(), vaultExitCode(err))
		return
	}
	pubHex, err := v.PublicKeyHex()
	if err != nil {
		writeStderrln(err.Error(), exitStoreFailed)
		return
	}
	if err := printJSON(map[string]any{
		"unlocked":   true,
		"public_key": pubHex,
	}); err != nil {
		writeStderrln(err.Error(), exitStoreFailed)
	}
	os.Exit(exitOK)
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dataDir := fs.String("data-dir", ".", "vault data directory")
	password := fs.String("password", "", "vault password (or NS_VAULT_PASSWORD)")
	asPhrase := fs.Bool("phrase", false, "emit a 24-word recovery phrase instead of hex")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	v := openVault(*dataDir)
	if err := v.Unlock(resolvePassword(*password, "NS_VAULT_PASSWORD")); err != nil {
		writeStderrln(err.Error(), vaultExitCode(err))
		return
	}
	defer v.Lock()

	var artifact string
	var err error
	if *asPhrase {
		artifact, err = v.ExportRecoveryPhrase()
	} else {
		artifact, err = v.ExportRecoveryKey()
	}
	if err != nil {
		writeStderrln(err.Error(), vaultExitCode(err))
		return
	}
	// The recovery artifact goes to stdout alone so it can be piped safely.
	writeStdoutln(exitStoreFailed, artifact)
	os.Exit(exitOK)
}

func runImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dataDir := fs.String("data-dir", ".", "vault data directory")
	recoveryKey := fs.String("recovery-key", "", "64 hex character recovery key")
	phrase := fs.String("phrase", "", "24-word recovery phrase")
	newPassword := fs.String("new-password", "", "new vault password (or NS_VAULT_NEW_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	if (*recoveryKey == "") == (*phrase == "") {
		writeStderrln("exactly one of --recovery-key or --phrase is required", exitInvalidInput)
	}

	v := openVault(*dataDir)
	pass := resolvePassword(*newPassword, "NS_VAULT_NEW_PASSWORD")
	var pubHex string
	var err error
	if *recoveryKey != "" {
		pubHex, err = v.ImportRecoveryKey(*recoveryKey, pass)
	} else {
		pubHex, err = v.ImportRecoveryPhrase(*phrase, pass)
	}
	if err != nil {
		writeStderrln(err.Error(), vaultExitCode(err))
		return
	}
	if err := printJSON(map[string]any{
		"imported":   true,
		"public_key": pubHex,
	}); err != nil {
		writeStderrln(err.Error(), exitStoreFailed)
	}
	os.Exit(exitOK)
}

func runChangePassword(args []string) {
	fs := flag.NewFlagSet("change-password", flag.ExitOnError)
	dataDir := fs.String("data-dir", ".", "vault data directory")
	password := fs.String("password", "", "current vault password (or NS_VAULT_PASSWORD)")
	newPassword := fs.String("new-password", "", "new vault password (or NS_VAULT_NEW_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	v := openVault(*dataDir)
	err := v.ChangePassword(
		resolvePassword(*password, "NS_VAULT_PASSWORD"),
		resolvePassword(*newPassword, "NS_VAULT_NEW_PASSWORD"),
	)
	if err != nil {
		writeStderrln(err.Error(), vaultExitCode(err))
		return
	}
	if err := printJSON(map[string]any{"changed": true}); err != nil {
		writeStderrln(err.Error(), exitStoreFailed)
	}
	os.Exit(exitOK)
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dataDir := fs.String("data-dir", ".", "vault data directory")
	password := fs.String("password", "", "vault password (or NS_VAULT_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	v := openVault(*dataDir)
	pubHex, err := v.MigrateLegacyKey(resolvePassword(*password, "NS_VAULT_PASSWORD"))
	if err != nil {
		writeStderrln(err.Error(), vaultExitCode(err))
		return
	}
	if err := printJSON(map[string]any{
		"migrated":   true,
		"public_key": pubHex,
	}); err != nil {
		writeStderrln(err.Error(), exitStoreFailed)
	}
	os.Exit(exitOK)
}

func runDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	dataDir := fs.String("data-dir", ".", "vault data directory")
	confirm := fs.Bool("yes", false, "confirm irreversible deletion")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	if !*confirm {
		writeStderrln("refusing to delete without --yes; the only recovery afterwards is the exported recovery key", exitInvalidInput)
	}

	v := openVault(*dataDir)
	if err := v.Delete(); err != nil {
		writeStderrln(err.Error(), vaultExitCode(err))
		return
	}
	if err := printJSON(map[string]any{"deleted": true}); err != nil {
		writeStderrln(err.Error(), exitStoreFailed)
	}
	os.Exit(exitOK)
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	dataDir := fs.String("data-dir", ".", "vault data directory")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	v := openVault(*dataDir)
	state, err := v.State()
	if err != nil {
		writeStderrln(err.Error(), exitStoreFailed)
		return
	}
	out := map[string]any{"state": state.String()}
	if pubHex, err := v.PublicKeyHex(); err == nil {
		out["public_key"] = pubHex
	}
	if err := printJSON(out); err != nil {
		writeStderrln(err.Error(), exitStoreFailed)
	}
	os.Exit(exitOK)
}

func vaultExitCode(err error) int {
	switch {
	case isOneOf(err, vault.ErrWeakPassword, vault.ErrInvalidRecoveryKey, vault.ErrVaultExists, vault.ErrVaultMissing):
		return exitInvalidInput
	case isOneOf(err, vault.ErrInvalidPassword, vault.ErrVaultLocked):
		return exitAuthFailed
	default:
		return exitStoreFailed
	}
}

func isOneOf(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	writeStdoutln(exitInvalidInput, "nullspace-keytool <command> [flags]")
	writeStdoutln(exitInvalidInput, "commands:")
	writeStdoutln(exitInvalidInput, "  init             --data-dir <path> --password <pw>")
	writeStdoutln(exitInvalidInput, "  unlock           --data-dir <path> --password <pw>")
	writeStdoutln(exitInvalidInput, "  export           --data-dir <path> --password <pw> [--phrase]")
	writeStdoutln(exitInvalidInput, "  import           --data-dir <path> (--recovery-key <hex64> | --phrase <words>) --new-password <pw>")
	writeStdoutln(exitInvalidInput, "  change-password  --data-dir <path> --password <old> --new-password <new>")
	writeStdoutln(exitInvalidInput, "  migrate          --data-dir <path> --password <pw>")
	writeStdoutln(exitInvalidInput, "  delete           --data-dir <path> --yes")
	writeStdoutln(exitInvalidInput, "  status           --data-dir <path>")
}

func writeStdoutln(exitCode int, line string) {
	if _, err := fmt.Fprintln(os.Stdout, line); err != nil {
		os.Exit(exitCode)
	}
}

func writeStderrln(line string, exitCode int) {
	if _, err := fmt.Fprintln(os.Stderr, line); err != nil {
		os.Exit(exitCode)
	}
	os.Exit(exitCode)
}
