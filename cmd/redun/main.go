package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"redun-go/internal/app"
	"redun-go/internal/block"
	"redun-go/internal/config"
	"redun-go/internal/digest"
	"redun-go/internal/encryption"
	"redun-go/internal/metadata"
	"redun-go/internal/redun"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a RedunApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Put", "Repair").
func newApp(operation string) (*app.RedunApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewRedunApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts on stderr and reads a passphrase from the terminal
// without echo. Tests replace it.
var readPassphrase = func(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// unlock asks for the passphrase when reading segments needs one.
func unlock(a *app.RedunApp) error {
	if !a.Locked() {
		return nil
	}
	passphrase, err := readPassphrase("Passphrase: ")
	if err != nil {
		return err
	}
	return a.Unlock(passphrase)
}

var rootCmd = &cobra.Command{
	Use:          "redun",
	Short:        "Triple-copy redundant storage",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Host ID:    %s\n", cfg.HostID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Hash:       %s\n", cfg.Redundancy.Hash)
		fmt.Printf("Block Size: %s\n", humanize.IBytes(uint64(cfg.Redundancy.BlockSize)))
		fmt.Printf("Max Blocks: %d\n", cfg.Redundancy.MaxBlocks)
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		fmt.Printf("Catalog:    %s %s\n", cfg.Catalog.Type, cfg.Catalog.DataDir)
		if len(cfg.Ignore) > 0 {
			fmt.Printf("Ignore:     %s\n", strings.Join(cfg.Ignore, " "))
		}
		for i, m := range cfg.MediaList() {
			fmt.Printf("%-11s %s (%s)\n", metadata.Roles[i].String()+":", m.Name, m.Type)
		}
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Generate the key pair that seals redundancy segments",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		passphrase, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return errors.New("passphrases do not match")
		}
		if passphrase == "" {
			return errors.New("passphrase is empty")
		}

		if err := encryption.NewAgeEncryptor(cfg.Encryption).Setup(passphrase); err != nil {
			return err
		}
		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		if cfg.Encryption.Type != "age" {
			fmt.Println("Set encryption type to \"age\" in the config to seal new segments.")
		}
		return nil
	},
}

// put command
var putCmd = &cobra.Command{
	Use:   "put NAME PATH [FILE2]",
	Short: "Store a file (split), a directory (tree) or a pair of files as a new data set",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Put")
		if err != nil {
			return err
		}
		defer a.Close()

		var ds *redun.DataSet
		switch {
		case len(args) == 3:
			ds, err = a.PutPair(args[0], args[1], args[2])
		case isDir(args[1]):
			ds, err = a.PutTree(args[0], args[1])
		default:
			ds, err = a.PutSplit(args[0], args[1])
		}
		if err != nil {
			return fmt.Errorf("put failed: %w", err)
		}

		fmt.Printf("Stored %s (%s, %s, %d blocks)\n", ds.Name, ds.Mode, humanize.IBytes(uint64(ds.Size)), ds.Blocks)
		return nil
	},
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// protect command
var protectCmd = &cobra.Command{
	Use:   "protect NAME",
	Short: "Rebuild the redundancy of a data set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Protect")
		if err != nil {
			return err
		}
		defer a.Close()

		ds, err := a.Protect(args[0])
		if err != nil {
			return fmt.Errorf("protect failed: %w", err)
		}

		fmt.Printf("Protected %s: %s\n", ds.Name, ds.RedundancyPath)
		return nil
	},
}

// check command
var checkCmd = &cobra.Command{
	Use:   "check NAME",
	Short: "Verify every copy of a data set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Check")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlock(a); err != nil {
			return err
		}

		report, err := a.Check(args[0])
		if err != nil {
			return fmt.Errorf("check failed: %w", err)
		}

		for _, c := range report.Copies {
			status := "ok"
			switch {
			case !c.Present:
				status = "missing"
			case !c.Healthy():
				status = "damaged"
			}
			fmt.Printf("%-10s  %-7s  hash:%-5t  meta:%-5t  intact:%d invalid:%d incomplete:%d  %s\n",
				c.Role, status, c.HashOK, c.MetaOK,
				c.Blocks.Intact, c.Blocks.Invalid, c.Blocks.Incomplete, c.Path)
		}
		if len(report.DamagedSegments) > 0 {
			fmt.Printf("Damaged segments: %s\n", strings.Join(report.DamagedSegments, ", "))
		}

		switch {
		case report.Healthy():
			fmt.Println("Healthy.")
		case report.Recoverable():
			fmt.Println("Damaged, recoverable: run `redun repair`.")
		default:
			fmt.Printf("Damaged, %d block(s) unrecoverable.\n", len(report.Unrecoverable))
		}
		return nil
	},
}

// repair command
var repairCmd = &cobra.Command{
	Use:   "repair NAME",
	Short: "Reconstruct damaged copies of a data set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Repair")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlock(a); err != nil {
			return err
		}

		res, err := a.Repair(args[0])
		if err != nil {
			return fmt.Errorf("repair failed: %w", err)
		}

		if !res.Changed() {
			fmt.Println("Nothing to repair.")
			return nil
		}
		for _, role := range res.Rebuilt {
			fmt.Printf("Rebuilt %s copy\n", role)
		}
		for _, seg := range res.Segments {
			fmt.Printf("Rewrote segment %s\n", seg)
		}
		for _, role := range res.Metas {
			fmt.Printf("Rewrote %s meta file\n", role)
		}
		fmt.Printf("Recovered %d block(s)\n", res.Blocks)
		return nil
	},
}

// get command
var getCmd = &cobra.Command{
	Use:   "get NAME OUT",
	Short: "Write the original content of a data set to a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		copyRole, _ := cmd.Flags().GetString("copy")
		prompt, _ := cmd.Flags().GetBool("unlock")

		a, err := newApp("Get")
		if err != nil {
			return err
		}
		defer a.Close()

		if prompt {
			if err := unlock(a); err != nil {
				return err
			}
		}

		out, err := os.OpenFile(args[1], os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}

		var n int64
		switch copyRole {
		case "":
			n, err = a.Get(args[0], out)
		case "primary":
			n, err = a.GetCopy(args[0], metadata.Primary, out)
		case "secondary":
			n, err = a.GetCopy(args[0], metadata.Secondary, out)
		default:
			err = fmt.Errorf("unknown copy %q", copyRole)
		}
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(args[1])
			return fmt.Errorf("get failed: %w", err)
		}

		fmt.Printf("Wrote %s to %s\n", humanize.IBytes(uint64(n)), args[1])
		return nil
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan FILE",
	Short: "Classify the blocks of a block stream file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hashName, _ := cmd.Flags().GetString("hash")
		offset, _ := cmd.Flags().GetInt("offset")
		verbose, _ := cmd.Flags().GetBool("verbose")

		h, err := digest.ByName(hashName)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		if offset < 0 || offset > len(data) {
			return fmt.Errorf("offset %d outside of %d byte file", offset, len(data))
		}

		var counts block.Counts
		for r := range block.Scan(data[offset:], h) {
			counts.Add(r.State)
			if verbose || r.State != block.Intact {
				size := 0
				if r.Block != nil {
					size = len(r.Block.Payload())
				}
				fmt.Printf("%10d  %-10s  %d\n", offset+r.Offset, r.State, size)
			}
		}

		fmt.Printf("intact:%d invalid:%d incomplete:%d\n", counts.Intact, counts.Invalid, counts.Incomplete)
		if !counts.Clean() {
			return errors.New("stream is damaged")
		}
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List data sets",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("List")
		if err != nil {
			return err
		}
		defer a.Close()

		sets, err := a.List()
		if err != nil {
			return err
		}

		if len(sets) == 0 {
			fmt.Println("No data sets.")
			return nil
		}

		for _, ds := range sets {
			fmt.Printf("%-20s  %-5s  %10s  %6d blocks  updated %s\n",
				ds.Name, ds.Mode, humanize.IBytes(uint64(ds.Size)), ds.Blocks, humanize.Time(ds.UpdatedAt))
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("History")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-8s  %-20s  %s  %-8s  %s\n",
				op.ID,
				op.Operation,
				op.Parameters,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
			)
		}
		return nil
	},
}

// media command
var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Show the configured media",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Media")
		if err != nil {
			return err
		}
		defer a.Close()

		for _, m := range a.Media() {
			status := "ok"
			if m.SetupErr != nil {
				status = m.SetupErr.Error()
			}
			space := "-"
			if m.HasUsage {
				space = fmt.Sprintf("%s free of %s", humanize.IBytes(m.Free), humanize.IBytes(m.Total))
			}
			fmt.Printf("%-10s  %-12s  %-10s  %s  %s\n", m.Role, m.Name, m.Type, space, status)
		}
		return nil
	},
}

// catalog command
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the catalog",
}

var catalogRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the local catalog with the newest snapshot on the media",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		version, err := app.RestoreCatalog(cfg)
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Printf("Catalog restored at version %d\n", version)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysCmd)

	// catalog subcommands
	catalogCmd.AddCommand(catalogRestoreCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(protectCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().String("copy", "", "Write only this copy (primary or secondary)")
	getCmd.Flags().BoolP("unlock", "u", false, "Prompt for the passphrase to read sealed segments")
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().String("hash", "sha1", "Block hash (sha1 or blake3)")
	scanCmd.Flags().Int("offset", 0, "Skip this many bytes before the first block")
	scanCmd.Flags().BoolP("verbose", "v", false, "Print intact blocks too")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(mediaCmd)
}
