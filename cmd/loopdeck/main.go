package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loopdeck/loopdeck/internal/client"
	"github.com/loopdeck/loopdeck/internal/config"
	"github.com/loopdeck/loopdeck/internal/daemon"
	"github.com/loopdeck/loopdeck/internal/digest"
	"github.com/loopdeck/loopdeck/internal/extension"
	"github.com/loopdeck/loopdeck/internal/logger"
	"github.com/loopdeck/loopdeck/internal/protocol"
	"github.com/loopdeck/loopdeck/internal/tui"
)

const usageText = `loopdeck - agent loop operator platform

Usage:
  loopdeck daemon [-config <path>]            run the control-plane daemon
  loopdeck dash   [-config <path>]            open the terminal dashboard
  loopdeck ext sign -package <path> -signer <id> -key-env <var> [-out <path>]
  loopdeck ext inspect -package <path> [-config <path>]
  loopdeck ext discover -package <path> [-config <path>]
  loopdeck grant add|revoke|list [-ext <id> -cap <capability> -scope <prefix>] [-ttl <seconds>]
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usageText)
		return fmt.Errorf("missing command")
	}

	switch args[0] {
	case "daemon":
		return runDaemon(args[1:])
	case "dash":
		return runDash(args[1:])
	case "ext":
		return runExt(args[1:])
	case "grant":
		return runGrant(args[1:])
	case "help", "-h", "--help":
		fmt.Print(usageText)
		return nil
	default:
		fmt.Fprint(os.Stderr, usageText)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func initLogger(cfg *config.Config) error {
	level := logger.ParseLevel(cfg.Daemon.LogLevel)
	if err := logger.Init(level, cfg.Daemon.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func runDaemon(args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "configuration file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}
	defer logger.Global().Close()

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}
	return d.Run(context.Background())
}

func runDash(args []string) error {
	fs := flag.NewFlagSet("dash", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "configuration file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	c := client.New(cfg.Daemon.SocketPath)
	if err := c.Connect(); err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer c.Close()

	return tui.Run(c)
}

func runExt(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: loopdeck ext sign|inspect|discover ...")
	}
	switch args[0] {
	case "sign":
		return runExtSign(args[1:])
	case "inspect":
		return runExtInspect(args[1:])
	case "discover":
		return runExtDiscover(args[1:])
	default:
		return fmt.Errorf("unknown ext subcommand %q", args[0])
	}
}

// runExtSign fills artifact digests from files next to the package when
// present, stamps the signature and writes the signed package back out.
func runExtSign(args []string) error {
	fs := flag.NewFlagSet("ext sign", flag.ContinueOnError)
	packagePath := fs.String("package", "", "path to the plugin package JSON")
	signer := fs.String("signer", "", "signer identity to stamp")
	keyEnv := fs.String("key-env", "", "environment variable holding the signing secret")
	outPath := fs.String("out", "", "output path (default: overwrite input)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *packagePath == "" || *signer == "" || *keyEnv == "" {
		return fmt.Errorf("ext sign requires -package, -signer and -key-env")
	}
	secret := os.Getenv(*keyEnv)
	if secret == "" {
		return fmt.Errorf("environment variable %s is empty", *keyEnv)
	}

	data, err := os.ReadFile(*packagePath)
	if err != nil {
		return fmt.Errorf("failed to read package: %w", err)
	}
	pkg, err := extension.DecodePluginPackage(data)
	if err != nil {
		return err
	}

	baseDir := filepath.Dir(*packagePath)
	for i := range pkg.Artifacts {
		artifactPath := filepath.Join(baseDir, pkg.Artifacts[i].Path)
		if _, err := os.Stat(artifactPath); err != nil {
			continue
		}
		sum, size, err := digest.File(artifactPath)
		if err != nil {
			return fmt.Errorf("failed to digest artifact %s: %w", pkg.Artifacts[i].Path, err)
		}
		pkg.Artifacts[i].Digest = sum
		pkg.Artifacts[i].SizeBytes = size
	}

	pkg.Signature.Signer = *signer
	extension.SignPluginPackage(pkg, secret)

	encoded, err := extension.EncodePluginPackage(pkg)
	if err != nil {
		return err
	}
	target := *outPath
	if target == "" {
		target = *packagePath
	}
	if err := os.WriteFile(target, encoded, 0644); err != nil {
		return fmt.Errorf("failed to write signed package: %w", err)
	}
	fmt.Printf("Signed %s as %s -> %s\n", pkg.Manifest.PluginID, *signer, target)
	return nil
}

func runExtInspect(args []string) error {
	fs := flag.NewFlagSet("ext inspect", flag.ContinueOnError)
	packagePath := fs.String("package", "", "path to the plugin package JSON")
	configPath := fs.String("config", config.DefaultConfigPath, "configuration file path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *packagePath == "" {
		return fmt.Errorf("ext inspect requires -package")
	}

	data, err := os.ReadFile(*packagePath)
	if err != nil {
		return fmt.Errorf("failed to read package: %w", err)
	}
	pkg, err := extension.DecodePluginPackage(data)
	if err != nil {
		return err
	}

	fmt.Printf("Plugin:      %s (%s)\n", pkg.Manifest.PluginID, pkg.Manifest.Name)
	fmt.Printf("Version:     %s\n", pkg.Manifest.Version)
	fmt.Printf("Entrypoint:  %s\n", pkg.Manifest.Entrypoint)
	fmt.Printf("Host API:    %s - %s\n", pkg.Manifest.MinHostAPI.String(), pkg.Manifest.MaxHostAPI.String())
	fmt.Printf("Signer:      %s (%s)\n", pkg.Signature.Signer, pkg.Signature.Algorithm)
	for _, perm := range pkg.Manifest.RequiredPermissions {
		fmt.Printf("Permission:  %s\n", perm.String())
	}
	for _, artifact := range pkg.Artifacts {
		fmt.Printf("Artifact:    %s (%d bytes, %s)\n", artifact.Path, artifact.SizeBytes, artifact.Digest)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := extension.VerifyPluginPackage(pkg, cfg.SignerTable()); err != nil {
		fmt.Printf("Signature:   INVALID (%v)\n", err)
		return nil
	}
	fmt.Println("Signature:   valid")
	return nil
}

func runGrant(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: loopdeck grant add|revoke|list ...")
	}
	verb := args[0]

	fs := flag.NewFlagSet("grant "+verb, flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "configuration file path")
	extID := fs.String("ext", "", "extension id")
	capability := fs.String("cap", "", "capability (FilesystemRead, FilesystemWrite, ProcessSpawn)")
	scope := fs.String("scope", "", "path or program prefix the grant covers")
	ttl := fs.Int64("ttl", 0, "grant lifetime in seconds (0 = never expires)")
	reason := fs.String("reason", "", "why the grant was issued")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	c := client.New(cfg.Daemon.SocketPath)
	if err := c.Connect(); err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer c.Close()

	switch verb {
	case "list":
		grants, err := c.Grants()
		if err != nil {
			return err
		}
		if len(grants) == 0 {
			fmt.Println("No grants")
			return nil
		}
		for _, g := range grants {
			expiry := "never expires"
			if g.ExpiresAtEpochS != nil {
				expiry = fmt.Sprintf("expires at %d", *g.ExpiresAtEpochS)
			}
			fmt.Printf("%s  %s  %s  (%s)\n", g.ExtensionID, g.Capability, g.Scope, expiry)
		}
		return nil
	case "add", "revoke":
		if *extID == "" || *capability == "" || *scope == "" {
			return fmt.Errorf("grant %s requires -ext, -cap and -scope", verb)
		}
		spec := protocol.GrantSpec{
			ExtensionID: *extID,
			Capability:  *capability,
			Scope:       *scope,
			GrantedBy:   "cli",
			Reason:      *reason,
		}
		if verb == "add" {
			if *ttl > 0 {
				expires := time.Now().Unix() + *ttl
				spec.ExpiresAtEpochS = &expires
			}
			if err := c.AddGrant(spec); err != nil {
				return err
			}
			fmt.Printf("Granted %s %s on %s\n", spec.ExtensionID, spec.Capability, spec.Scope)
			return nil
		}
		removed, err := c.RevokeGrant(spec)
		if err != nil {
			return err
		}
		fmt.Printf("Revoked %d grant(s)\n", removed)
		return nil
	default:
		return fmt.Errorf("unknown grant subcommand %q", verb)
	}
}

func runExtDiscover(args []string) error {
	fs := flag.NewFlagSet("ext discover", flag.ContinueOnError)
	packagePath := fs.String("package", "", "path to the plugin package JSON")
	configPath := fs.String("config", config.DefaultConfigPath, "configuration file path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *packagePath == "" {
		return fmt.Errorf("ext discover requires -package")
	}

	data, err := os.ReadFile(*packagePath)
	if err != nil {
		return fmt.Errorf("failed to read package: %w", err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	c := client.New(cfg.Daemon.SocketPath)
	if err := c.Connect(); err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer c.Close()

	info, err := c.DiscoverExtension(data)
	if err != nil {
		return err
	}
	fmt.Printf("Discovered %s %s (state: %s)\n", info.PluginID, info.Version, info.State)
	return nil
}
