package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BurntSushi/toml"

	"github.com/intent-solutions-io/irsb-protocol/internal/node"
	"github.com/intent-solutions-io/irsb-protocol/internal/protocol"
	"github.com/intent-solutions-io/irsb-protocol/pkg/log"
)

type config struct {
	Node  nodeConfig  `toml:"node"`
	Roles rolesConfig `toml:"roles"`
	Log   logConfig   `toml:"log"`
}

type nodeConfig struct {
	DBPath        string `toml:"db_path"`
	ReputationURL string `toml:"reputation_url"`
}

type rolesConfig struct {
	// Hex-encoded 32-byte addresses
	Arbitrator string `toml:"arbitrator"`
	Treasury   string `toml:"treasury"`
}

type logConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func defaultConfig() config {
	return config{
		Node: nodeConfig{DBPath: "irsb-data"},
		Log:  logConfig{Level: "info", Format: "console"},
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

func parseAddress(s string) (protocol.Address, error) {
	var addr protocol.Address
	raw, err := hex.DecodeString(s)
	if err != nil {
		return addr, fmt.Errorf("address is not hex: %w", err)
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("address must be %d bytes, got %d", len(addr), len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

func run() error {
	configPath := flag.String("config", "", "path to TOML config file")
	dbPath := flag.String("db", "", "pebble store directory (overrides config)")
	logLevel := flag.String("log-level", "", "log level: trace|debug|info|warn|error")
	logFormat := flag.String("log-format", "", "log format: console|json")
	reputationURL := flag.String("reputation-url", "", "external reputation registry endpoint (overrides config)")
	arbitrator := flag.String("arbitrator", "", "hex arbitrator address (overrides config)")
	treasury := flag.String("treasury", "", "hex treasury address (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *dbPath != "" {
		cfg.Node.DBPath = *dbPath
	}
	if *reputationURL != "" {
		cfg.Node.ReputationURL = *reputationURL
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *arbitrator != "" {
		cfg.Roles.Arbitrator = *arbitrator
	}
	if *treasury != "" {
		cfg.Roles.Treasury = *treasury
	}

	level, err := log.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logType := log.ConsoleLogger
	if cfg.Log.Format == "json" {
		logType = log.JSONLogger
	}
	log.Init(log.Options{LogLevel: level, Type: logType})

	arbitratorAddr, err := parseAddress(cfg.Roles.Arbitrator)
	if err != nil {
		return fmt.Errorf("arbitrator: %w", err)
	}
	treasuryAddr, err := parseAddress(cfg.Roles.Treasury)
	if err != nil {
		return fmt.Errorf("treasury: %w", err)
	}

	n, err := node.New(node.Config{
		DBPath:        cfg.Node.DBPath,
		Arbitrator:    arbitratorAddr,
		Treasury:      treasuryAddr,
		ReputationURL: cfg.Node.ReputationURL,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			log.Root.Error().Err(err).Msg("closing store")
		}
	}()

	log.Root.Info().
		Str("db", cfg.Node.DBPath).
		Str("arbitrator", arbitratorAddr.String()).
		Str("treasury", treasuryAddr.String()).
		Msg("irsb node started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Root.Info().Str("signal", sig.String()).Msg("shutting down")
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "irsb:", err)
		os.Exit(1)
	}
}
