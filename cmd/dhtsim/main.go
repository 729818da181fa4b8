// Command dhtsim runs a deterministic Kademlia DHT simulation from a
// YAML configuration file and a JSON scenario timeline, then optionally
// writes a final network-state snapshot.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/opd-ai/dhtsim/dht"
	"github.com/opd-ai/dhtsim/report"
	"github.com/opd-ai/dhtsim/scenario"
	"github.com/opd-ai/dhtsim/simconfig"
	"github.com/opd-ai/dhtsim/simnet"
	"github.com/sirupsen/logrus"
)

// CLIConfig holds command-line configuration options for the simulator.
type CLIConfig struct {
	configFile   string
	scenarioFile string
	seedIDHex    string
	seedAddrHex  string
	outputFile   string
	logLevel     string
	verbose      bool
	help         bool
}

// parseCLIFlags parses command-line flags and returns the configuration.
//
// Input flags: -config, -scenario, -seed-id, -seed-address
// Output flags: -output, -log-level, -verbose
// Help flag: -help
func parseCLIFlags() *CLIConfig {
	config := &CLIConfig{}

	flag.StringVar(&config.configFile, "config", "", "YAML configuration file (defaults are used if omitted)")
	flag.StringVar(&config.scenarioFile, "scenario", "", "JSON scenario file describing node joins, leaves, and file activity")
	flag.StringVar(&config.seedIDHex, "seed-id", "", "Hex-encoded ID for the bootstrap seed node (random if omitted)")
	flag.StringVar(&config.seedAddrHex, "seed-address", "", "Hex-encoded address for the bootstrap seed node (random if omitted)")
	flag.StringVar(&config.outputFile, "output", "", "Write the final network-state snapshot as JSON to this path")
	flag.StringVar(&config.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&config.verbose, "verbose", false, "Log to stderr instead of the configured logging.file")
	flag.BoolVar(&config.help, "help", false, "Show help message")

	flag.Parse()
	return config
}

func printUsage() {
	fmt.Println("Kademlia DHT deterministic simulator")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s -scenario scenario.json [options]\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s -scenario events.json -config sim.yaml -output state.json\n", os.Args[0])
}

func buildLogger(cfg simconfig.LoggingConfig, verbose bool) *logrus.Entry {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			logger.SetOutput(f)
		}
	}
	if verbose || cfg.Console {
		logger.SetOutput(os.Stderr)
	}
	return logrus.NewEntry(logger)
}

func run(cli *CLIConfig) error {
	cfg := simconfig.Default()
	if cli.configFile != "" {
		loaded, err := simconfig.Load(cli.configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if cli.logLevel != "" {
		cfg.Logging.Level = cli.logLevel
	}

	logger := buildLogger(cfg.Logging, cli.verbose)

	sim := simnet.NewSimulator(simnet.Config{
		TickMS:         cfg.Simulation.TimeTickMS,
		RandomSeed:     cfg.Simulation.RandomSeed,
		MinDelay:       cfg.Network.MinDelay,
		MaxDelay:       cfg.Network.MaxDelay,
		BasePacketLoss: cfg.Network.BasePacketLoss,
	}, logger)

	report.NewEventLogger(logger).Attach(sim)

	nodeCfg := dht.DefaultNodeConfig()
	nodeCfg.K = cfg.DHT.KValue
	nodeCfg.IDBits = cfg.DHT.IDBits

	seedID, err := idOrRandom(cli.seedIDHex, nodeCfg.IDBits, sim.RNG())
	if err != nil {
		return fmt.Errorf("dhtsim: invalid seed id: %w", err)
	}
	seedAddress, err := addressOrRandom(cli.seedAddrHex, 6, sim.RNG())
	if err != nil {
		return fmt.Errorf("dhtsim: invalid seed address: %w", err)
	}

	driver := scenario.NewDriver(sim, nodeCfg, seedID)
	driver.CreateSeedNode(seedID, seedAddress)
	sim.ScheduleEvent(dht.NewEvent(dht.EventNodeJoin, 0, map[string]interface{}{
		"node_id": seedID,
	}))

	if cli.scenarioFile != "" {
		if err := driver.LoadFile(cli.scenarioFile); err != nil {
			return err
		}
	}

	maxTime := int64(-1)
	if cfg.Simulation.MaxTime > 0 {
		maxTime = cfg.Simulation.MaxTime
	}
	sim.Run(maxTime)

	logger.WithFields(logrus.Fields{
		"final_time": sim.Now(),
		"node_count": sim.NodeCount(),
	}).Info("simulation complete")

	if cli.outputFile != "" {
		if err := report.WriteSnapshot(cli.outputFile, sim); err != nil {
			return err
		}
	}
	return nil
}

func idOrRandom(hexStr string, bits int, rng *rand.Rand) (dht.ID, error) {
	if hexStr == "" {
		return dht.RandomID(bits, rng), nil
	}
	return dht.IDFromHex(hexStr)
}

func addressOrRandom(hexStr string, length int, rng *rand.Rand) (dht.Address, error) {
	if hexStr == "" {
		return dht.Address(dht.RandomID(length*8, rng)), nil
	}
	return dht.AddressFromHex(hexStr)
}

func main() {
	cli := parseCLIFlags()
	if cli.help {
		printUsage()
		return
	}
	if cli.scenarioFile == "" {
		fmt.Fprintln(os.Stderr, "dhtsim: -scenario is required")
		printUsage()
		os.Exit(1)
	}

	if err := run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "dhtsim: %v\n", err)
		os.Exit(1)
	}
}
