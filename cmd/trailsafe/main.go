package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/benmeehan/trailsafe/internal/utils"
	"github.com/benmeehan/trailsafe/pkg/file"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	if command == "help" {
		printUsage()
		return
	}

	fileClient := file.NewFileService()
	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(config)

	app := &app{config: config, fileClient: fileClient, logger: logger}
	switch command {
	case "run":
		err = app.handleRun(args)
	case "scan":
		err = app.handleScan(args)
	case "locate":
		err = app.handleLocate(args)
	case "devices":
		err = app.handleDevices(args)
	case "identity":
		err = app.handleIdentity(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		logger.Error().Err(err).Str("command", command).Msg("Command failed")
		os.Exit(1)
	}
}

func newLogger(config *utils.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(config.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if config.Logging.Console {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func printUsage() {
	fmt.Println(`trailsafe - live location tracking for TrailSafe trackers

Usage: trailsafe [--config <file>] <command> [options]

Commands:
  run                      Track every known device until interrupted
  scan                     Discover nearby TrailSafe trackers over Bluetooth
  locate <device-id>       Wait for a device's first fix and print directions
  devices list             List the signed-in user's devices
  devices add [flags]      Save a device
  devices remove <id>      Delete a device
  identity [flags]         Record the user id issued by the identity provider
  help                     Show this help message

Examples:
  trailsafe scan --timeout 10s
  trailsafe devices add --id AA:BB:CC:DD:EE:FF --transport ble --name "Asha"
  trailsafe locate AA:BB:CC:DD:EE:FF`)
}
