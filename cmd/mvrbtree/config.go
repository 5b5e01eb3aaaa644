package main

import (
	"flag"
	"fmt"

	"github.com/KilimcininKorOglu/mvrbtree/internal/config"
)

// configCmd handles the config command.
func configCmd(args []string) int {
	if len(args) == 0 {
		printConfigUsage(stdout)
		return 0
	}

	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(stdout)
		return 0
	}

	switch args[0] {
	case "validate":
		return configValidateCmd(args[1:])
	case "init":
		return configInitCmd(args[1:])
	case "show":
		return configShowCmd(args[1:])
	default:
		fmt.Fprintf(stderr, "Unknown config subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, "Run 'mvrbtree config help' for usage.")
		return 1
	}
}

// configValidateCmd handles the config validate subcommand.
func configValidateCmd(args []string) int {
	fs := flag.NewFlagSet("config validate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configFile := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *configFile == "" {
		return fail("-config is required")
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		return fail("invalid configuration: %v", err)
	}
	if errs := config.ValidateConfig(cfg); len(errs) > 0 {
		errorColor.Fprintln(stderr, "Configuration errors:")
		for _, e := range errs {
			fmt.Fprintf(stderr, "  - %s\n", e)
		}
		return 1
	}

	okColor.Fprintln(stdout, "Configuration is valid")
	return 0
}

// configInitCmd handles the config init subcommand.
func configInitCmd(args []string) int {
	fs := flag.NewFlagSet("config init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return printConfig(config.DefaultConfig())
}

// configShowCmd handles the config show subcommand.
func configShowCmd(args []string) int {
	fs := flag.NewFlagSet("config show", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags commonFlags
	flags.register(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := flags.loadConfig()
	if err != nil {
		return fail("%v", err)
	}
	return printConfig(cfg)
}

func printConfig(cfg *config.Config) int {
	data, err := config.Marshal(cfg)
	if err != nil {
		return fail("%v", err)
	}
	fmt.Fprint(stdout, "# mvrbtree configuration\n")
	stdout.Write(data)
	return 0
}
