package main

import (
	"flag"
	"fmt"
	"os"

	"grimm.is/palisade/cmd"
	"grimm.is/palisade/internal/brand"
	"grimm.is/palisade/internal/logging"
)

func main() {
	logging.SetPrefix(brand.BinaryName)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "start":
		startFlags := flag.NewFlagSet("start", flag.ExitOnError)
		configFile := startFlags.String("config", brand.DefaultConfigFile(), "Daemon configuration file")
		startFlags.StringVar(configFile, "c", brand.DefaultConfigFile(), "Daemon configuration file (short)")
		startFlags.Parse(os.Args[2:])

		if err := cmd.RunStart(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Start failed: %v\n", err)
			os.Exit(1)
		}

	case "compile":
		compileFlags := flag.NewFlagSet("compile", flag.ExitOnError)
		configFile := compileFlags.String("config", brand.DefaultConfigFile(), "Daemon configuration file")
		configRoot := compileFlags.String("root", "", "Override the cluster config root")
		compileFlags.Parse(os.Args[2:])

		if err := cmd.RunCompile(*configFile, *configRoot, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Compile failed: %v\n", err)
			os.Exit(1)
		}

	case "skeleton":
		cmd.RunSkeleton(os.Stdout)

	case "localnet":
		if err := cmd.RunLocalnet(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Localnet failed: %v\n", err)
			os.Exit(1)
		}

	case "teardown":
		teardownFlags := flag.NewFlagSet("teardown", flag.ExitOnError)
		configFile := teardownFlags.String("config", brand.DefaultConfigFile(), "Daemon configuration file")
		teardownFlags.Parse(os.Args[2:])

		if err := cmd.RunTeardown(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Teardown failed: %v\n", err)
			os.Exit(1)
		}

	case "diff":
		diffFlags := flag.NewFlagSet("diff", flag.ExitOnError)
		configFile := diffFlags.String("config", brand.DefaultConfigFile(), "Daemon configuration file")
		configRoot := diffFlags.String("root", "", "Override the cluster config root")
		diffFlags.Parse(os.Args[2:])

		if err := cmd.RunDiff(*configFile, *configRoot, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Diff failed: %v\n", err)
			os.Exit(1)
		}

	case "version", "-v", "--version":
		cmd.RunVersion(os.Stdout)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s - %s

Usage: %s <command> [options]

Commands:
  start      Run the firewall sync daemon
  compile    Print the command batch the current policy produces
  skeleton   Print the static base ruleset
  localnet   Print the detected management networks
  teardown   Remove the firewall tables from the engine
  diff       Compare the compiled batch against the last applied one
  version    Print version information
  help       Show this help

Options:
  -config <file>   Daemon configuration file (default %s)
  -root <dir>      Cluster config root for compile/diff (default from config)
`, brand.BinaryName, brand.Description, brand.BinaryName, brand.DefaultConfigFile())
}
