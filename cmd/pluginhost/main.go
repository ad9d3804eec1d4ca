// Package main is the entry point for the plugin host command line.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tablefri/pluginhost/internal/app"
	"github.com/tablefri/pluginhost/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errUsage marks a command line that could not be understood.
var errUsage = errors.New("usage")

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pluginhost", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts app.Options
	var showVersion bool
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file")
	fs.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	fs.StringVar(&opts.PluginsDir, "plugins", "", "Plugins directory")
	fs.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.BoolVar(&showVersion, "version", false, "Show version information")
	fs.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "pluginhost - native plugin host\n\n")
		fmt.Fprintf(stderr, "Usage: pluginhost [options] <command> [args...]\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nCommands:\n")
		for _, c := range commands {
			fmt.Fprintf(stderr, "  %-34s %s\n", c.name+" "+c.args, c.help)
		}
		fmt.Fprintf(stderr, "\nEnvironment:\n")
		for _, name := range config.EnvVars() {
			fmt.Fprintf(stderr, "  %s\n", name)
		}
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if showVersion {
		fmt.Fprintf(stdout, "pluginhost %s\n", version)
		fmt.Fprintf(stdout, "Commit: %s\n", commit)
		fmt.Fprintf(stdout, "Built: %s\n", date)
		return 0
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}
	cmd, ok := lookupCommand(rest[0])
	if !ok {
		fmt.Fprintf(stderr, "Error: unknown command %q\n", rest[0])
		fs.Usage()
		return 2
	}
	cmdArgs := rest[1:]
	if len(cmdArgs) < cmd.minArgs || len(cmdArgs) > cmd.maxArgs {
		fmt.Fprintf(stderr, "Usage: pluginhost %s %s\n", cmd.name, cmd.args)
		return 2
	}

	if opts.LogOutput == nil {
		opts.LogOutput = stderr
	}
	application, err := app.New(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	defer application.Shutdown()

	out := newPrinter(stdout)
	if err := cmd.run(application, out, cmdArgs); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "Usage: pluginhost %s %s\n", cmd.name, cmd.args)
			return 2
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
