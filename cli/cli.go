// Package cli provides the command-line interface for actionq.
// It exports Run() and RunWithHooks() to allow extension by wrapper projects.
package cli

import (
	"fmt"
	"os"
)

// Version is the actionq release.
const Version = "0.3.0"

// Hooks allows extending the CLI with additional commands.
type Hooks struct {
	// BeforeDispatch is called before command dispatch.
	// Return (handled=true, exitCode) to skip normal dispatch.
	BeforeDispatch func(command string, args []string) (handled bool, exitCode int)

	// CustomHelp returns additional help text to append.
	CustomHelp func() string

	// CustomVersion returns version info to append (optional).
	CustomVersion func() string
}

// Run executes the CLI with the given arguments.
// Returns exit code (0 = success, non-zero = error).
func Run(args []string) int {
	return RunWithHooks(args, nil)
}

// RunWithHooks executes CLI with extension hooks.
func RunWithHooks(args []string, hooks *Hooks) int {
	if len(args) < 1 {
		printHelp(hooks)
		return 1
	}

	command := args[0]
	cmdArgs := args[1:]

	if hooks != nil && hooks.BeforeDispatch != nil {
		if handled, code := hooks.BeforeDispatch(command, cmdArgs); handled {
			return code
		}
	}

	switch command {
	case "serve":
		return runServe(cmdArgs)
	case "play":
		return runPlay(cmdArgs)
	case "encode":
		return runEncode(cmdArgs, os.Stdout)
	case "help", "-h", "--help":
		printHelp(hooks)
		return 0
	case "version", "--version":
		printVersion(hooks)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printHelp(hooks)
		return 1
	}
}

func printHelp(hooks *Hooks) {
	fmt.Println(`actionq - client action batching queue

Usage: actionq <command> [options] [file]

Commands:
  serve           Run the development action server
  play SCRIPT     Drive a queue from a YAML script against a server
  encode SCRIPT   Print the batch a script's actions serialize to
  help            Show this help
  version         Show version

Options:
  --config        TOML config file (default: config/actionq.toml)
  --transport     Transport: http, websocket
  --url           Game server action endpoint
  --no-gzip       Send uncompressed batches
  --schema        Action schema YAML file
  --watch-schema  Reload the schema file when it changes
  --host          Dev server listen address (default: 127.0.0.1)
  --port          Dev server listen port (default: 8686)
  --tick          Host tick interval (default: 100ms)
  --log-format    Log format: console, json
  -v, -vv, -vvv   Verbosity

Examples:
  actionq serve --port 8686 -vv
  actionq play --url http://127.0.0.1:8686/actions examples/session.yaml
  actionq play --transport websocket --url ws://127.0.0.1:8686/ws examples/session.yaml
  actionq encode --schema config/schema.yaml examples/session.yaml`)

	if hooks != nil && hooks.CustomHelp != nil {
		fmt.Println(hooks.CustomHelp())
	}
}

func printVersion(hooks *Hooks) {
	fmt.Println("actionq v" + Version)
	if hooks != nil && hooks.CustomVersion != nil {
		fmt.Println(hooks.CustomVersion())
	}
}
