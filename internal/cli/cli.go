package cli

import (
	"fmt"
	"strconv"

	docopt "github.com/docopt/docopt-go"

	"jupyter-proxy-apps/internal/listener"
)

const Version = "0.3.0"

const usage = `
Auxiliary web services started by jupyter-server-proxy under JupyterHub.
Each service listens on loopback TCP or on a Unix domain socket handed over
by the proxy launcher.

  Usage:
    proxyapps bookmarks (-p <port> | -u <socket>) [-c <file>]
    proxyapps board (-p <port> | -u <socket>) [-c <file>]
    proxyapps notes (-p <port> | -u <socket>) [-c <file>]
    proxyapps typewords (-p <port> | -u <socket>) [-c <file>]
    proxyapps launcher-config [-c <file>] [-f <format>] [<service>...]
    proxyapps -h|--help
    proxyapps --version

  Options:
    -h --help                     Show this help screen.
    --version                     Show the proxyapps version number.
    -p --port <port>              Listen on TCP 127.0.0.1:<port>.
    -u --unix-socket <socket>     Listen on the Unix domain socket <socket>.
    -c --config <file>            TOML configuration file. Falls back to
                                  $CONFIG_FILE, then configs/config.toml.
    -f --format <format>          Launcher config format, json or yaml [default: json].
`

var services = []string{"bookmarks", "board", "notes", "typewords", "launcher-config"}

// Options is the parsed command line.
type Options struct {
	Service    string
	Address    listener.Address
	ConfigPath string
	Format     string
	Services   []string

	// Output holds help or version text when parsing was asked not to exit.
	Output string
}

// ParseCommandArgs converts command line arguments into Options. With exit
// set, help and version requests print and terminate the process the way
// docopt normally does; otherwise the text is returned in Options.Output.
func ParseCommandArgs(argv []string, exit bool) (Options, error) {
	var output string
	parser := &docopt.Parser{HelpHandler: docopt.PrintHelpAndExit}
	if !exit {
		parser.HelpHandler = func(err error, text string) {
			if err == nil {
				output = text
			}
		}
	}

	arguments, err := parser.ParseArgs(usage, argv, "proxyapps "+Version)
	if err != nil {
		return Options{}, fmt.Errorf("parse arguments failed: %w", err)
	}
	if output != "" {
		return Options{Output: output}, nil
	}

	var opts Options
	for _, name := range services {
		if set, _ := arguments[name].(bool); set {
			opts.Service = name
			break
		}
	}
	if opts.Service == "" {
		return Options{}, fmt.Errorf("no service selected")
	}

	if path, ok := arguments["--config"].(string); ok {
		opts.ConfigPath = path
	}

	if opts.Service == "launcher-config" {
		opts.Format, _ = arguments["--format"].(string)
		if opts.Format != "json" && opts.Format != "yaml" {
			return Options{}, fmt.Errorf("unknown format %q, want json or yaml", opts.Format)
		}
		opts.Services, _ = arguments["<service>"].([]string)
		return opts, nil
	}

	if socket, ok := arguments["--unix-socket"].(string); ok && socket != "" {
		opts.Address.UnixSocket = socket
		return opts, nil
	}
	portStr, _ := arguments["--port"].(string)
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Options{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	if port < 0 || port > 65535 {
		return Options{}, fmt.Errorf("port %v is not in range [0,65535]", port)
	}
	opts.Address.Port = port
	return opts, nil
}
