// Package flagx holds helpers for sharing os.Args between several
// independent flag sets (config file lookup, server flags, CLI subcommands).
package flagx

import (
	"flag"
	"io"
	"os"
	"strings"
)

// ConfigFileEnv names the environment variable consulted when no config
// file flag is present.
const ConfigFileEnv = "SSO_CONFIG"

// FilterArgs returns the subset of args made of allowedFlags and their values.
//
// Both "-c conf.json" and "--config=conf.json" forms are kept. A token that
// follows an allowed flag is taken as its value unless it starts with "-".
// The result is never nil.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// ConfigFile extracts the config file path given via -c or -config in args
// (usually os.Args[1:]). Other arguments are ignored. When neither flag is
// present the SSO_CONFIG environment variable is used; "" means no file.
func ConfigFile(args []string) string {
	var config string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config", "--c", "--config"}))

	if config == "" {
		config = os.Getenv(ConfigFileEnv)
	}
	return config
}
