// Command zugzug is a thin host around the sandboxed scripting core: it
// parses a data directory, builds a default Custom-preset sandbox
// rooted there, and exits. The core itself is a library — this binary
// exists mainly to exercise internal/engine and internal/sandbox from
// outside their own test suites.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ipochto/zug-zug/internal/config"
	"github.com/ipochto/zug-zug/internal/engine"
	"github.com/ipochto/zug-zug/internal/sandbox"
	"github.com/ipochto/zug-zug/pkg/zlog"
)

const usageText = `zugzug - sandboxed Lua scripting host

Usage:
  zugzug [-d|--data <path>] [-c|--config <path>]

Options:
  -h, --help          Show this help and exit.
  -d, --data <path>   Root directory of the Custom-preset sandbox; scripts are readable only under the config's allowedPaths.
  -c, --config <path> Path to a zugzug.yaml config file (default: none, built-in defaults apply).
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("zugzug", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usageText) }

	var help bool
	var dataPath string
	var configPath string
	fs.BoolVar(&help, "h", false, "show usage")
	fs.BoolVar(&help, "help", false, "show usage")
	fs.StringVar(&dataPath, "d", "", "script data root")
	fs.StringVar(&dataPath, "data", "", "script data root")
	fs.StringVar(&configPath, "c", "", "config file path")
	fs.StringVar(&configPath, "config", "", "config file path")

	if err := fs.Parse(args); err != nil {
		// fs.Usage already printed the usage text for us.
		return 1
	}
	if help {
		fmt.Fprint(stdout, usageText)
		return 0
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if dataPath != "" {
		cfg.ScriptRoot = dataPath
	}

	if err := zlog.Init(zlog.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, OutputPath: cfg.LogPath}); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer zlog.Sync()

	host := engine.NewLimited(cfg.MemoryLimit)
	defer host.Close()

	sb := sandbox.New(host, sandbox.Custom, cfg.ScriptRoot, cfg.AllowedPaths, stdout)
	zlog.Info("sandbox ready", zap.String("preset", sb.Preset().String()), zap.String("scriptRoot", cfg.ScriptRoot))

	return 0
}
