package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	kongyaml "github.com/alecthomas/kong-yaml"
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	kongcompletion "github.com/jotaen/kong-completion"
	"github.com/posener/complete"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
	"k8s.io/klog/v2"
)

// Context carries the global flags into each command's Run method.
type Context struct {
	ConfigPath string
	LogLevel   string
}

type CLI struct {
	Config   string `default:"devrig.toml" predictor:"toml" placeholder:"<manifest-path>" help:"path to the project manifest"`
	LogFile  string `default:"" placeholder:"<log-file-path>" help:"location of devrig's own debug log (leave empty for <project>/.devrig/devrig.log)"`
	LogLevel string `default:"info" placeholder:"<debug|info|warn|error>" help:"the logging level (debug, info, warn, error)"`

	Up         UpCmd                     `cmd:"" help:"bring the project up: containers, cluster, telemetry, and supervised services"`
	Stop       StopCmd                   `cmd:"" aliases:"down" help:"stop the project's processes and containers, preserving state and volumes"`
	Delete     DeleteCmd                 `cmd:"" help:"tear the project down completely: containers, volumes, network, cluster, and state"`
	Reset      ResetCmd                  `cmd:"" help:"clear container init-completed flags so init scripts run again on the next up"`
	Ls         LsCmd                     `cmd:"" help:"list devrig projects known on this machine"`
	Env        EnvCmd                    `cmd:"" help:"print the environment devrig would inject into a service"`
	Exec       ExecCmd                   `cmd:"" help:"execute a command inside one of the project's managed containers"`
	Forward    ForwardCmd                `cmd:"" help:"tunnel a local port into a managed container over certificate-authenticated SSH"`
	Query      QueryCmd                  `cmd:"" help:"query the running project's traces, logs, and metrics from the terminal"`
	ConfigCmd  ConfigCmd                 `cmd:"" name:"config" help:"inspect the project manifest"`
	Doctor     DoctorCmd                 `cmd:"" help:"check that the external tools the manifest needs are installed"`
	Doc        DocCmd                    `cmd:"" help:"print complete command help formatted as markdown"`
	Version    VersionCmd                `cmd:"" help:"print version information about this command"`
	Completion kongcompletion.Completion `cmd:"" help:"output shell code for initialising tab completion"`
}

// initSlog routes devrig's own diagnostics to a rotating log file so
// they never interleave with supervised services' output on the
// terminal.
func (c *CLI) initSlog() {
	var level slog.Level
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logFile := c.LogFile
	if logFile == "" {
		if _, err := os.Stat(c.Config); err == nil {
			logFile = filepath.Join(filepath.Dir(c.Config), ".devrig", "devrig.log")
		} else {
			// No manifest here (ls, doc, version); don't scatter .devrig
			// directories around.
			logFile = filepath.Join(os.TempDir(), "devrig.log")
		}
	}
	_ = os.MkdirAll(filepath.Dir(logFile), 0o755)

	sink := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    20, // megabytes
		MaxBackups: 2,
	}
	logger := slog.New(slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// client-go logs through klog; hand it a logr.Logger backed by zap
	// writing to the same file so kubeconfig plumbing doesn't spray the
	// terminal.
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{logFile}
	if zl, err := zcfg.Build(); err == nil {
		var klogSink logr.Logger = zapr.NewLogger(zl)
		klog.SetLogger(klogSink)
	}
}

const description = `Run a whole microservice development stack from one manifest.

devrig reads devrig.toml and brings up containers, an ephemeral
Kubernetes cluster, an embedded telemetry collector, and your own
service processes, in dependency order, with one command.`

func main() {
	var cli CLI

	parser := kong.Must(&cli,
		kong.Name("devrig"),
		kong.Description(description),
		kong.Configuration(kongyaml.Loader, "~/.config/devrig/cli.yaml"),
	)
	kongcompletion.Register(parser,
		kongcompletion.WithPredictor("toml", complete.PredictFiles("*.toml")),
	)

	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	cli.initSlog()

	err = ctx.Run(&Context{
		ConfigPath: cli.Config,
		LogLevel:   cli.LogLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "devrig: %v\n", err)
		os.Exit(1)
	}
}
