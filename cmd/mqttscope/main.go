// mqttscope watches an MQTT broker from the terminal.
//
// It connects to one broker, subscribes to a topic filter (all topics by
// default) and either streams every status line and message to stdout or
// keeps a live table of the latest value per topic. Configuration is
// loaded from a YAML file discovered automatically (see
// [config.DefaultSearchPaths]); every broker setting can be given on
// the command line instead.
//
// Usage:
//
//	mqttscope -url tcp://broker:1883 watch          Stream messages
//	mqttscope -url tcp://broker:1883 -topic 'home/#' table
//	                                                Live topic table
//	mqttscope init [dir]                            Write an example config
//	mqttscope version                               Print build information
//	mqttscope -o json version                       Build information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/mqttscope/internal/buildinfo"
	"github.com/nugget/mqttscope/internal/config"
	"github.com/nugget/mqttscope/internal/events"
	"github.com/nugget/mqttscope/internal/mqtt"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run].
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// cliFlags holds the parsed command line. Broker fields override the
// config file when non-empty.
type cliFlags struct {
	configPath string
	outputFmt  string
	url        string
	topic      string
	username   string
	password   string
	protocol   string
}

// run is the real entry point. Cancelling ctx stops the session the same
// way SIGINT does. Status lines and messages go to stdout, logs to
// stderr.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	// Parse arguments by hand. The flag package relies on package-level
	// globals, which makes it impossible to call run() concurrently from
	// tests.
	var f cliFlags
	var command string
	var cmdArgs []string

	valueFlags := map[string]*string{
		"-config":   &f.configPath,
		"-url":      &f.url,
		"-topic":    &f.topic,
		"-username": &f.username,
		"-password": &f.password,
		"-protocol": &f.protocol,
		"-o":        &f.outputFmt,
		"--output":  &f.outputFmt,
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if name, value, ok := strings.Cut(arg, "="); ok {
			if dst, known := valueFlags[name]; known {
				*dst = value
				continue
			}
		}
		if dst, known := valueFlags[arg]; known {
			if i+1 >= len(args) {
				return fmt.Errorf("flag %s needs a value", arg)
			}
			*dst = args[i+1]
			i++ // skip the value
			continue
		}
		switch {
		case arg == "-h" || arg == "-help" || arg == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(arg, "-") && command == "":
			command = arg
		case command != "" && !strings.HasPrefix(arg, "-"):
			cmdArgs = append(cmdArgs, arg)
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	// Default to human-readable text output.
	if f.outputFmt == "" {
		f.outputFmt = "text"
	}
	if f.outputFmt != "text" && f.outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", f.outputFmt)
	}

	if command != "init" && len(cmdArgs) > 0 {
		return fmt.Errorf("unexpected argument: %s", cmdArgs[0])
	}

	switch command {
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "watch":
		return runWatch(ctx, stdout, stderr, f)
	case "table":
		return runTable(ctx, stdout, stderr, f)
	case "version":
		return runVersion(stdout, f.outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Read()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, info.String())
	for _, f := range info.Fields() {
		fmt.Fprintf(w, "  %-12s %s\n", f[0]+":", f[1])
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "mqttscope - MQTT broker watcher")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: mqttscope [flags] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  watch        Stream status lines and messages until interrupted")
	fmt.Fprintln(w, "  table        Show the latest value per topic, redrawn periodically")
	fmt.Fprintln(w, "  init [dir]   Write an example mqttscope.yaml (default: .)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>     Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -url <url>         Broker URL (tcp, mqtt, ssl, tls, mqtts, ws, wss)")
	fmt.Fprintln(w, "  -topic <filter>    Subscription filter (default: #)")
	fmt.Fprintln(w, "  -username <name>   Username; sent only together with -password")
	fmt.Fprintln(w, "  -password <pass>   Password")
	fmt.Fprintln(w, "  -protocol <ver>    MQTT version: 5 (default) or 3.1.1")
	fmt.Fprintln(w, "  -o, --output fmt   Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintf(w, "  %s\n", strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

// prepare resolves the configuration, applies command-line overrides
// and builds the logger and connection request. A config file is
// optional when -url is given, but one that exists must load.
func prepare(stderr io.Writer, f cliFlags) (*config.Config, *slog.Logger, mqtt.Request, error) {
	cfg, _, err := loadConfig(f.configPath)
	switch {
	case err == nil:
	case errors.Is(err, config.ErrNotFound) && f.configPath == "" && f.url != "":
		cfg = config.Default()
	default:
		return nil, nil, mqtt.Request{}, err
	}

	overrides := []struct {
		value string
		dst   *string
	}{
		{f.url, &cfg.Broker.URL},
		{f.topic, &cfg.Broker.Topic},
		{f.username, &cfg.Broker.Username},
		{f.password, &cfg.Broker.Password},
		{f.protocol, &cfg.Broker.Protocol},
	}
	for _, o := range overrides {
		if o.value != "" {
			*o.dst = o.value
		}
	}
	if !cfg.Broker.Configured() {
		return nil, nil, mqtt.Request{}, errors.New("no broker configured: pass -url or set broker.url in the config file")
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, mqtt.Request{}, err
	}
	logger := newLogger(stderr, level, cfg.LogFormat)

	req, err := mqtt.RequestFromConfig(cfg.Broker)
	if err != nil {
		return nil, nil, mqtt.Request{}, err
	}
	return cfg, logger, req, nil
}

// host runs one session and feeds its events to a view. It is shared by
// the watch and table commands.
type host struct {
	cfg    *config.Config
	logger *slog.Logger
	req    mqtt.Request

	// onEvent renders one event. A write error ends the host.
	onEvent func(events.Event) error
	// onTick, when set, is called every Output.TableIntervalSec and once
	// more after the session ends.
	onTick func(*mqtt.Handle) error
}

// serve starts the session and blocks until it ends. SIGINT, SIGTERM or
// cancelling ctx stops the session; if the broker stays silent for
// Output.StopGraceSec afterwards the session is aborted.
func (hs *host) serve(ctx context.Context) error {
	bus := events.New()
	ch := bus.Subscribe(hs.cfg.Output.Buffer)
	defer bus.Unsubscribe(ch)

	h, err := mqtt.Start(context.Background(), hs.req, mqtt.Options{
		Sink:   bus,
		Logger: hs.logger,
	})
	if err != nil {
		return err
	}
	hs.logger.Info("session started", "session", h.ID, "request", hs.req)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go hs.stopOnSignal(sigCtx, h)

	var tick <-chan time.Time
	if hs.onTick != nil {
		ticker := time.NewTicker(time.Duration(hs.cfg.Output.TableIntervalSec) * time.Second)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case e := <-ch:
			if err := hs.onEvent(e); err != nil {
				h.Abort()
				return err
			}
		case <-tick:
			if err := hs.onTick(h); err != nil {
				h.Abort()
				return err
			}
		case <-h.Done():
			return hs.finish(h, ch, bus)
		}
	}
}

// finish renders what the session published before it ended.
func (hs *host) finish(h *mqtt.Handle, ch <-chan events.Event, bus *events.Bus) error {
	for drained := false; !drained; {
		select {
		case e := <-ch:
			if err := hs.onEvent(e); err != nil {
				return err
			}
		default:
			drained = true
		}
	}
	if hs.onTick != nil {
		if err := hs.onTick(h); err != nil {
			return err
		}
	}
	if n := bus.Dropped(); n > 0 {
		hs.logger.Warn("display fell behind, events dropped", "dropped", n)
	}
	hs.logger.Info("session ended",
		"session", h.ID,
		"state", h.State().String(),
		"topics", h.Snapshot().Len(),
		"uptime", buildinfo.Uptime().String(),
	)
	return h.Err()
}

func (hs *host) stopOnSignal(ctx context.Context, h *mqtt.Handle) {
	select {
	case <-ctx.Done():
	case <-h.Done():
		return
	}

	grace := time.Duration(hs.cfg.Output.StopGraceSec) * time.Second
	hs.logger.Info("shutdown signal received", "grace", grace.String())
	h.Stop()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-h.Done():
	case <-timer.C:
		hs.logger.Warn("no delivery since stop, aborting session", "session", h.ID)
		h.Abort()
	}
}

// runWatch streams every event to stdout until the session ends.
func runWatch(ctx context.Context, stdout io.Writer, stderr io.Writer, f cliFlags) error {
	cfg, logger, req, err := prepare(stderr, f)
	if err != nil {
		return err
	}
	view := newLineView(stdout, f.outputFmt)
	hs := &host{cfg: cfg, logger: logger, req: req, onEvent: view.render}
	return hs.serve(ctx)
}

// runTable redraws the topic snapshot periodically. Status lines are
// written as they arrive; messages only update the table.
func runTable(ctx context.Context, stdout io.Writer, stderr io.Writer, f cliFlags) error {
	cfg, logger, req, err := prepare(stderr, f)
	if err != nil {
		return err
	}
	view := newTableView(stdout, f.outputFmt, cfg.Output.MaxCell)
	hs := &host{
		cfg:     cfg,
		logger:  logger,
		req:     req,
		onEvent: view.status,
		onTick: func(h *mqtt.Handle) error {
			return view.render(h.Snapshot())
		},
	}
	return hs.serve(ctx)
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations. Returns the parsed
// config, the path that was loaded, and any error.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
