package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"NetMonitorGo/internal/config"
	"NetMonitorGo/internal/discovery"
	"NetMonitorGo/internal/netutil"
	"NetMonitorGo/internal/portscan"
	"NetMonitorGo/internal/report"
	"NetMonitorGo/internal/store"
)

const (
	exitOK          = 0
	exitUsage       = 2
	exitResolution  = 3
	exitRuntime     = 4
	exitInterrupted = 130
)

type options struct {
	configPath string
	mode       string
	target     string
	start      int
	end        int
	threads    int
	timeoutMs  int
	rate       float64
	dnsServer  string

	prefix     string
	cidr       string
	sweepStart int
	sweepEnd   int
	reach      string
	scanLive   bool
	livePorts  string

	port     int
	jsonPath string
	htmlPath string
	dbPath   string
	verbose  bool

	since     time.Duration
	top       int
	targetSet bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*options, error) {
	def := config.Default()
	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "YAML config file")
	fs.StringVar(&o.mode, "mode", "scan", "scan | sweep | banner | history")
	fs.StringVar(&o.target, "ip", "127.0.0.1", "target host or IP (comma separated for several)")
	fs.IntVar(&o.start, "start", def.PortRange[0], "first port")
	fs.IntVar(&o.end, "end", def.PortRange[1], "last port")
	fs.IntVar(&o.threads, "t", def.ConcurrencyLimit, "concurrent probes")
	fs.IntVar(&o.timeoutMs, "timeout", int(def.Timeout()/time.Millisecond), "connect timeout (ms)")
	fs.Float64Var(&o.rate, "rate", def.RateLimit, "probe starts per second, 0 = unlimited")
	fs.StringVar(&o.dnsServer, "dns", def.DNSServer, "query this DNS server directly")

	fs.StringVar(&o.prefix, "prefix", "", "sweep network prefix, e.g. 192.168.1")
	fs.StringVar(&o.cidr, "cidr", "", "sweep a CIDR within one /24, e.g. 10.0.0.0/24")
	fs.IntVar(&o.sweepStart, "sweep-start", def.SweepRange[0], "first host suffix")
	fs.IntVar(&o.sweepEnd, "sweep-end", def.SweepRange[1], "last host suffix")
	fs.StringVar(&o.reach, "reach", def.Reachability, "reachability check: auto | icmp | tcp")
	fs.BoolVar(&o.scanLive, "scan-live", false, "port scan every live host after the sweep")
	fs.StringVar(&o.livePorts, "live-ports", "1-100", "port range for -scan-live")

	fs.IntVar(&o.port, "port", 80, "banner port")
	fs.StringVar(&o.jsonPath, "json", def.JSONOutput, "JSON export path, empty to skip")
	fs.StringVar(&o.htmlPath, "html", def.HTMLOutput, "HTML report path, empty to skip")
	fs.StringVar(&o.dbPath, "db", def.DBPath, "SQLite history path, empty to skip")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")
	fs.DurationVar(&o.since, "since", 24*time.Hour, "history: list hosts seen within this window")
	fs.IntVar(&o.top, "top", 10, "history: number of most frequently open ports")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	switch o.mode {
	case "scan", "sweep", "banner", "history":
	default:
		return nil, fmt.Errorf("unknown mode %q", o.mode)
	}
	return o, nil
}

// loadConfig reads the config file and lets explicitly set flags win.
func loadConfig(fs *flag.FlagSet, o *options) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "ip":
			o.targetSet = true
		case "start":
			cfg.PortRange = []int{o.start, cfg.PortRange[1]}
		case "end":
			cfg.PortRange = []int{cfg.PortRange[0], o.end}
		case "t":
			cfg.ConcurrencyLimit = o.threads
		case "timeout":
			cfg.TimeoutSeconds = float64(o.timeoutMs) / 1000
		case "rate":
			cfg.RateLimit = o.rate
		case "dns":
			cfg.DNSServer = o.dnsServer
		case "sweep-start":
			cfg.SweepRange = []int{o.sweepStart, cfg.SweepRange[1]}
		case "sweep-end":
			cfg.SweepRange = []int{cfg.SweepRange[0], o.sweepEnd}
		case "reach":
			cfg.Reachability = o.reach
		case "json":
			cfg.JSONOutput = o.jsonPath
		case "html":
			cfg.HTMLOutput = o.htmlPath
		case "db":
			cfg.DBPath = o.dbPath
		case "v":
			if o.verbose {
				cfg.LogLevel = "debug"
			}
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.DisableStacktrace = true
	return zc.Build()
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("netmonitorGo", flag.ContinueOnError)
	o, err := parseFlags(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		color.Red("[-] %v", err)
		return exitUsage
	}
	cfg, err := loadConfig(fs, o)
	if err != nil {
		color.Red("[-] %v", err)
		return exitUsage
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		color.Red("[-] logger: %v", err)
		return exitUsage
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &app{cfg: cfg, opts: o, logger: logger, bar: newProgress()}
	switch o.mode {
	case "banner":
		return app.banner(ctx)
	case "sweep":
		return app.sweep(ctx)
	case "history":
		return app.history()
	default:
		return app.scan(ctx, splitTargets(o.target))
	}
}

func splitTargets(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// exitCode maps a scan or sweep failure to the process exit status.
func exitCode(err error) int {
	var (
		re  *portscan.ResolutionError
		ie  *portscan.InterruptedError
		rge *portscan.InvalidRangeError
		se  *discovery.InvalidSweepError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ie), errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.As(err, &re):
		return exitResolution
	case errors.As(err, &rge), errors.As(err, &se),
		errors.Is(err, portscan.ErrInvalidConcurrency), errors.Is(err, portscan.ErrInvalidTimeout):
		return exitUsage
	}
	return exitRuntime
}

func resolverFor(cfg *config.Config) netutil.ResolveFunc {
	if cfg.DNSServer != "" {
		return netutil.DNSResolver(cfg.DNSServer)
	}
	return netutil.SystemResolver
}

// sinksFor returns the configured outputs. The store, when configured, is also
// returned so the caller can close it.
func sinksFor(cfg *config.Config) (report.Multi, *store.SQLiteStore, error) {
	var sinks report.Multi
	if cfg.JSONOutput != "" {
		sinks = append(sinks, report.JSONFile{Path: cfg.JSONOutput})
	}
	if cfg.HTMLOutput != "" {
		sinks = append(sinks, report.HTMLFile{Path: cfg.HTMLOutput})
	}
	if cfg.DBPath == "" {
		return sinks, nil, nil
	}
	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return append(sinks, db), db, nil
}
