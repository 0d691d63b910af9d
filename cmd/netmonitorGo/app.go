package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"NetMonitorGo/internal/config"
	"NetMonitorGo/internal/discovery"
	"NetMonitorGo/internal/portscan"
	"NetMonitorGo/internal/report"
	"NetMonitorGo/internal/store"
)

type app struct {
	cfg    *config.Config
	opts   *options
	logger *zap.Logger
	bar    *progress
}

func (a *app) engine() *portscan.Engine {
	return portscan.NewEngine(
		portscan.WithResolver(resolverFor(a.cfg)),
		portscan.WithLogger(a.logger),
		portscan.WithRateLimit(a.cfg.RateLimit),
		portscan.WithProgress(a.bar.tick),
	)
}

func (a *app) scan(ctx context.Context, targets []string) int {
	if len(targets) == 0 {
		color.Red("[-] no target given")
		return exitUsage
	}
	pr, err := portscan.NewPortRange(a.cfg.PortRange[0], a.cfg.PortRange[1])
	if err != nil {
		color.Red("[-] %v", err)
		return exitUsage
	}
	eng := a.engine()
	scanErr := a.scanAll(ctx, eng, targets, pr)
	if err := a.persist(nil, eng.Session()); err != nil {
		color.Red("[-] saving results: %v", err)
		if scanErr == nil {
			return exitRuntime
		}
	}
	return exitCode(scanErr)
}

// scanAll scans targets one after another. A target that fails to resolve is
// reported and skipped; an interrupt stops the loop. The first failure is
// returned.
func (a *app) scanAll(ctx context.Context, eng *portscan.Engine, targets []string, pr portscan.PortRange) error {
	var first error
	for _, target := range targets {
		color.Cyan("--- scanning %s [ports %s] ---", target, pr)
		color.Cyan("--- concurrency: %d | timeout: %s ---", a.cfg.ConcurrencyLimit, a.cfg.Timeout())

		a.bar.start(pr.Len(), "[scanning]")
		rec, err := eng.Scan(ctx, target, pr, a.cfg.ConcurrencyLimit, a.cfg.Timeout())
		a.bar.done()

		if err != nil {
			color.Red("[-] %v", err)
			if first == nil {
				first = err
			}
			var ie *portscan.InterruptedError
			if errors.As(err, &ie) {
				return err
			}
			continue
		}
		report.PrintRecord(os.Stdout, rec)
		fmt.Println()
	}
	return first
}

func (a *app) sweep(ctx context.Context) int {
	prefix, start, end := a.opts.prefix, a.cfg.SweepRange[0], a.cfg.SweepRange[1]
	if a.opts.cidr != "" {
		var err error
		if prefix, start, end, err = discovery.RangeFromCIDR(a.opts.cidr); err != nil {
			color.Red("[-] %v", err)
			return exitUsage
		}
	}
	if prefix == "" {
		color.Red("[-] sweep needs -prefix or -cidr")
		return exitUsage
	}

	pinger, err := discovery.NewPinger(a.cfg.Reachability, a.cfg.ReachPortList())
	if err != nil {
		color.Red("[-] %v", err)
		return exitUsage
	}
	a.logger.Debug("reachability check selected", zap.String("pinger", fmt.Sprintf("%T", pinger)))

	sw := discovery.NewSweeper(
		discovery.WithPinger(pinger),
		discovery.WithLogger(a.logger),
		discovery.WithRateLimit(a.cfg.RateLimit),
		discovery.WithProgress(a.bar.tick),
	)
	color.Cyan("--- sweeping %s.%d-%d ---", prefix, start, end)
	a.bar.start(end-start+1, "[sweeping]")
	res, err := sw.Sweep(ctx, prefix, start, end, a.cfg.ConcurrencyLimit, a.cfg.Timeout())
	a.bar.done()
	if err != nil {
		color.Red("[-] %v", err)
		return exitCode(err)
	}
	report.PrintSweep(os.Stdout, res)

	var (
		eng     = a.engine()
		scanErr error
	)
	if a.opts.scanLive && len(res.Live) > 0 {
		pr, err := portscan.ParsePortRange(a.opts.livePorts)
		if err != nil {
			color.Red("[-] -live-ports: %v", err)
			return exitUsage
		}
		fmt.Println()
		targets := make([]string, 0, len(res.Live))
		for _, h := range res.Live {
			targets = append(targets, h.Addr.String())
		}
		scanErr = a.scanAll(ctx, eng, targets, pr)
	}

	if err := a.persist(&res, eng.Session()); err != nil {
		color.Red("[-] saving results: %v", err)
		if scanErr == nil {
			return exitRuntime
		}
	}
	return exitCode(scanErr)
}

// persist hands the session to every configured sink and, with a database,
// records the sweep's live hosts.
func (a *app) persist(sweep *discovery.SweepResult, records []portscan.ScanRecord) error {
	if len(records) == 0 && (sweep == nil || a.cfg.DBPath == "") {
		return nil
	}
	sinks, db, err := sinksFor(a.cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if sweep != nil {
			if err := db.SaveSweep(*sweep); err != nil {
				return err
			}
		}
	}
	if len(records) == 0 {
		return nil
	}
	if err := sinks.Save(records); err != nil {
		return err
	}
	a.logger.Info("results saved",
		zap.Int("records", len(records)),
		zap.String("json", a.cfg.JSONOutput),
		zap.String("html", a.cfg.HTMLOutput),
		zap.String("db", a.cfg.DBPath),
	)
	if a.cfg.JSONOutput != "" {
		color.Green("[+] Results saved to %s", a.cfg.JSONOutput)
	}
	if a.cfg.HTMLOutput != "" {
		color.Green("[+] HTML report generated: %s", a.cfg.HTMLOutput)
	}
	return nil
}

func (a *app) banner(ctx context.Context) int {
	targets := splitTargets(a.opts.target)
	if len(targets) != 1 {
		color.Red("[-] banner mode needs exactly one target")
		return exitUsage
	}
	if a.opts.port < 1 || a.opts.port > 65535 {
		color.Red("[-] port %d out of range", a.opts.port)
		return exitUsage
	}
	port := uint16(a.opts.port)

	b, err := portscan.GrabBanner(ctx, targets[0], port, a.cfg.BannerTimeout())
	if err != nil {
		color.Red("[-] %v", err)
		if ctx.Err() != nil {
			return exitInterrupted
		}
		return exitRuntime
	}
	report.PrintBanner(os.Stdout, targets[0], port, b)
	return exitOK
}

// history prints what earlier runs stored: past scans (of -ip when given),
// the most frequently open ports and the hosts seen within -since.
func (a *app) history() int {
	if a.cfg.DBPath == "" {
		color.Red("[-] history mode needs -db or db_path")
		return exitUsage
	}
	if a.opts.top < 1 {
		color.Red("[-] -top must be at least 1")
		return exitUsage
	}
	db, err := store.NewSQLiteStore(a.cfg.DBPath)
	if err != nil {
		color.Red("[-] %v", err)
		return exitRuntime
	}
	defer db.Close()

	var filter string
	if a.opts.targetSet {
		filter = a.opts.target
	}
	records, err := db.Records(filter)
	if err != nil {
		color.Red("[-] %v", err)
		return exitRuntime
	}
	top, err := db.TopPorts(a.opts.top)
	if err != nil {
		color.Red("[-] %v", err)
		return exitRuntime
	}
	since := time.Now().Add(-a.opts.since)
	hosts, err := db.HostsSeenSince(since)
	if err != nil {
		color.Red("[-] %v", err)
		return exitRuntime
	}

	report.PrintHistory(os.Stdout, records)
	fmt.Println()
	report.PrintTopPorts(os.Stdout, top)
	fmt.Println()
	report.PrintHosts(os.Stdout, hosts, since)
	return exitOK
}
