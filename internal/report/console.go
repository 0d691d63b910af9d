package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"NetMonitorGo/internal/discovery"
	"NetMonitorGo/internal/portscan"
	"NetMonitorGo/internal/store"
)

var (
	cyan  = color.New(color.FgCyan)
	green = color.New(color.FgGreen)
	red   = color.New(color.FgRed)
)

// PrintRecord writes one scan as a port table followed by a summary line.
func PrintRecord(w io.Writer, r portscan.ScanRecord) {
	cyan.Fprintf(w, "--- %s (%s) [ports %s] ---\n", r.Target, r.Address, r.Ports)
	if len(r.OpenPorts) == 0 {
		red.Fprintln(w, "[-] No open ports found")
	} else {
		tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
		fmt.Fprintln(tw, "PORT\tSTATE\tSERVICE")
		for _, p := range r.OpenPorts {
			fmt.Fprintf(tw, "%d/tcp\topen\t%s\n", p.Port, p.Service)
		}
		_ = tw.Flush()
	}
	green.Fprintf(w, "[+] %d open of %d scanned in %s", len(r.OpenPorts), r.PortsScanned, r.Duration().Round(time.Millisecond))
	if r.ProbeErrors > 0 {
		red.Fprintf(w, " (%d probe errors)", r.ProbeErrors)
	}
	fmt.Fprintln(w)
}

// PrintSweep writes the live hosts of a sweep.
func PrintSweep(w io.Writer, res discovery.SweepResult) {
	cyan.Fprintf(w, "--- sweep %s.%d-%d ---\n", res.Prefix, res.Start, res.End)
	for _, h := range res.Live {
		green.Fprintf(w, "[+] Host: %s is up\n", h.Addr)
	}
	fmt.Fprintf(w, "[+] %d up, %d down, %d errors in %s\n",
		len(res.Live), res.Unreachable, res.Errors, res.EndTime.Sub(res.StartTime).Round(time.Millisecond))
}

// PrintBanner writes a grabbed banner, or a note when the service sent nothing.
func PrintBanner(w io.Writer, target string, port uint16, banner []byte) {
	if banner == nil {
		red.Fprintf(w, "[-] %s:%d sent no banner\n", target, port)
		return
	}
	green.Fprintf(w, "[+] Banner from %s:%d (%d bytes)\n", target, port, len(banner))
	fmt.Fprintf(w, "%q\n", banner)
}

// PrintHistory lists stored scans oldest first, one line per scan.
func PrintHistory(w io.Writer, records []portscan.ScanRecord) {
	cyan.Fprintf(w, "--- %d stored scans ---\n", len(records))
	if len(records) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTARGET\tIP\tPORTS\tOPEN\tDURATION")
	for _, r := range records {
		open := make([]string, 0, len(r.OpenPorts))
		for _, p := range r.OpenPorts {
			open = append(open, fmt.Sprintf("%d/%s", p.Port, p.Service))
		}
		list := "-"
		if len(open) > 0 {
			list = strings.Join(open, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartTime.Format(TimeLayout), r.Target, r.Address, r.Ports, list, r.Duration().Round(time.Millisecond))
	}
	_ = tw.Flush()
}

// PrintTopPorts lists the ports found open most often.
func PrintTopPorts(w io.Writer, top []store.PortCount) {
	cyan.Fprintln(w, "--- most frequently open ports ---")
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "PORT\tSERVICE\tSCANS")
	for _, pc := range top {
		fmt.Fprintf(tw, "%d/tcp\t%s\t%d\n", pc.Port, portscan.Lookup(pc.Port), pc.Count)
	}
	_ = tw.Flush()
}

// PrintHosts lists hosts seen by sweeps.
func PrintHosts(w io.Writer, hosts []store.Host, since time.Time) {
	cyan.Fprintf(w, "--- %d hosts seen since %s ---\n", len(hosts), since.Format(TimeLayout))
	for _, h := range hosts {
		green.Fprintf(w, "[+] %s", h.Addr)
		fmt.Fprintf(w, " first %s, last %s\n", h.FirstSeen.Format(TimeLayout), h.LastSeen.Format(TimeLayout))
	}
}
