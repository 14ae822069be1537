package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/lxprint/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for LX-D01 printers",
	Long: `Scan for LX-D01 printers advertising over Bluetooth Low Energy.

Discovered printers are listed with their name, address and signal
strength. The strongest match is cached so that "lxprint print" can
connect without scanning again.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanName     string
	scanAll      bool
	scanNoCache  bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
	scanCmd.Flags().StringVarP(&scanName, "name", "n", scanner.DefaultDeviceName, "Filter devices by name substring")
	scanCmd.Flags().BoolVarP(&scanAll, "all", "a", false, "Show every BLE device, not just printers")
	scanCmd.Flags().BoolVar(&scanNoCache, "no-cache", false, "Do not cache the discovered printer address")
}

func runScan(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	opts := scanner.DefaultScanOptions()
	opts.NameFilter = scanName
	if scanAll {
		opts.NameFilter = ""
	}
	if scanDuration > 0 {
		opts.Duration = scanDuration
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	progress := NewProgressPrinter("Scanning for printers", "Scanning", "Processing results")
	progress.Start()
	defer progress.Stop()

	s := scanner.NewScanner(logger)
	printers, err := s.Scan(ctx, opts, progress.Callback())
	progress.Stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("scan failed")
		return err
	}

	if len(printers) == 0 {
		fmt.Println("No printers found.")
		return nil
	}

	displayPrinterTable(printers)

	if !scanNoCache {
		if err := cacheBest(printers); err != nil {
			logger.WithError(err).Warn("Failed to cache printer address")
		}
	}
	return nil
}

// displayPrinterTable prints discovered printers sorted by signal strength.
func displayPrinterTable(printers map[string]scanner.Printer) {
	list := make([]scanner.Printer, 0, len(printers))
	for _, p := range printers {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].RSSI > list[j].RSSI
	})

	bold := color.New(color.Bold)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = bold.Fprintln(w, "NAME\tADDRESS\tRSSI")
	for _, p := range list {
		name := p.Name
		if name == "" {
			name = "(unknown)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, p.Address, colorRSSI(p.RSSI))
	}
	_ = w.Flush()
}

// colorRSSI renders signal strength green/yellow/red by rough proximity.
func colorRSSI(rssi int) string {
	text := fmt.Sprintf("%d dBm", rssi)
	switch {
	case rssi >= -60:
		return color.GreenString(text)
	case rssi >= -80:
		return color.YellowString(text)
	default:
		return color.RedString(text)
	}
}

// cacheBest saves the strongest-signal printer for later prints.
func cacheBest(printers map[string]scanner.Printer) error {
	var best scanner.Printer
	found := false
	for _, p := range printers {
		if !found || p.RSSI > best.RSSI {
			best = p
			found = true
		}
	}
	if !found {
		return nil
	}

	path, err := scanner.DefaultCachePath()
	if err != nil {
		return err
	}
	cache := &scanner.Cache{Path: path}
	if err := cache.Save(best); err != nil {
		return err
	}
	fmt.Printf("\nCached %s (%s) for future prints.\n", best.Name, best.Address)
	return nil
}
