package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/lxprint/internal/capture"
	"github.com/srg/lxprint/internal/raster"
	"github.com/srg/lxprint/pkg/config"
	"github.com/srg/lxprint/pkg/connection"
	"github.com/srg/lxprint/pkg/driver"
	"github.com/srg/lxprint/scanner"
)

// printCmd represents the print command
var printCmd = &cobra.Command{
	Use:   "print <image-file>",
	Short: "Print an image on an LX-D01 printer",
	Long: `Print an image file on an LX-D01 printer.

The image (PNG, JPEG or GIF) is scaled to the 384-dot print head width,
converted to 1-bit black and white, and streamed to the printer over BLE.
Use --raw to send a file that is already packed 1bpp raster data.

The printer is located in this order: the --address flag, the address
cached by a previous scan, then a fresh scan for --name.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrint,
}

var (
	printConfigPath  string
	printAddress     string
	printName        string
	printCopies      uint16
	printWindow      int
	printThreshold   uint8
	printInvert      bool
	printRaw         bool
	printCapturePath string
	printScanTimeout time.Duration
	printJobTimeout  time.Duration
)

func init() {
	printCmd.Flags().StringVarP(&printConfigPath, "config", "c", "", "Config file path (default ~/.lxprint/config.yaml)")
	printCmd.Flags().StringVar(&printAddress, "address", "", "Printer BLE address (skips scanning)")
	printCmd.Flags().StringVarP(&printName, "name", "n", scanner.DefaultDeviceName, "Printer name substring to scan for")
	printCmd.Flags().Uint16Var(&printCopies, "copies", 0, "Number of copies to print")
	printCmd.Flags().IntVar(&printWindow, "window", 0, "Flow-control window (frames in flight)")
	printCmd.Flags().Uint8Var(&printThreshold, "threshold", 0, "Black/white luminance cutoff (1-255)")
	printCmd.Flags().BoolVar(&printInvert, "invert", false, "Print light pixels instead of dark ones")
	printCmd.Flags().BoolVar(&printRaw, "raw", false, "Treat the file as pre-packed 1bpp raster data")
	printCmd.Flags().StringVar(&printCapturePath, "capture", "", "Write a hex dump of all frame traffic to this file")
	printCmd.Flags().DurationVar(&printScanTimeout, "scan-timeout", 0, "How long to scan when the printer address is unknown")
	printCmd.Flags().DurationVar(&printJobTimeout, "job-timeout", 0, "How long to wait for the printer to confirm the job")
}

func runPrint(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	cfg, err := loadPrintConfig()
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	opts := cfg.DriverOptions()
	if cmd.Flags().Changed("copies") {
		opts.Copies = printCopies
	}
	if cmd.Flags().Changed("window") {
		opts.FlowWindow = printWindow
	}
	if cmd.Flags().Changed("job-timeout") {
		opts.CompletionWaitTimeout = printJobTimeout
	}
	if cmd.Flags().Changed("name") {
		cfg.DeviceName = printName
	}
	if printScanTimeout > 0 {
		cfg.ScanTimeout = printScanTimeout
	}

	image, err := loadImage(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling...")
		cancel()
	}()

	addr, err := resolveAddress(ctx, cfg, logger)
	if err != nil {
		return err
	}

	conn := connection.NewConnection(logger)
	if err := conn.Connect(ctx, connection.DefaultConnectOptions(addr)); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer func() { _ = conn.Disconnect() }()

	var transport driver.Transport = conn
	var captureLog *capture.Log
	if printCapturePath != "" {
		captureLog = capture.NewLog(0)
		transport = driver.WithCapture(conn, captureLog)
	}

	progress := NewProgressPrinter("Printing", "Connecting", "Done", "Failed")
	progress.Start()
	defer progress.Stop()
	opts.Progress = progress.Callback()

	d := driver.New(transport, logger, opts)
	printErr := d.PrintImage(ctx, image)
	progress.Stop()

	if captureLog != nil {
		if err := writeCapture(captureLog, printCapturePath); err != nil {
			logger.WithError(err).Warn("Failed to write capture file")
		}
	}

	if printErr != nil {
		return printErr
	}
	fmt.Println("Print job complete.")
	return nil
}

// loadPrintConfig reads the config file, defaulting to ~/.lxprint/config.yaml.
// An explicitly requested file must exist; the default path may be absent.
func loadPrintConfig() (*config.Config, error) {
	path := printConfigPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return config.DefaultConfig(), nil
		}
		path = filepath.Join(home, ".lxprint", "config.yaml")
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return config.Load(path)
}

// loadImage reads and rasterizes the file to print.
func loadImage(path string) ([]byte, error) {
	if printRaw {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return data, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	img, err := raster.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return raster.Convert(img, raster.Options{
		Threshold: printThreshold,
		Invert:    printInvert,
	})
}

// resolveAddress picks the printer address: flag, then cache, then a scan.
func resolveAddress(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (string, error) {
	if printAddress != "" {
		return printAddress, nil
	}
	if cfg.DeviceAddress != "" {
		return cfg.DeviceAddress, nil
	}

	cachePath, err := scanner.DefaultCachePath()
	if err == nil {
		cache := &scanner.Cache{Path: cachePath}
		if cached, ok, err := cache.Load(); err == nil && ok {
			logger.WithFields(logrus.Fields{
				"name":    cached.Name,
				"address": cached.Address,
			}).Info("Using cached printer address")
			return cached.Address, nil
		}
	}

	progress := NewProgressPrinter("Looking for printer", "Scanning", "Processing results")
	progress.Start()
	defer progress.Stop()

	s := scanner.NewScanner(logger)
	printer, err := s.FindFirst(ctx, &scanner.ScanOptions{
		Duration:        cfg.ScanTimeout,
		NameFilter:      cfg.DeviceName,
		DuplicateFilter: true,
	})
	progress.Stop()
	if err != nil {
		return "", err
	}

	fmt.Printf("Found %s (%s)\n", printer.Name, printer.Address)
	if cachePath != "" {
		cache := &scanner.Cache{Path: cachePath}
		if err := cache.Save(printer); err != nil {
			logger.WithError(err).Warn("Failed to cache printer address")
		}
	}
	return printer.Address, nil
}

// writeCapture dumps recorded frame traffic to a file.
func writeCapture(log *capture.Log, path string) error {
	if err := os.WriteFile(path, []byte(log.Dump()), 0o644); err != nil {
		return err
	}
	fmt.Printf("Frame capture written to %s\n", path)
	return nil
}
