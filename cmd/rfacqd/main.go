// Command rfacqd is the acquisition board's firmware process entrypoint.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"rfacq/internal/config"
	"rfacq/internal/hal"
	"rfacq/internal/rflog"
	"rfacq/internal/session"
)

func main() {
	var (
		listen      string
		boardDevice string
		logLevel    string
		mdns        bool
		noMDNS      bool
		calFile     string
		triggerPin  int
		dataDir     string
		gpioChip    string
		gpioOffset  int
	)

	flag.StringVarP(&listen, "listen", "l", ":7777", "TCP address to listen on")
	flag.StringVarP(&boardDevice, "board-device", "d", "", "udev bus path of the DAQ board (empty uses the in-memory simulator)")
	flag.StringVarP(&logLevel, "log-level", "v", "info", "log level: debug, info, warn, error")
	flag.BoolVar(&mdns, "mdns", true, "announce _rfacq._tcp over mDNS")
	flag.BoolVar(&noMDNS, "no-mdns", false, "disable _rfacq._tcp mDNS announcement")
	flag.StringVarP(&calFile, "calibration-file", "c", "", "YAML file overriding the PI controller's default constants")
	flag.IntVarP(&triggerPin, "trigger-pin", "t", 0, "DIO pin number for the external acquisition trigger")
	flag.StringVar(&dataDir, "data-dir", "", "directory for per-session lost-frame/lock-transition trace files (empty disables capture)")
	flag.StringVar(&gpioChip, "gpio-chip", "", "gpiochar device backing the trigger pin (e.g. /dev/gpiochip0; empty uses the board's own DIO registers)")
	flag.IntVar(&gpioOffset, "gpio-offset", 0, "line offset on --gpio-chip wired to the trigger pin")

	flag.Usage = func() {
		os.Stderr.WriteString("rfacqd: dual-channel RF acquisition board firmware\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if noMDNS {
		mdns = false
	}

	if err := rflog.SetLevel(logLevel); err != nil {
		rflog.Logger.Fatal("invalid --log-level", "err", err)
	}

	cal, err := config.Load(calFile)
	if err != nil {
		rflog.Logger.Fatal("failed to load calibration file", "err", err)
	}

	board, err := hal.Open(boardDevice, gpioChip, gpioOffset, triggerPin)
	if err != nil {
		rflog.Logger.Fatal("board initialisation failed", "err", err)
	}
	if closer, ok := board.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				rflog.Logger.Warn("board close failed", "err", err)
			}
		}()
	}

	srv := &session.Server{
		Listen:       listen,
		Board:        board,
		TriggerPin:   triggerPin,
		Calibration:  cal,
		AnnounceMDNS: mdns,
		DataDir:      dataDir,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rflog.Logger.Info("rfacqd listening", "addr", listen)
	if err := srv.ListenAndServe(ctx); err != nil {
		rflog.Logger.Fatal("server exited", "err", err)
	}
}
