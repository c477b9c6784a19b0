// Command slcan-moni opens an SLCAN adapter and prints every received frame
// in a fixed-column format, similar to candump.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/canline/slcan"
)

func main() {
	dev := flag.String("serial", "/dev/ttyUSB0", "SLCAN serial device path")
	baud := flag.Int("baud", 57600, "Serial line baud rate")
	canable := flag.Bool("canable", false, "Use the silent CANable command dialect instead of Lawicel")
	bitrateIndex := flag.Int("bitrate-index", -4, "CiA bit-rate index (0=1M .. -8=10K)")
	flag.Parse()

	parity := slcan.ParityNone
	ch, err := slcan.Open(slcan.OpenParams{
		DeviceName: *dev,
		Baudrate:   *baud,
		Parity:     parity,
		CANable:    *canable,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		os.Exit(1)
	}
	defer ch.Close()

	if err := ch.StartIndex(*bitrateIndex); err != nil {
		fmt.Fprintf(os.Stderr, "start: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		ch.Kill()
	}()

	for {
		fr, err := ch.Read(500 * time.Millisecond)
		if err != nil {
			if errors.Is(err, slcan.ErrRxEmpty) {
				continue
			}
			fmt.Fprintf(os.Stderr, "read: %v\n", err)
			return
		}
		printFrame(fr)
	}
}

func printFrame(fr slcan.Frame) {
	idWidth := 3
	if fr.Extended {
		idWidth = 8
	}
	flags := "-"
	switch {
	case fr.Remote:
		flags = "R"
	case fr.Status:
		flags = "E"
	}
	fmt.Printf("%10d.%06d  %0*X  [%d] %s % X\n",
		fr.Stamp.Sec, fr.Stamp.Nsec/1000, idWidth, fr.ID, fr.DLC, flags, fr.Data[:fr.DLC])
}
