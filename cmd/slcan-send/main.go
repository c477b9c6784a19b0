// Command slcan-send opens an SLCAN adapter and transmits one or more
// frames given on the command line, each in "ID#DATA" form (candump/cansend
// notation, e.g. "123#DEADBEEF" or the extended form "1ABCDEF0#01").
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/canline/slcan"
)

func main() {
	dev := flag.String("serial", "/dev/ttyUSB0", "SLCAN serial device path")
	baud := flag.Int("baud", 57600, "Serial line baud rate")
	canable := flag.Bool("canable", false, "Use the silent CANable command dialect instead of Lawicel")
	bitrateIndex := flag.Int("bitrate-index", -4, "CiA bit-rate index (0=1M .. -8=10K)")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: slcan-send [flags] ID#DATA [ID#DATA ...]")
		os.Exit(2)
	}

	frames := make([]slcan.Frame, 0, flag.NArg())
	for _, arg := range flag.Args() {
		fr, err := parseFrame(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "parse %q: %v\n", arg, err)
			os.Exit(2)
		}
		frames = append(frames, fr)
	}

	ch, err := slcan.Open(slcan.OpenParams{
		DeviceName: *dev,
		Baudrate:   *baud,
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

	for _, fr := range frames {
		if err := ch.Write(fr); err != nil {
			fmt.Fprintf(os.Stderr, "write: %v\n", err)
			os.Exit(1)
		}
	}
}

// parseFrame parses "ID#DATA", "ID#R" (remote frame) into a slcan.Frame.
func parseFrame(s string) (slcan.Frame, error) {
	parts := strings.SplitN(s, "#", 2)
	if len(parts) != 2 {
		return slcan.Frame{}, fmt.Errorf("expected ID#DATA")
	}
	idStr, dataStr := parts[0], parts[1]
	id, err := strconv.ParseUint(idStr, 16, 32)
	if err != nil {
		return slcan.Frame{}, fmt.Errorf("bad id: %w", err)
	}
	var fr slcan.Frame
	fr.ID = uint32(id)
	fr.Extended = len(idStr) > 3
	if dataStr == "R" || dataStr == "r" {
		fr.Remote = true
		return fr, nil
	}
	if len(dataStr)%2 != 0 {
		return slcan.Frame{}, fmt.Errorf("data must have an even number of hex digits")
	}
	n := len(dataStr) / 2
	if n > 8 {
		return slcan.Frame{}, fmt.Errorf("data exceeds 8 bytes")
	}
	for i := 0; i < n; i++ {
		b, err := strconv.ParseUint(dataStr[2*i:2*i+2], 16, 8)
		if err != nil {
			return slcan.Frame{}, fmt.Errorf("bad data byte: %w", err)
		}
		fr.Data[i] = byte(b)
	}
	fr.DLC = uint8(n)
	return fr, nil
}
