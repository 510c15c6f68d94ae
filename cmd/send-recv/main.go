// send-recv: exercise an SX1276/78 LoRa module from the command line.
//
// Examples:
//
//	# Listen for packets on 433 MHz
//	./send-recv -m recv -p /dev/spidev0.0 -rst GPIO22 -f 433
//
//	# Transmit a string once
//	./send-recv -m send -p /dev/spidev0.0 -rst GPIO22 -f 433 -data "hello"
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quartzlab/sxlora"
)

func main() {
	mode := flag.String("m", "", "Mode: 'send' or 'recv' (required)")
	port := flag.String("p", "/dev/spidev0.0", "SPI port name")
	resetPin := flag.String("rst", "GPIO22", "Reset GPIO name")
	freq := flag.Uint("f", 433, "Carrier frequency in MHz")
	dataStr := flag.String("data", "", "Data to send (send mode)")
	power := flag.Int("power", sxlora.MaxTxPowerDBm, "TX power in dBm (2-17)")
	sync := flag.Uint("sync", 0x12, "Sync word (network id)")
	verbose := flag.Bool("v", false, "Enable driver debug logging")
	flag.Parse()

	if *mode != "send" && *mode != "recv" {
		fmt.Fprintln(os.Stderr, "Error: mode (-m) must be 'send' or 'recv'")
		flag.PrintDefaults()
		os.Exit(1)
	}

	radio, err := sxlora.Open(*port, *resetPin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		radio.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	if err := radio.Init(uint32(*freq)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: init failed: %v\n", err)
		os.Exit(1)
	}
	if err := radio.SetTxPower(*power); err != nil {
		fmt.Fprintf(os.Stderr, "Error: set tx power: %v\n", err)
		os.Exit(1)
	}
	if err := radio.SetSyncWord(byte(*sync)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: set sync word: %v\n", err)
		os.Exit(1)
	}

	switch *mode {
	case "send":
		runSend(radio, *dataStr)
	case "recv":
		runRecv(radio)
	}
}

func runSend(radio *sxlora.Radio, data string) {
	if data == "" {
		fmt.Fprintln(os.Stderr, "Error: -data is required in send mode")
		os.Exit(1)
	}
	if err := radio.Transmit([]byte(data)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: transmit failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Sent %d bytes\n", len(data))
}

func runRecv(radio *sxlora.Radio) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := radio.StartListening(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: start listening: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Listening for packets (Ctrl+C to stop)...")

	buf := make([]byte, sxlora.MaxPayloadLength)
	count := 0
	for {
		select {
		case <-sigChan:
			fmt.Printf("\nReceived %d packets\n", count)
			return
		default:
		}

		n, err := radio.PollReceive(buf)
		switch {
		case errors.Is(err, sxlora.ErrNoPacket):
			time.Sleep(10 * time.Millisecond)
			continue
		case errors.Is(err, sxlora.ErrCRC):
			fmt.Println("  [dropped] CRC error")
			continue
		case err != nil:
			fmt.Fprintf(os.Stderr, "Error: receive failed: %v\n", err)
			os.Exit(1)
		}

		count++
		fmt.Printf("[%s] Packet #%d (%d bytes): %q  RSSI=%d dBm SNR=%d dB\n",
			time.Now().Format("15:04:05.000"), count, n, buf[:n],
			radio.LastRSSI(), radio.LastSNR())
	}
}
