// Package sxlora drives SX1276/78 family LoRa transceivers over a
// register-oriented SPI bus. The driver is synchronous and polled: it
// never touches the DIO interrupt lines, so only the SPI port and the
// reset pin need to be wired.
//
// The driver is not safe for concurrent use. Register read-modify-write
// and multi-register sequences are not atomic across the bus, so a
// single caller (or an external mutex) must own the Radio.
package sxlora

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	ErrDeviceNotDetected = errors.New("sxlora: device not detected")
	ErrTxTimeout         = errors.New("sxlora: tx done not observed before deadline")
	ErrCRC               = errors.New("sxlora: payload crc mismatch")
	ErrNoPacket          = errors.New("sxlora: no packet pending")
	ErrPayloadTooLong    = errors.New("sxlora: payload exceeds fifo capacity")
)

const (
	txTimeout    = 2000 * time.Millisecond
	txPollPeriod = time.Millisecond
	settleDelay  = 10 * time.Millisecond
)

// Radio is one transceiver instance. It owns the session state for that
// chip: the configured carrier frequency and the signal metrics of the
// most recent received packet.
type Radio struct {
	bus   Bus
	reset PinOut
	clock Clock
	log   *slog.Logger

	freqHz   uint32
	lastRSSI int
	lastSNR  int
}

// New returns a Radio on the given bus. reset may be nil when the reset
// line is strapped high in hardware. No I/O is performed until Init.
func New(bus Bus, reset PinOut) *Radio {
	return &Radio{bus: bus, reset: reset, clock: wallClock{}}
}

// SetLogger enables debug tracing of driver operations. A nil logger
// (the default) is silent.
func (r *Radio) SetLogger(l *slog.Logger) { r.log = l }

// Init resets the chip and configures it for explicit-header LoRa at
// the given carrier frequency: BW 125 kHz, CR 4/5, SF7, CRC on, sync
// word 0x12, full PA_BOOST output power. It returns ErrDeviceNotDetected
// when the identity register does not match the SX1276/78 family; the
// chip is left in whatever state the hardware reset produced, so Init
// may be retried.
func (r *Radio) Init(freqMHz uint32) error {
	if err := r.hardwareReset(); err != nil {
		return err
	}

	version, err := r.readRegister(RegVersion)
	if err != nil {
		return err
	}
	if version != chipVersion {
		r.debug("init: bad chip version", slog.Uint64("version", uint64(version)))
		return fmt.Errorf("%w: version 0x%02x, want 0x%02x", ErrDeviceNotDetected, version, chipVersion)
	}

	// Frequency writes are only accepted while not modulating.
	if err := r.setMode(ModeSleep); err != nil {
		return err
	}
	r.clock.Sleep(settleDelay)

	hz := freqMHz * 1_000_000
	frf := frequencyWord(hz)
	if err := r.writeRegister(RegFrfMsb, byte(frf>>16)); err != nil {
		return err
	}
	if err := r.writeRegister(RegFrfMid, byte(frf>>8)); err != nil {
		return err
	}
	if err := r.writeRegister(RegFrfLsb, byte(frf)); err != nil {
		return err
	}
	r.freqHz = hz

	// TX and RX regions both start at 0 in the shared FIFO memory.
	if err := r.writeRegister(RegFifoTxBaseAddr, 0x00); err != nil {
		return err
	}
	if err := r.writeRegister(RegFifoRxBaseAddr, 0x00); err != nil {
		return err
	}

	if err := r.setLnaBoost(); err != nil {
		return err
	}

	if err := r.writeRegister(RegModemConfig1, modemConfig1); err != nil {
		return err
	}
	if err := r.writeRegister(RegModemConfig2, modemConfig2); err != nil {
		return err
	}
	if err := r.writeRegister(RegModemConfig3, modemConfig3); err != nil {
		return err
	}

	if err := r.writeRegister(RegPreambleMsb, byte(preambleSymbols>>8)); err != nil {
		return err
	}
	if err := r.writeRegister(RegPreambleLsb, byte(preambleSymbols)); err != nil {
		return err
	}
	if err := r.writeRegister(RegSyncWord, defaultSyncWord); err != nil {
		return err
	}

	// Maximum output power on the boosted amplifier path, with the
	// high-power trim engaged.
	if err := r.writeRegister(RegPaConfig, paBoost|byte(MaxTxPowerDBm-MinTxPowerDBm)); err != nil {
		return err
	}
	if err := r.writeRegister(RegPaDac, paDacHighPower); err != nil {
		return err
	}

	if err := r.setMode(ModeStandby); err != nil {
		return err
	}
	r.clock.Sleep(settleDelay)

	r.debug("init: radio ready", slog.Uint64("freq_mhz", uint64(freqMHz)))
	return nil
}

// Transmit streams payload into the FIFO and modulates it on air,
// blocking until the chip reports TX done or the 2 s deadline passes.
// On timeout the chip is left in transmit mode; the next operation that
// forces standby recovers it.
func (r *Radio) Transmit(payload []byte) error {
	if len(payload) > MaxPayloadLength {
		return ErrPayloadTooLong
	}

	// TX can only be started from standby.
	if err := r.setMode(ModeStandby); err != nil {
		return err
	}
	if err := r.writeRegister(RegIrqFlags, 0xff); err != nil {
		return err
	}
	if err := r.writeRegister(RegFifoAddrPtr, 0x00); err != nil {
		return err
	}
	if len(payload) > 0 {
		if err := r.writeBurst(RegFifo, payload); err != nil {
			return err
		}
	}
	if err := r.writeRegister(RegPayloadLength, byte(len(payload))); err != nil {
		return err
	}

	if err := r.setMode(ModeTx); err != nil {
		return err
	}

	start := r.clock.Now()
	for {
		flags, err := r.readRegister(RegIrqFlags)
		if err != nil {
			return err
		}
		if flags&IrqTxDone != 0 {
			break
		}
		if r.clock.Now().Sub(start) >= txTimeout {
			r.debug("transmit: timeout", slog.Int("len", len(payload)))
			return ErrTxTimeout
		}
		r.clock.Sleep(txPollPeriod)
	}

	if err := r.writeRegister(RegIrqFlags, IrqTxDone); err != nil {
		return err
	}
	if err := r.setMode(ModeStandby); err != nil {
		return err
	}
	r.debug("transmit: done", slog.Int("len", len(payload)))
	return nil
}

// PollReceive checks once for a pending packet and copies it into buf.
// It returns ErrNoPacket when nothing has arrived (poll again later)
// and ErrCRC when a packet arrived corrupt. A packet longer than buf is
// silently truncated to len(buf). On success the packet's RSSI and SNR
// are stored for LastRSSI/LastSNR.
//
// Packets are only captured while the chip is in continuous receive
// mode; call StartListening first. PollReceive never changes the mode.
func (r *Radio) PollReceive(buf []byte) (int, error) {
	flags, err := r.readRegister(RegIrqFlags)
	if err != nil {
		return 0, err
	}
	if flags&IrqRxDone == 0 {
		return 0, ErrNoPacket
	}
	if err := r.writeRegister(RegIrqFlags, IrqRxDone); err != nil {
		return 0, err
	}

	if flags&IrqPayloadCrcError != 0 {
		if err := r.writeRegister(RegIrqFlags, IrqPayloadCrcError); err != nil {
			return 0, err
		}
		r.debug("receive: crc error")
		return 0, ErrCRC
	}

	nb, err := r.readRegister(RegRxNbBytes)
	if err != nil {
		return 0, err
	}
	n := int(nb)
	if n > len(buf) {
		n = len(buf)
	}

	// The packet sits at the receive region's write cursor, which may
	// differ from the base address after earlier traffic.
	current, err := r.readRegister(RegFifoRxCurrentAddr)
	if err != nil {
		return 0, err
	}
	if err := r.writeRegister(RegFifoAddrPtr, current); err != nil {
		return 0, err
	}
	if n > 0 {
		if err := r.readBurst(RegFifo, buf[:n]); err != nil {
			return 0, err
		}
	}

	rssi, err := r.readRegister(RegPktRssiValue)
	if err != nil {
		return 0, err
	}
	r.lastRSSI = int(rssi) - rssiOffset(r.freqHz)
	snr, err := r.readRegister(RegPktSnrValue)
	if err != nil {
		return 0, err
	}
	r.lastSNR = int(int8(snr)) / 4 // register is signed quarter-dB units

	r.debug("receive: packet", slog.Int("len", n), slog.Int("rssi", r.lastRSSI), slog.Int("snr", r.lastSNR))
	return n, nil
}

// StartListening puts the chip into continuous receive mode. Idempotent;
// call once, then poll with PollReceive.
func (r *Radio) StartListening() error {
	if err := r.setMode(ModeStandby); err != nil {
		return err
	}
	if err := r.writeRegister(RegIrqFlags, 0xff); err != nil {
		return err
	}
	if err := r.writeRegister(RegFifoAddrPtr, 0x00); err != nil {
		return err
	}
	return r.setMode(ModeRxContinuous)
}

// Sleep puts the chip into its low-power sleep mode.
func (r *Radio) Sleep() error {
	return r.setMode(ModeSleep)
}

// WakeUp returns the chip to standby, waiting for the oscillator to
// stabilize before returning.
func (r *Radio) WakeUp() error {
	if err := r.setMode(ModeStandby); err != nil {
		return err
	}
	r.clock.Sleep(settleDelay)
	return nil
}

// SetTxPower sets the output power in dBm on the boosted amplifier
// path. Values outside [2,17] are clamped, not rejected.
func (r *Radio) SetTxPower(dBm int) error {
	if dBm < MinTxPowerDBm {
		dBm = MinTxPowerDBm
	} else if dBm > MaxTxPowerDBm {
		dBm = MaxTxPowerDBm
	}
	return r.writeRegister(RegPaConfig, paBoost|byte(dBm-MinTxPowerDBm))
}

// SetSyncWord sets the single-byte network filter. Both endpoints of a
// link must agree on it out-of-band; packets carrying a different sync
// word are dropped by the chip itself.
func (r *Radio) SetSyncWord(sw byte) error {
	return r.writeRegister(RegSyncWord, sw)
}

// LastRSSI returns the received signal strength of the most recent
// packet, in dBm. Stale until the first successful PollReceive.
func (r *Radio) LastRSSI() int { return r.lastRSSI }

// LastSNR returns the signal-to-noise ratio of the most recent packet,
// in dB. Stale until the first successful PollReceive.
func (r *Radio) LastSNR() int { return r.lastSNR }

// hardwareReset pulses the reset line low then high with the chip's
// settle delays, producing a deterministic power-on state.
func (r *Radio) hardwareReset() error {
	if r.reset == nil {
		return nil
	}
	if err := r.reset(false); err != nil {
		return fmt.Errorf("drive reset low: %w", err)
	}
	r.clock.Sleep(settleDelay)
	if err := r.reset(true); err != nil {
		return fmt.Errorf("drive reset high: %w", err)
	}
	r.clock.Sleep(settleDelay)
	return nil
}

func (r *Radio) setMode(m Mode) error {
	return r.writeRegister(RegOpMode, byte(ModeLongRange|m))
}

// setLnaBoost enables the LNA boost bits, preserving the gain bits in
// the same register. Kept as one logical operation: callers never see
// the intermediate read.
func (r *Radio) setLnaBoost() error {
	lna, err := r.readRegister(RegLna)
	if err != nil {
		return err
	}
	return r.writeRegister(RegLna, lna|0x03)
}

// frequencyWord computes the 24-bit frequency control word,
// round(hz * 2^19 / 32 MHz). The shift happens before the divide in
// 64-bit width so no precision is lost.
func frequencyWord(hz uint32) uint32 {
	return uint32((uint64(hz)<<19 + 16_000_000) / 32_000_000)
}

// rssiOffset selects the calibration offset for the configured band.
func rssiOffset(hz uint32) int {
	if hz < rfMidBandThresholdHz {
		return rssiOffsetLfPort
	}
	return rssiOffsetHfPort
}

func (r *Radio) readRegister(reg Register) (byte, error) {
	w := [2]byte{byte(reg) & 0x7f, 0x00}
	var rd [2]byte
	if err := r.bus.Tx(w[:], rd[:]); err != nil {
		return 0, fmt.Errorf("read reg 0x%02x: %w", byte(reg), err)
	}
	return rd[1], nil
}

func (r *Radio) writeRegister(reg Register, value byte) error {
	w := [2]byte{byte(reg) | 0x80, value}
	var rd [2]byte
	if err := r.bus.Tx(w[:], rd[:]); err != nil {
		return fmt.Errorf("write reg 0x%02x: %w", byte(reg), err)
	}
	return nil
}

// writeBurst streams data into one register address as a single
// select-framed bus session.
func (r *Radio) writeBurst(reg Register, data []byte) error {
	w := make([]byte, len(data)+1)
	w[0] = byte(reg) | 0x80
	copy(w[1:], data)
	if err := r.bus.Tx(w, make([]byte, len(w))); err != nil {
		return fmt.Errorf("burst write reg 0x%02x: %w", byte(reg), err)
	}
	return nil
}

// readBurst reads len(dst) bytes from one register address as a single
// select-framed bus session.
func (r *Radio) readBurst(reg Register, dst []byte) error {
	w := make([]byte, len(dst)+1)
	w[0] = byte(reg) & 0x7f
	rd := make([]byte, len(w))
	if err := r.bus.Tx(w, rd); err != nil {
		return fmt.Errorf("burst read reg 0x%02x: %w", byte(reg), err)
	}
	copy(dst, rd[1:])
	return nil
}

func (r *Radio) debug(msg string, attrs ...slog.Attr) {
	if r.log != nil {
		r.log.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
	}
}
