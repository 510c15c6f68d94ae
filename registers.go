package sxlora

// Register is an address in the chip's register space (0x00-0x7F).
// Addresses are fixed by the SX1276/78 datasheet.
type Register byte

// Mode is a value for the operating mode register. Every mode write
// also carries the long-range (LoRa) selector bit.
type Mode byte

const (
	RegFifo              Register = 0x00
	RegOpMode            Register = 0x01
	RegFrfMsb            Register = 0x06
	RegFrfMid            Register = 0x07
	RegFrfLsb            Register = 0x08
	RegPaConfig          Register = 0x09
	RegLna               Register = 0x0c
	RegFifoAddrPtr       Register = 0x0d
	RegFifoTxBaseAddr    Register = 0x0e
	RegFifoRxBaseAddr    Register = 0x0f
	RegFifoRxCurrentAddr Register = 0x10
	RegIrqFlags          Register = 0x12
	RegRxNbBytes         Register = 0x13
	RegPktSnrValue       Register = 0x19
	RegPktRssiValue      Register = 0x1a
	RegModemConfig1      Register = 0x1d
	RegModemConfig2      Register = 0x1e
	RegPreambleMsb       Register = 0x20
	RegPreambleLsb       Register = 0x21
	RegPayloadLength     Register = 0x22
	RegModemConfig3      Register = 0x26
	RegSyncWord          Register = 0x39
	RegVersion           Register = 0x42
	RegPaDac             Register = 0x4d
)

const (
	ModeLongRange    Mode = 0x80
	ModeSleep        Mode = 0x00
	ModeStandby      Mode = 0x01
	ModeTx           Mode = 0x03
	ModeRxContinuous Mode = 0x05
)

// Interrupt flag bits. The flags register is write-1-to-clear per bit.
const (
	IrqTxDone          byte = 0x08
	IrqPayloadCrcError byte = 0x20
	IrqRxDone          byte = 0x40
)

// Fixed operating parameters. Both endpoints of a link must match them,
// so they are compiled in rather than configurable per call.
const (
	chipVersion byte = 0x12 // RegVersion identity for the SX1276/78 family

	modemConfig1 byte = 0x72 // BW 125 kHz, CR 4/5, explicit header
	modemConfig2 byte = 0x74 // SF7, CRC on
	modemConfig3 byte = 0x04 // AGC auto, LDO off

	preambleSymbols uint16 = 8
	defaultSyncWord byte   = 0x12 // private network

	paBoost        byte = 0x80
	paDacHighPower byte = 0x87

	MinTxPowerDBm = 2
	MaxTxPowerDBm = 17
)

// MaxPayloadLength is the FIFO capacity in bytes.
const MaxPayloadLength = 255

// RSSI calibration offsets. The low and high sub-bands of the chip use
// different internal reference levels; the split is at 525 MHz.
const (
	rfMidBandThresholdHz uint32 = 525_000_000
	rssiOffsetLfPort            = 164
	rssiOffsetHfPort            = 157
)
