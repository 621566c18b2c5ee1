package program

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	DepositEventDiscriminator  = anchorDiscriminator("event", "DepositEvent")
	WithdrawEventDiscriminator = anchorDiscriminator("event", "WithdrawEvent")
)

// Event is a record appended to the host event log.
type Event interface {
	EventName() string
	Discriminator() [DiscriminatorSize]byte
	MarshalWithEncoder(enc *bin.Encoder) error
}

type DepositEvent struct {
	Depositor solana.PublicKey `json:"depositor"`
	Amount    uint64           `json:"amount"`
	Timestamp int64            `json:"timestamp"`
}

func (DepositEvent) EventName() string { return "DepositEvent" }

func (DepositEvent) Discriminator() [DiscriminatorSize]byte { return DepositEventDiscriminator }

func (e DepositEvent) MarshalWithEncoder(enc *bin.Encoder) error {
	return encodeTransferEvent(enc, e.Depositor, e.Amount, e.Timestamp)
}

type WithdrawEvent struct {
	Recipient solana.PublicKey `json:"recipient"`
	Amount    uint64           `json:"amount"`
	Timestamp int64            `json:"timestamp"`
}

func (WithdrawEvent) EventName() string { return "WithdrawEvent" }

func (WithdrawEvent) Discriminator() [DiscriminatorSize]byte { return WithdrawEventDiscriminator }

func (e WithdrawEvent) MarshalWithEncoder(enc *bin.Encoder) error {
	return encodeTransferEvent(enc, e.Recipient, e.Amount, e.Timestamp)
}

func encodeTransferEvent(enc *bin.Encoder, key solana.PublicKey, amount uint64, ts int64) error {
	if err := enc.WriteBytes(key[:], false); err != nil {
		return err
	}
	if err := enc.WriteUint64(amount, binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteInt64(ts, binary.LittleEndian)
}

// EncodeEvent serializes an event as discriminator followed by its Borsh fields.
func EncodeEvent(e Event) ([]byte, error) {
	buf := new(bytes.Buffer)
	d := e.Discriminator()
	buf.Write(d[:])
	if err := e.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", e.EventName(), err)
	}
	return buf.Bytes(), nil
}

// EventLogLine renders the event the way program logs carry it.
func EventLogLine(e Event) (string, error) {
	data, err := EncodeEvent(e)
	if err != nil {
		return "", err
	}
	return "Program data: " + base64.StdEncoding.EncodeToString(data), nil
}

// DecodeEvent parses the output of EncodeEvent.
func DecodeEvent(data []byte) (Event, error) {
	if len(data) < DiscriminatorSize {
		return nil, fmt.Errorf("event data too short: %d bytes", len(data))
	}
	var d [DiscriminatorSize]byte
	copy(d[:], data)
	dec := bin.NewBorshDecoder(data[DiscriminatorSize:])
	key, amount, ts, err := decodeTransferEvent(dec)
	if err != nil {
		return nil, err
	}
	switch d {
	case DepositEventDiscriminator:
		return DepositEvent{Depositor: key, Amount: amount, Timestamp: ts}, nil
	case WithdrawEventDiscriminator:
		return WithdrawEvent{Recipient: key, Amount: amount, Timestamp: ts}, nil
	default:
		return nil, fmt.Errorf("unknown event discriminator %x", d)
	}
}

func decodeTransferEvent(dec *bin.Decoder) (solana.PublicKey, uint64, int64, error) {
	var key solana.PublicKey
	raw, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return key, 0, 0, fmt.Errorf("failed to read key: %w", err)
	}
	copy(key[:], raw)
	amount, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return key, 0, 0, fmt.Errorf("failed to read amount: %w", err)
	}
	ts, err := dec.ReadInt64(binary.LittleEndian)
	if err != nil {
		return key, 0, 0, fmt.Errorf("failed to read timestamp: %w", err)
	}
	return key, amount, ts, nil
}
