package program

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// VaultSeed is the fixed seed the vault address is derived from.
const VaultSeed = "vault_state"

const (
	DiscriminatorSize = 8
	// VaultRecordSize is the serialized size without the discriminator:
	// owner (32) + bump (1) + revenue (8) + tokens deployed (8).
	VaultRecordSize = solana.PublicKeyLength + 1 + 8 + 8
	// VaultAccountSize is the allocated account size.
	VaultAccountSize = DiscriminatorSize + VaultRecordSize
)

// VaultStateDiscriminator prefixes every serialized vault account.
var VaultStateDiscriminator = anchorDiscriminator("account", "VaultState")

// VaultRecord is the persisted vault state.
type VaultRecord struct {
	Owner          solana.PublicKey
	Bump           uint8
	Revenue        uint64
	TokensDeployed uint64
}

// VaultHandle references the vault account a transition operates on.
type VaultHandle struct {
	Address solana.PublicKey
	Bump    uint8
}

func (h VaultHandle) String() string {
	return fmt.Sprintf("%s/%d", h.Address, h.Bump)
}

func (r *VaultRecord) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteBytes(r.Owner[:], false); err != nil {
		return err
	}
	if err := enc.WriteUint8(r.Bump); err != nil {
		return err
	}
	if err := enc.WriteUint64(r.Revenue, binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteUint64(r.TokensDeployed, binary.LittleEndian)
}

func (r *VaultRecord) UnmarshalWithDecoder(dec *bin.Decoder) error {
	owner, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return fmt.Errorf("failed to read owner: %w", err)
	}
	copy(r.Owner[:], owner)
	if r.Bump, err = dec.ReadUint8(); err != nil {
		return fmt.Errorf("failed to read bump: %w", err)
	}
	if r.Revenue, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return fmt.Errorf("failed to read revenue: %w", err)
	}
	if r.TokensDeployed, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return fmt.Errorf("failed to read tokens deployed: %w", err)
	}
	return nil
}

// EncodeVaultRecord serializes the record with its discriminator into a VaultAccountSize buffer.
func EncodeVaultRecord(r *VaultRecord) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(VaultAccountSize)
	buf.Write(VaultStateDiscriminator[:])
	if err := r.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, fmt.Errorf("failed to encode vault record: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeVaultRecord parses account data written by EncodeVaultRecord.
func DecodeVaultRecord(data []byte) (*VaultRecord, error) {
	if len(data) < VaultAccountSize {
		return nil, fmt.Errorf("account data too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:DiscriminatorSize], VaultStateDiscriminator[:]) {
		return nil, fmt.Errorf("account discriminator mismatch")
	}
	var r VaultRecord
	if err := r.UnmarshalWithDecoder(bin.NewBorshDecoder(data[DiscriminatorSize:])); err != nil {
		return nil, err
	}
	return &r, nil
}

func anchorDiscriminator(namespace, name string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}
