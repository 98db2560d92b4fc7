package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/hdkeychain"
)

type Algorithm uint

const (
	AlgoSecp256K1 Algorithm = iota
)

// DerivationPathSize is the size of a serialized DerivationPath.
const DerivationPathSize = 20

var (
	// I am not ashamed:
	// dGVuZyBlIHNvcmQKdGVuZyBlIHNvcmQKdGVuZyBlIHNvcmQgbyB2ZXIKZmFjaXRtIHN0YSBxdWlldAptIG1hZ24gbWlsbCdldXIgbyBqdW9ybg==
	diversifier = []byte{
		116, 101, 110, 103,
		32, 101, 32, 115,
		111, 114, 100, 10,
		116, 101, 110, 103,
		32, 101, 32, 115,
		111, 114, 100, 10,
		116, 101, 110, 103,
		32, 101, 32, 115,
		111, 114, 100, 32,
		111, 32, 118, 101,
		114, 10, 102, 97,
		99, 105, 116, 109,
		32, 115, 116, 97,
		32, 113, 117, 105,
		101, 116, 10, 109,
		32, 109, 97, 103,
		110, 32, 109, 105,
		108, 108, 39, 101,
		117, 114, 32, 111,
		32, 106, 117, 111,
		114, 110,
	}

	// ErrNotInitialized is returned by key operations on a Token which has no
	// derivation path yet.
	ErrNotInitialized = errors.New("token not initialized")

	// ErrAlgorithmNotSupported is returned by Sign for algorithms the Token
	// does not implement.
	ErrAlgorithmNotSupported = errors.New("signature algorithm not supported")
)

// Diversifier returns the bytes used to do secure derivation on the Token's memory.
// Secure derivation algorithm is vendor-specific.
func Diversifier() []byte {
	return diversifier
}

// Token is a component which is in charge of executing cryptographic operation involving secrets, key derivation
// and signature execution.
type Token interface {
	RandomBytes(amount uint64) ([]byte, error)
	DeriveSecret() ([32]byte, error)
	Initialize(path DerivationPath) error
	Sign(data []byte, algorithm Algorithm) ([]byte, error)
	PublicKey() ([]byte, error)
	Mnemonic() ([]string, error)
	SupportedSignAlgorithms() []Algorithm

	// Clone returns an independent copy sharing the seed but not the derived key.
	Clone() Token
}

// DerivationPath is a BIP44 path. The first three levels are always hardened,
// the fields hold the unhardened index.
type DerivationPath struct {
	Purpose      uint32
	CoinType     uint32
	Account      uint32
	Change       uint32
	AddressIndex uint32
}

// ParseDerivationPath decodes five little-endian uint32 levels. Hardening bits
// set by the caller are ignored.
func ParseDerivationPath(b []byte) (DerivationPath, error) {
	if len(b) != DerivationPathSize {
		return DerivationPath{}, fmt.Errorf("derivation path must be %d bytes, got %d", DerivationPathSize, len(b))
	}

	level := func(i int) uint32 {
		return binary.LittleEndian.Uint32(b[i*4:]) &^ hdkeychain.HardenedKeyStart
	}

	return DerivationPath{
		Purpose:      level(0),
		CoinType:     level(1),
		Account:      level(2),
		Change:       level(3),
		AddressIndex: level(4),
	}, nil
}

// Bytes is the inverse of ParseDerivationPath.
func (d DerivationPath) Bytes() []byte {
	b := make([]byte, 0, DerivationPathSize)
	for _, v := range []uint32{d.Purpose, d.CoinType, d.Account, d.Change, d.AddressIndex} {
		b = binary.LittleEndian.AppendUint32(b, v)
	}

	return b
}

// m / purpose' / coin_type' / account' / change / address_index
func (d DerivationPath) String() string {
	return fmt.Sprintf("m/%v'/%v'/%v'/%v/%v",
		d.Purpose,
		d.CoinType,
		d.Account,
		d.Change,
		d.AddressIndex,
	)
}

// KeyFromPath walks master down path.
func KeyFromPath(master *hdkeychain.ExtendedKey, path DerivationPath) (*hdkeychain.ExtendedKey, error) {
	levels := []uint32{
		hdkeychain.HardenedKeyStart + path.Purpose,
		hdkeychain.HardenedKeyStart + path.CoinType,
		hdkeychain.HardenedKeyStart + path.Account,
		path.Change,
		path.AddressIndex,
	}

	key := master
	for _, l := range levels {
		var err error
		key, err = key.Child(l)
		if err != nil {
			return nil, fmt.Errorf("cannot derive %s, %w", path, err)
		}
	}

	return key, nil
}
