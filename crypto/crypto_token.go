package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil/hdkeychain"
	"github.com/cosmos/go-bip39"
)

// Compile-time check which fails if softToken doesn't comply with
// crypto.Token interface.
var _ Token = (*softToken)(nil)

// EntropySize is the size of the seed entropy a Token is built from.
const EntropySize = 32

var defaultEntropy = []byte{
	118, 252, 209, 103,
	94, 240, 60, 245,
	18, 224, 156, 240,
	11, 232, 52, 25,
	31, 134, 125, 135,
	192, 2, 31, 206,
	216, 100, 159, 234,
	150, 9, 236, 57,
}

// DefaultEntropy returns the well-known development entropy. Never use it for
// real funds.
func DefaultEntropy() []byte {
	return append([]byte(nil), defaultEntropy...)
}

// NewEntropy returns fresh random seed entropy.
func NewEntropy() ([]byte, error) {
	return bip39.NewEntropy(EntropySize * 8)
}

// softToken keeps its secrets in process memory.
type softToken struct {
	entropy []byte
	privKey *hdkeychain.ExtendedKey
}

// NewSoftToken returns a Token seeded with entropy.
// Callers should Clone() this instance and then call Initialize().
func NewSoftToken(entropy []byte) (Token, error) {
	if len(entropy) != EntropySize {
		return nil, fmt.Errorf("entropy must be %d bytes, got %d", EntropySize, len(entropy))
	}

	return &softToken{
		entropy: append([]byte(nil), entropy...),
	}, nil
}

func (st *softToken) RandomBytes(amount uint64) ([]byte, error) {
	if amount == 0 {
		return nil, fmt.Errorf("requested bytes amount is zero")
	}

	b := make([]byte, amount)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}

	return b, nil
}

func (st *softToken) DeriveSecret() ([32]byte, error) {
	h := hmac.New(sha256.New, Diversifier())
	if _, err := h.Write(st.entropy); err != nil {
		return [32]byte{}, fmt.Errorf("cannot generate secret, %w", err)
	}

	ret := [32]byte{}
	copy(ret[:], h.Sum(nil))

	return ret, nil
}

func (st *softToken) Initialize(path DerivationPath) error {
	secret, err := st.DeriveSecret()
	if err != nil {
		return err
	}

	params := chaincfg.MainNetParams
	params.HDCoinType = path.CoinType

	sb, err := hdkeychain.NewMaster(secret[:], &params)
	if err != nil {
		return err
	}

	st.privKey, err = KeyFromPath(sb, path)
	if err != nil {
		return err
	}

	return nil
}

// Sign returns the DER encoded signature of the SHA-256 digest of data.
func (st *softToken) Sign(data []byte, algorithm Algorithm) ([]byte, error) {
	if algorithm != AlgoSecp256K1 {
		return nil, ErrAlgorithmNotSupported
	}

	if st.privKey == nil {
		return nil, ErrNotInitialized
	}

	pk, err := st.privKey.ECPrivKey()
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(data)

	signature, err := pk.Sign(digest[:])
	if err != nil {
		return nil, err
	}

	return signature.Serialize(), nil
}

// PublicKey returns the compressed secp256k1 public key.
func (st *softToken) PublicKey() ([]byte, error) {
	if st.privKey == nil {
		return nil, ErrNotInitialized
	}

	epubk, err := st.privKey.Neuter()
	if err != nil {
		return nil, err
	}

	pp, err := epubk.ECPubKey()
	if err != nil {
		return nil, err
	}

	return pp.SerializeCompressed(), nil
}

func (st *softToken) Mnemonic() ([]string, error) {
	secret, err := st.DeriveSecret()
	if err != nil {
		return nil, err
	}

	mnemonic, err := bip39.NewMnemonic(secret[:])
	if err != nil {
		return nil, err
	}

	return strings.Split(mnemonic, " "), nil
}

func (st *softToken) SupportedSignAlgorithms() []Algorithm {
	return []Algorithm{
		AlgoSecp256K1,
	}
}

func (st *softToken) Clone() Token {
	return &softToken{entropy: st.entropy}
}
