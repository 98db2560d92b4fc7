package cosmos

import (
	"crypto/sha256"
	"fmt"

	"github.com/cosmos/btcutil/bech32"
	"golang.org/x/crypto/ripemd160"

	"github.com/wallera-computer/tagateway/apps"
	"github.com/wallera-computer/tagateway/crypto"
)

type command byte

const (
	appName                     = "COSMOS"
	appID               byte    = 85
	claGetVersion       command = 0x00
	claSignSecp256K1    command = 0x02
	claGetAddrSecp256K1 command = 0x04

	versionMajor = 2
	versionMinor = 0
	versionPatch = 0
)

// Cosmos signs and derives addresses for Cosmos SDK chains.
type Cosmos struct {
	token crypto.Token
}

// New returns a Cosmos app using its own copy of token.
func New(token crypto.Token) *Cosmos {
	return &Cosmos{
		token: token.Clone(),
	}
}

func (c *Cosmos) Name() string {
	return appName
}

func (c *Cosmos) ID() byte {
	return appID
}

func (c *Cosmos) Commands() (commandIDs []byte) {
	ret := []byte{
		byte(claGetVersion),
		byte(claSignSecp256K1),
		byte(claGetAddrSecp256K1),
	}

	return ret
}

func (c *Cosmos) Handle(command byte, data []byte) (response []byte, err error) {
	switch command {
	case byte(claGetVersion):
		return c.handleGetVersion(data)
	case byte(claSignSecp256K1):
		return c.handleSignSecp256K1(data)
	case byte(claGetAddrSecp256K1):
		return c.handleGetAddrSecp256K1(data)
	default:
		return nil, apps.Errorf(apps.APDUINSNotSupported, "command %#x not found", command)
	}
}

// handleGetVersion answers test mode, major, minor, patch, device locked.
func (c *Cosmos) handleGetVersion(_ []byte) (response []byte, err error) {
	return []byte{0, versionMajor, versionMinor, versionPatch, 0}, nil
}

// handleSignSecp256K1 expects a derivation path followed by the message.
func (c *Cosmos) handleSignSecp256K1(data []byte) (response []byte, err error) {
	if len(data) <= crypto.DerivationPathSize {
		return nil, apps.Errorf(apps.APDUWrongLength, "sign request too short: %d bytes", len(data))
	}

	if err := c.initialize(data[:crypto.DerivationPathSize]); err != nil {
		return nil, err
	}

	sig, err := c.token.Sign(data[crypto.DerivationPathSize:], crypto.AlgoSecp256K1)
	if err != nil {
		return nil, apps.Errorf(apps.APDUExecutionError, "cannot sign, %w", err)
	}

	return sig, nil
}

// handleGetAddrSecp256K1 expects hrp length, hrp and a derivation path. It
// answers with the compressed public key followed by the bech32 address.
func (c *Cosmos) handleGetAddrSecp256K1(data []byte) (response []byte, err error) {
	if len(data) < 1 {
		return nil, apps.Errorf(apps.APDUWrongLength, "empty address request")
	}

	hrpLen := int(data[0])
	if len(data) != 1+hrpLen+crypto.DerivationPathSize {
		return nil, apps.Errorf(apps.APDUWrongLength, "address request has %d bytes", len(data))
	}

	hrp := string(data[1 : 1+hrpLen])

	if err := c.initialize(data[1+hrpLen:]); err != nil {
		return nil, err
	}

	pk, err := c.token.PublicKey()
	if err != nil {
		return nil, apps.Errorf(apps.APDUExecutionError, "cannot read public key, %w", err)
	}

	addr, err := Address(hrp, pk)
	if err != nil {
		return nil, apps.Errorf(apps.APDUDataInvalid, "%w", err)
	}

	return append(pk, []byte(addr)...), nil
}

func (c *Cosmos) initialize(rawPath []byte) error {
	path, err := crypto.ParseDerivationPath(rawPath)
	if err != nil {
		return apps.Errorf(apps.APDUDataInvalid, "%w", err)
	}

	if err := c.token.Initialize(path); err != nil {
		return apps.Errorf(apps.APDUExecutionError, "cannot derive %s, %w", path, err)
	}

	return nil
}

// Address returns the bech32 account address of a compressed public key.
func Address(hrp string, pubKey []byte) (string, error) {
	sh := sha256.Sum256(pubKey)

	rh := ripemd160.New()
	if _, err := rh.Write(sh[:]); err != nil {
		return "", err
	}

	conv, err := bech32.ConvertBits(rh.Sum(nil), 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("cannot convert address bits, %w", err)
	}

	return bech32.Encode(hrp, conv)
}
