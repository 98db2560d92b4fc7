package walletta

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/wallera-computer/tagateway/apps"
	"github.com/wallera-computer/tagateway/crypto"
	"github.com/wallera-computer/tagateway/protocol"
	"github.com/wallera-computer/tagateway/ta"
)

// Command ids understood by the wallet.
const (
	CmdGetVersion uint32 = iota
	CmdRandomBytes
	CmdDerive
	CmdPublicKey
	CmdSign
	CmdMnemonic
	CmdAPDU
	CmdAdd
)

const (
	VersionMajor = 1
	VersionMinor = 0
)

const (
	none      = protocol.ParamNone
	valueIn   = protocol.ParamValueInput
	valueOut  = protocol.ParamValueOutput
	memrefIn  = protocol.ParamMemrefInput
	memrefOut = protocol.ParamMemrefOutput
)

type command struct {
	name     string
	types    [4]protocol.ParamType
	needsKey bool
	run      func(w *Wallet, s *walletSession, p *protocol.Parameters) error
}

var commands = map[uint32]command{
	CmdGetVersion: {
		name:  "GetVersion",
		types: [4]protocol.ParamType{valueOut, none, none, none},
		run:   getVersion,
	},
	CmdRandomBytes: {
		name:  "RandomBytes",
		types: [4]protocol.ParamType{valueIn, memrefOut, none, none},
		run:   randomBytes,
	},
	CmdDerive: {
		name:  "Derive",
		types: [4]protocol.ParamType{memrefIn, none, none, none},
		run:   derive,
	},
	CmdPublicKey: {
		name:     "PublicKey",
		types:    [4]protocol.ParamType{memrefOut, none, none, none},
		needsKey: true,
		run:      publicKey,
	},
	CmdSign: {
		name:     "Sign",
		types:    [4]protocol.ParamType{memrefIn, memrefOut, none, none},
		needsKey: true,
		run:      sign,
	},
	CmdMnemonic: {
		name:  "Mnemonic",
		types: [4]protocol.ParamType{memrefOut, none, none, none},
		run:   mnemonic,
	},
	CmdAPDU: {
		name:  "APDU",
		types: [4]protocol.ParamType{memrefIn, memrefOut, none, none},
		run:   exchangeAPDU,
	},
	CmdAdd: {
		name:  "Add",
		types: [4]protocol.ParamType{valueIn, valueOut, none, none},
		run:   add,
	},
}

func getVersion(_ *Wallet, _ *walletSession, p *protocol.Parameters) error {
	p[0].Value = protocol.Value{A: VersionMajor, B: VersionMinor}
	return nil
}

func randomBytes(_ *Wallet, s *walletSession, p *protocol.Parameters) error {
	amount := p[0].Value.A
	if amount == 0 || amount > protocol.MaxMemrefSize {
		return ta.Errorf(ta.BadParameters, "cannot generate %d random bytes", amount)
	}

	b, err := s.token.RandomBytes(uint64(amount))
	if err != nil {
		return ta.Wrap(ta.Generic, err)
	}

	p[1].Data = b
	return nil
}

func derive(_ *Wallet, s *walletSession, p *protocol.Parameters) error {
	return s.derive(p[0].Data)
}

func publicKey(_ *Wallet, s *walletSession, p *protocol.Parameters) error {
	pk, err := s.token.PublicKey()
	if err != nil {
		return ta.Wrap(ta.Generic, err)
	}

	p[0].Data = pk
	return nil
}

func sign(_ *Wallet, s *walletSession, p *protocol.Parameters) error {
	if len(p[0].Data) == 0 {
		return ta.Errorf(ta.BadParameters, "nothing to sign")
	}

	sig, err := s.token.Sign(p[0].Data, crypto.AlgoSecp256K1)
	if err != nil {
		return ta.Wrap(ta.Generic, err)
	}

	p[1].Data = sig
	return nil
}

func mnemonic(_ *Wallet, s *walletSession, p *protocol.Parameters) error {
	words, err := s.token.Mnemonic()
	if err != nil {
		return ta.Wrap(ta.Generic, err)
	}

	p[0].Data = []byte(strings.Join(words, " "))
	return nil
}

// exchangeAPDU always succeeds: failures travel in the R-APDU status word.
func exchangeAPDU(w *Wallet, s *walletSession, p *protocol.Parameters) error {
	resp, err := s.apps.Exchange(p[0].Data)
	if err != nil {
		w.l.Info("apdu failed", zap.Stringer("sw", apps.CodeOf(err)), zap.Error(err))
	}

	p[1].Data = resp
	return nil
}

func add(_ *Wallet, _ *walletSession, p *protocol.Parameters) error {
	a, b := p[0].Value.A, p[0].Value.B
	if a > math.MaxUint32-b {
		return ta.Errorf(ta.Overflow, "%d + %d overflows", a, b)
	}

	p[1].Value = protocol.Value{A: a + b}
	return nil
}
