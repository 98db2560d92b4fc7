// Package walletta is a hardware-wallet style Trusted Application: every
// session holds a BIP44 key derived from a seed kept in the system keyring.
package walletta

import (
	"errors"

	"github.com/99designs/keyring"
	"go.uber.org/zap"

	"github.com/wallera-computer/tagateway/apps"
	"github.com/wallera-computer/tagateway/apps/cosmos"
	"github.com/wallera-computer/tagateway/crypto"
	"github.com/wallera-computer/tagateway/protocol"
	"github.com/wallera-computer/tagateway/ta"
)

// UUID is the default identity of the wallet TA.
const UUID = "4b4c1a0e-6f4b-4d0b-9a8e-77616c6c6574"

const (
	seedKey   = "seed"
	seedLabel = "tagateway wallet seed"
)

// Compile-time check which fails if Wallet doesn't comply with
// ta.TrustedApplication interface.
var _ ta.TrustedApplication = (*Wallet)(nil)

// Wallet is the TA. Its seed is loaded on Create.
type Wallet struct {
	ring  keyring.Keyring
	token crypto.Token
	l     *zap.Logger
}

type walletSession struct {
	token   crypto.Token
	derived bool
	apps    *apps.Handler
}

// New returns a Wallet keeping its seed in ring.
func New(ring keyring.Keyring, l *zap.Logger) *Wallet {
	return &Wallet{
		ring: ring,
		l:    l,
	}
}

// Create loads the seed from the keyring, generating and storing one on first run.
func (w *Wallet) Create() error {
	entropy, err := w.loadSeed()
	if err != nil {
		return ta.Wrap(ta.Generic, err)
	}

	w.token, err = crypto.NewSoftToken(entropy)
	if err != nil {
		return ta.Wrap(ta.BadFormat, err)
	}

	return nil
}

func (w *Wallet) loadSeed() ([]byte, error) {
	item, err := w.ring.Get(seedKey)
	if err == nil {
		w.l.Debug("loaded wallet seed from keyring")
		return item.Data, nil
	}

	if !errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, err
	}

	entropy, err := crypto.NewEntropy()
	if err != nil {
		return nil, err
	}

	if err := w.ring.Set(keyring.Item{
		Key:   seedKey,
		Data:  entropy,
		Label: seedLabel,
	}); err != nil {
		return nil, err
	}

	w.l.Info("generated new wallet seed")

	return entropy, nil
}

// OpenSession starts a session. A MemrefInput derivation path in the first
// slot derives the session key right away.
func (w *Wallet) OpenSession(params *protocol.Parameters) (ta.SessionContext, error) {
	if w.token == nil {
		return nil, ta.Errorf(ta.BadState, "wallet not created")
	}

	s := &walletSession{
		token: w.token.Clone(),
		apps:  apps.NewHandler(),
	}

	if err := s.apps.Register(cosmos.New(s.token)); err != nil {
		return nil, ta.Wrap(ta.Generic, err)
	}

	switch params[0].Type {
	case protocol.ParamNone:
	case protocol.ParamMemrefInput:
		if err := s.derive(params[0].Data); err != nil {
			return nil, err
		}
	default:
		return nil, ta.Errorf(ta.BadParameters, "unexpected %s in first slot", params[0].Type)
	}

	return s, nil
}

// CloseSession drops the session key.
func (w *Wallet) CloseSession(ctx ta.SessionContext) error {
	s, ok := ctx.(*walletSession)
	if !ok {
		return ta.Errorf(ta.BadState, "foreign session context %T", ctx)
	}

	s.token = nil
	s.derived = false

	return nil
}

// InvokeCommand runs cmdID in the session described by ctx.
func (w *Wallet) InvokeCommand(cmdID uint32, params *protocol.Parameters, ctx ta.SessionContext) error {
	s, ok := ctx.(*walletSession)
	if !ok || s.token == nil {
		return ta.Errorf(ta.BadState, "foreign session context %T", ctx)
	}

	c, ok := commands[cmdID]
	if !ok {
		return ta.Errorf(ta.NotSupported, "unknown command %d", cmdID)
	}

	if got := params.Types(); got != c.types {
		return ta.Errorf(ta.BadParameters, "%s expects %v, got %v", c.name, c.types, got)
	}

	if c.needsKey && !s.derived {
		return ta.Errorf(ta.BadState, "%s needs a derived key", c.name)
	}

	w.l.Debug("running command", zap.String("command", c.name))

	return c.run(w, s, params)
}

// Destroy forgets the seed.
func (w *Wallet) Destroy() error {
	w.token = nil
	return nil
}

func (s *walletSession) derive(rawPath []byte) error {
	path, err := crypto.ParseDerivationPath(rawPath)
	if err != nil {
		return ta.Wrap(ta.BadParameters, err)
	}

	if err := s.token.Initialize(path); err != nil {
		return ta.Wrap(ta.Generic, err)
	}

	s.derived = true

	return nil
}
