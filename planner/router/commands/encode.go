package commands

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/owlprotocol/veraswap-sub005/planner/router"
)

// balanceSentinel is the wire value of AmountUseCurrentBalance: the top bit of
// a uint256 word, unreachable by any real token amount.
var balanceSentinel = new(big.Int).Lsh(big.NewInt(1), 255)

// BalanceSentinel returns a copy of the balance-at-execution wire word.
func BalanceSentinel() *big.Int {
	return new(big.Int).Set(balanceSentinel)
}

// word resolves the amount to its uint256 wire word.
func (a Amount) word() (*big.Int, error) {
	if a.IsBalance() {
		return balanceSentinel, nil
	}
	if a.Exact == nil {
		return nil, fmt.Errorf("%w: amount is unset", router.ErrInvalidAmount)
	}
	return a.Exact, nil
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

var (
	typeUint256 = mustType("uint256")
	typeAddress = mustType("address")
	typeBytes   = mustType("bytes")
	typeBytes32 = mustType("bytes32")
)

var (
	argsWrap = abi.Arguments{
		{Name: "amount", Type: typeUint256},
		{Name: "recipient", Type: typeAddress},
	}
	argsSwapExactIn = abi.Arguments{
		{Name: "tokenIn", Type: typeAddress},
		{Name: "path", Type: typeBytes},
		{Name: "amountIn", Type: typeUint256},
		{Name: "minAmountOut", Type: typeUint256},
		{Name: "recipient", Type: typeAddress},
	}
	argsSweep = abi.Arguments{
		{Name: "token", Type: typeAddress},
		{Name: "recipient", Type: typeAddress},
		{Name: "minAmount", Type: typeUint256},
	}
	argsPermitTransfer = abi.Arguments{
		{Name: "token", Type: typeAddress},
		{Name: "amount", Type: typeUint256},
		{Name: "nonce", Type: typeUint256},
		{Name: "deadline", Type: typeUint256},
		{Name: "signature", Type: typeBytes},
	}
	argsBridgeSend = abi.Arguments{
		{Name: "protocol", Type: typeBytes32},
		{Name: "token", Type: typeAddress},
		{Name: "amount", Type: typeUint256},
		{Name: "destChain", Type: typeUint256},
		{Name: "recipient", Type: typeAddress},
		{Name: "feeValue", Type: typeUint256},
	}
)

// Program is the executable form of a command list: one kind byte per command
// in Commands, the matching ABI-encoded parameter blob at the same index in
// Inputs.
type Program struct {
	Commands []byte
	Inputs   [][]byte
}

// Encode serializes a single command into its parameter blob.
func (c Command) Encode() ([]byte, error) {
	switch c.Kind {
	case KindWrapNative:
		word, err := c.WrapNative.Amount.word()
		if err != nil {
			return nil, err
		}
		return argsWrap.Pack(word, c.WrapNative.Recipient)
	case KindUnwrapNative:
		word, err := c.UnwrapNative.Amount.word()
		if err != nil {
			return nil, err
		}
		return argsWrap.Pack(word, c.UnwrapNative.Recipient)
	case KindSwapExactIn:
		p := c.SwapExactIn
		word, err := p.AmountIn.word()
		if err != nil {
			return nil, err
		}
		path, err := EncodePath(p.Path)
		if err != nil {
			return nil, err
		}
		return argsSwapExactIn.Pack(p.TokenIn, path, word, p.MinAmountOut, p.Recipient)
	case KindSweep:
		p := c.Sweep
		return argsSweep.Pack(p.Token, p.Recipient, p.MinAmount)
	case KindPermitTransfer:
		p := c.PermitTransfer
		nonce := p.Nonce
		if nonce == nil {
			nonce = big.NewInt(0)
		}
		deadline := p.Deadline
		if deadline == nil {
			deadline = big.NewInt(0)
		}
		return argsPermitTransfer.Pack(p.Token, p.Amount, nonce, deadline, p.Signature)
	case KindBridgeSend:
		p := c.BridgeSend
		word, err := p.Amount.word()
		if err != nil {
			return nil, err
		}
		var protocol [32]byte
		if len(p.Protocol) > 32 {
			return nil, fmt.Errorf("protocol id %q exceeds 32 bytes", p.Protocol)
		}
		copy(protocol[:], p.Protocol)
		return argsBridgeSend.Pack(
			protocol,
			p.Token,
			word,
			new(big.Int).SetUint64(uint64(p.DestChain)),
			p.Recipient,
			p.FeeValue,
		)
	}
	return nil, fmt.Errorf("cannot encode command kind %s", c.Kind)
}

// EncodeProgram serializes an ordered command list. Encoding is all or
// nothing: any failure returns no partial program.
func EncodeProgram(cmds []Command) (*Program, error) {
	prog := &Program{
		Commands: make([]byte, 0, len(cmds)),
		Inputs:   make([][]byte, 0, len(cmds)),
	}
	for i, cmd := range cmds {
		input, err := cmd.Encode()
		if err != nil {
			return nil, fmt.Errorf("command %d (%s): %w", i, cmd.Kind, err)
		}
		prog.Commands = append(prog.Commands, byte(cmd.Kind))
		prog.Inputs = append(prog.Inputs, input)
	}
	return prog, nil
}

const pathHopSize = 32 + 1 + 3 + 20

// poolTypeByte is the path wire code of a pool type.
func poolTypeByte(t router.PoolType) (byte, error) {
	switch t {
	case router.PoolConstantProduct:
		return 0x00, nil
	case router.PoolConcentrated:
		return 0x01, nil
	}
	return 0, fmt.Errorf("%w: %s", router.ErrUnsupportedPoolType, t)
}

// EncodePath packs a pool path into its byte form: per hop a 32-byte pool id,
// a pool-type byte, a 3-byte big-endian fee in bps, and the 20-byte output
// token address.
func EncodePath(path router.PoolPath) ([]byte, error) {
	out := make([]byte, 0, len(path)*pathHopSize)
	for _, hop := range path {
		id, err := decodePoolID(hop.PoolID)
		if err != nil {
			return nil, err
		}
		typ, err := poolTypeByte(hop.Type)
		if err != nil {
			return nil, err
		}
		if hop.FeeBps >= 1<<24 {
			return nil, fmt.Errorf("%w: fee %d bps does not fit 3 bytes", router.ErrInvalidAmount, hop.FeeBps)
		}
		out = append(out, id[:]...)
		out = append(out, typ)
		out = append(out, byte(hop.FeeBps>>16), byte(hop.FeeBps>>8), byte(hop.FeeBps))
		out = append(out, hop.TokenOut.Address.Bytes()...)
	}
	return out, nil
}

// decodePoolID parses a 0x-prefixed 32-byte hex pool identifier.
func decodePoolID(id string) (common.Hash, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(id, "0x"))
	if err != nil {
		return common.Hash{}, fmt.Errorf("malformed pool id %q: %w", id, err)
	}
	if len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("pool id %q is %d bytes, want %d", id, len(raw), common.HashLength)
	}
	return common.BytesToHash(raw), nil
}
