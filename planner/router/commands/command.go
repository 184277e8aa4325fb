// Package commands defines the closed vocabulary of atomic router commands a
// resolved route compiles into, and their wire encoding. A command is a typed
// union: exactly one parameter struct is set, discriminated by Kind. The
// on-chain interpreter executes the encoded list atomically.
package commands

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/owlprotocol/veraswap-sub005/planner/router"
)

// Kind is the single discriminator byte of an encoded command.
type Kind byte

const (
	KindWrapNative     Kind = 0x01
	KindUnwrapNative   Kind = 0x02
	KindSwapExactIn    Kind = 0x03
	KindSweep          Kind = 0x04
	KindPermitTransfer Kind = 0x05
	KindBridgeSend     Kind = 0x06
)

func (k Kind) String() string {
	switch k {
	case KindWrapNative:
		return "WRAP_NATIVE"
	case KindUnwrapNative:
		return "UNWRAP_NATIVE"
	case KindSwapExactIn:
		return "SWAP_EXACT_IN"
	case KindSweep:
		return "SWEEP"
	case KindPermitTransfer:
		return "PERMIT_TRANSFER"
	case KindBridgeSend:
		return "BRIDGE_SEND"
	}
	return fmt.Sprintf("UNKNOWN(0x%02x)", byte(k))
}

// AmountKind discriminates the Amount union.
type AmountKind string

const (
	AmountExact AmountKind = "exact"
	// AmountUseCurrentBalance defers the amount to the interpreter's token
	// balance at execution time, which makes chained commands possible when
	// intermediate outputs are unknowable off-chain.
	AmountUseCurrentBalance AmountKind = "use_current_balance"
)

// Amount is either an exact value or the balance-at-execution sentinel.
type Amount struct {
	AmountKind AmountKind
	Exact      *big.Int
}

// NewExactAmount creates an exact amount. The value must be positive and must
// not collide with the balance sentinel word.
func NewExactAmount(v *big.Int) (Amount, error) {
	if v == nil || v.Sign() <= 0 {
		return Amount{}, fmt.Errorf("%w: exact amount must be positive", router.ErrInvalidAmount)
	}
	if v.Cmp(balanceSentinel) >= 0 {
		return Amount{}, fmt.Errorf("%w: exact amount overflows the encodable range", router.ErrInvalidAmount)
	}
	return Amount{AmountKind: AmountExact, Exact: new(big.Int).Set(v)}, nil
}

// UseCurrentBalance creates the balance-at-execution amount.
func UseCurrentBalance() Amount {
	return Amount{AmountKind: AmountUseCurrentBalance}
}

// IsBalance reports whether the amount defers to the execution-time balance.
func (a Amount) IsBalance() bool {
	return a.AmountKind == AmountUseCurrentBalance
}

func (a Amount) String() string {
	if a.IsBalance() {
		return "balance"
	}
	if a.Exact == nil {
		return "unset"
	}
	return a.Exact.String()
}

// WrapNativeParams deposits native currency into the wrapped-native token.
type WrapNativeParams struct {
	Amount    Amount
	Recipient common.Address
}

// UnwrapNativeParams withdraws wrapped-native back into native currency.
type UnwrapNativeParams struct {
	Amount    Amount
	Recipient common.Address
}

// SwapExactInParams swaps a known input amount along an encoded pool path,
// reverting unless at least MinAmountOut of the final token comes out.
type SwapExactInParams struct {
	TokenIn      common.Address
	Path         router.PoolPath
	AmountIn     Amount
	MinAmountOut *big.Int
	Recipient    common.Address
}

// SweepParams transfers the interpreter's whole balance of a token to a
// recipient, recovering rounding residue. MinAmount of zero means any amount.
type SweepParams struct {
	Token     common.Address
	Recipient common.Address
	MinAmount *big.Int
}

// PermitTransferParams consumes an off-chain signed transfer authorization to
// pull tokens from the owner into the interpreter.
type PermitTransferParams struct {
	Token     common.Address
	Amount    *big.Int
	Nonce     *big.Int
	Deadline  *big.Int
	Signature []byte
}

// BridgeSendParams hands an amount to a bridge protocol adapter for delivery
// on the destination chain. FeeValue is attached as native-asset payment when
// the protocol charges its fee that way, zero otherwise.
type BridgeSendParams struct {
	Protocol  string
	Token     common.Address
	Amount    Amount
	DestChain router.ChainID
	Recipient common.Address
	FeeValue  *big.Int
}

// Command is the union of all command kinds. Exactly one parameter field is
// non-nil, matching Kind. Construct through the New* functions.
type Command struct {
	Kind           Kind
	WrapNative     *WrapNativeParams
	UnwrapNative   *UnwrapNativeParams
	SwapExactIn    *SwapExactInParams
	Sweep          *SweepParams
	PermitTransfer *PermitTransferParams
	BridgeSend     *BridgeSendParams
}

func NewWrapNative(amount Amount, recipient common.Address) Command {
	return Command{Kind: KindWrapNative, WrapNative: &WrapNativeParams{Amount: amount, Recipient: recipient}}
}

func NewUnwrapNative(amount Amount, recipient common.Address) Command {
	return Command{Kind: KindUnwrapNative, UnwrapNative: &UnwrapNativeParams{Amount: amount, Recipient: recipient}}
}

func NewSwapExactIn(
	tokenIn common.Address,
	path router.PoolPath,
	amountIn Amount,
	minAmountOut *big.Int,
	recipient common.Address,
) (Command, error) {
	if err := path.Validate(); err != nil {
		return Command{}, err
	}
	for _, hop := range path {
		if hop.Type != router.PoolConstantProduct && hop.Type != router.PoolConcentrated {
			return Command{}, fmt.Errorf("%w: %s", router.ErrUnsupportedPoolType, hop.Type)
		}
	}
	if minAmountOut == nil || minAmountOut.Sign() < 0 {
		return Command{}, fmt.Errorf("%w: minimum amount out must be non-negative", router.ErrInvalidAmount)
	}
	return Command{Kind: KindSwapExactIn, SwapExactIn: &SwapExactInParams{
		TokenIn:      tokenIn,
		Path:         path,
		AmountIn:     amountIn,
		MinAmountOut: new(big.Int).Set(minAmountOut),
		Recipient:    recipient,
	}}, nil
}

func NewSweep(token, recipient common.Address, minAmount *big.Int) Command {
	if minAmount == nil {
		minAmount = big.NewInt(0)
	}
	return Command{Kind: KindSweep, Sweep: &SweepParams{
		Token:     token,
		Recipient: recipient,
		MinAmount: new(big.Int).Set(minAmount),
	}}
}

func NewPermitTransfer(token common.Address, amount, nonce, deadline *big.Int, signature []byte) (Command, error) {
	if amount == nil || amount.Sign() <= 0 {
		return Command{}, fmt.Errorf("%w: permit amount must be positive", router.ErrInvalidAmount)
	}
	return Command{Kind: KindPermitTransfer, PermitTransfer: &PermitTransferParams{
		Token:     token,
		Amount:    new(big.Int).Set(amount),
		Nonce:     nonce,
		Deadline:  deadline,
		Signature: signature,
	}}, nil
}

func NewBridgeSend(
	protocol string,
	token common.Address,
	amount Amount,
	destChain router.ChainID,
	recipient common.Address,
	feeValue *big.Int,
) (Command, error) {
	if protocol == "" {
		return Command{}, fmt.Errorf("bridge send requires a protocol id")
	}
	if feeValue == nil {
		feeValue = big.NewInt(0)
	}
	return Command{Kind: KindBridgeSend, BridgeSend: &BridgeSendParams{
		Protocol:  protocol,
		Token:     token,
		Amount:    amount,
		DestChain: destChain,
		Recipient: recipient,
		FeeValue:  new(big.Int).Set(feeValue),
	}}, nil
}
