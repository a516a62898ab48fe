package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type fakeCaller struct {
	responses map[string][]byte
	blocks    []*big.Int
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.blocks = append(f.blocks, block)
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, err
	}
	for name, method := range poolABI.Methods {
		if bytes.Equal(msg.Data[:4], method.ID) {
			if resp, ok := f.responses[name]; ok {
				return resp, nil
			}
			return nil, fmt.Errorf("execution reverted")
		}
	}
	return nil, fmt.Errorf("unknown selector %x", msg.Data[:4])
}

func packOutputs(t *testing.T, method string, values ...interface{}) []byte {
	t.Helper()
	poolABI, err := V3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	out, err := poolABI.Methods[method].Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	return out
}

func TestFetchPoolState(t *testing.T) {
	sqrt, _ := new(big.Int).SetString("79228162514264337593543950336", 10)
	caller := &fakeCaller{responses: map[string][]byte{
		"slot0":     packOutputs(t, "slot0", sqrt, big.NewInt(-887), uint16(1), uint16(1), uint16(1), uint8(0), true),
		"liquidity": packOutputs(t, "liquidity", big.NewInt(5_000_000)),
	}}

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	state, err := FetchPoolState(context.Background(), caller, pool, big.NewInt(123), nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if state.Tick != -887 {
		t.Fatalf("tick = %d", state.Tick)
	}
	if state.SqrtPriceX96.Dec() != sqrt.String() {
		t.Fatalf("sqrt price = %s", state.SqrtPriceX96.Dec())
	}
	if state.Liquidity.Uint64() != 5_000_000 {
		t.Fatalf("liquidity = %s", state.Liquidity.Dec())
	}
	for _, block := range caller.blocks {
		if block.Uint64() != 123 {
			t.Fatalf("call at block %v", block)
		}
	}

	delete(caller.responses, "liquidity")
	state, err = FetchPoolState(context.Background(), caller, pool, nil, nil)
	if err != nil {
		t.Fatalf("fetch without liquidity: %v", err)
	}
	if !state.Liquidity.IsZero() {
		t.Fatalf("liquidity should default to zero")
	}

	delete(caller.responses, "slot0")
	if _, err := FetchPoolState(context.Background(), caller, pool, nil, nil); err == nil {
		t.Fatalf("expected slot0 error")
	}
}

func TestFetchPoolMeta(t *testing.T) {
	token0 := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	token1 := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	caller := &fakeCaller{responses: map[string][]byte{
		"token0":      packOutputs(t, "token0", token0),
		"token1":      packOutputs(t, "token1", token1),
		"fee":         packOutputs(t, "fee", big.NewInt(3000)),
		"tickSpacing": packOutputs(t, "tickSpacing", big.NewInt(60)),
	}}

	meta, err := FetchPoolMeta(context.Background(), caller, common.HexToAddress("0x01"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if meta.Token0 != token0.Hex() || meta.Token1 != token1.Hex() || meta.Fee != 3000 || meta.TickSpacing != 60 {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestDecodeSwap(t *testing.T) {
	poolABI, err := V3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	event := poolABI.Events["Swap"]

	data, err := event.Inputs.NonIndexed().Pack(
		big.NewInt(-1000),
		big.NewInt(2000),
		big.NewInt(123456789),
		big.NewInt(987654321),
		big.NewInt(-15),
	)
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}

	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	recipient := common.HexToAddress("0x3333333333333333333333333333333333333333")
	log := types.Log{
		Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Topics:  []common.Hash{event.ID, common.BytesToHash(sender.Bytes()), common.BytesToHash(recipient.Bytes())},
		Data:    data,
	}

	swap, err := DecodeSwap(log)
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}
	if swap.Amount0 != "-1000" || swap.Amount1 != "2000" || swap.Tick != -15 {
		t.Fatalf("unexpected swap %+v", swap)
	}
	if swap.Sender != sender.Hex() || swap.Recipient != recipient.Hex() {
		t.Fatalf("unexpected parties %s %s", swap.Sender, swap.Recipient)
	}

	topic, err := SwapTopic()
	if err != nil || topic != event.ID {
		t.Fatalf("swap topic %s err=%v", topic.Hex(), err)
	}

	log.Topics = log.Topics[:2]
	if _, err := DecodeSwap(log); err == nil {
		t.Fatalf("expected topic count error")
	}
	log.Topics = []common.Hash{common.HexToHash("0x01")}
	if _, err := DecodeSwap(log); err == nil {
		t.Fatalf("expected non-swap error")
	}
}
