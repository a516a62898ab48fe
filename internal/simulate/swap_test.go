package simulate

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"spotHook/internal/model"
)

func TestSwapFeesChargeInputSide(t *testing.T) {
	swap := Swap{Amount0: big.NewInt(1_000_000), Amount1: big.NewInt(-990_000)}
	fee0, fee1, err := swap.Fees(3000)
	require.NoError(t, err)
	require.Equal(t, uint64(3000), fee0.Uint64())
	require.True(t, fee1.IsZero())

	swap = Swap{Amount0: big.NewInt(-500), Amount1: big.NewInt(2_000_000)}
	fee0, fee1, err = swap.Fees(2500)
	require.NoError(t, err)
	require.True(t, fee0.IsZero())
	require.Equal(t, uint64(5000), fee1.Uint64())

	// amounts that both flow in are not a swap
	swap = Swap{Amount0: big.NewInt(10), Amount1: big.NewInt(10)}
	fee0, fee1, err = swap.Fees(3000)
	require.NoError(t, err)
	require.True(t, fee0.IsZero())
	require.True(t, fee1.IsZero())
}

func TestFeeFromAmountOverflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err := feeFromAmount(huge, 1_000_000)
	require.ErrorIs(t, err, model.ErrOverflow)

	fee, err := feeFromAmount(big.NewInt(-999), 1000)
	require.NoError(t, err)
	require.True(t, fee.IsZero(), "fees round down")
}

func TestSwapFromRecord(t *testing.T) {
	decoded, err := json.Marshal(model.SwapEventData{Amount0: "-15", Amount1: "20", Tick: -42})
	require.NoError(t, err)
	record := model.TypedEventRecord{
		BlockNumber: 7,
		LogIndex:    3,
		Timestamp:   1_700_000_000,
		EventName:   "Swap",
		Decoded:     decoded,
	}

	swap, ok, err := SwapFromRecord(record)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int32(-42), swap.Tick)
	require.Equal(t, "-15", swap.Amount0.String())
	require.Equal(t, uint64(7), swap.Block)
	require.Equal(t, uint64(3), swap.LogIndex)

	record.EventName = "Mint"
	_, ok, err = SwapFromRecord(record)
	require.NoError(t, err)
	require.False(t, ok)

	record.EventName = "Swap"
	record.Decoded = json.RawMessage(`{"amount0":"abc","amount1":"1"}`)
	_, _, err = SwapFromRecord(record)
	require.Error(t, err)
}

func TestKeyFromMeta(t *testing.T) {
	hooks := common.HexToAddress("0x5bd0")
	meta := model.PoolMeta{
		Token0:      "0x0000000000000000000000000000000000002000",
		Token1:      "0x0000000000000000000000000000000000001000",
		Fee:         3000,
		TickSpacing: 60,
	}
	key, err := KeyFromMeta(meta, hooks)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x1000"), key.Currency0)
	require.Equal(t, common.HexToAddress("0x2000"), key.Currency1)
	require.Equal(t, model.DynamicFeeFlag, key.Fee)
	require.Equal(t, hooks, key.Hooks)

	meta.Token1 = "not-an-address"
	_, err = KeyFromMeta(meta, hooks)
	require.ErrorIs(t, err, model.ErrRange)

	meta.Token1 = "0x0000000000000000000000000000000000001000"
	meta.TickSpacing = 0
	_, err = KeyFromMeta(meta, hooks)
	require.ErrorIs(t, err, model.ErrRange)
}
