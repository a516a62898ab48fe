package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"spotHook/internal/model"
)

// SwapTopic returns topic0 of the V3 Swap event.
func SwapTopic() (common.Hash, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return common.Hash{}, err
	}
	return poolABI.Events["Swap"].ID, nil
}

// DecodeSwap decodes a V3 Swap log.
func DecodeSwap(log types.Log) (model.SwapEventData, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.SwapEventData{}, fmt.Errorf("parse pool abi: %w", err)
	}
	event := poolABI.Events["Swap"]
	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return model.SwapEventData{}, fmt.Errorf("log %s:%d is not a swap", log.TxHash.Hex(), log.Index)
	}

	indexed := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexed)+1 {
		return model.SwapEventData{}, fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(log.Topics))
	}
	var parties struct {
		Sender    common.Address
		Recipient common.Address
	}
	if err := abi.ParseTopics(&parties, indexed, log.Topics[1:]); err != nil {
		return model.SwapEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.SwapEventData{}, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	if len(values) != 5 {
		return model.SwapEventData{}, fmt.Errorf("unexpected swap values: %d", len(values))
	}

	amount0, err := asBigInt(values[0])
	if err != nil {
		return model.SwapEventData{}, err
	}
	amount1, err := asBigInt(values[1])
	if err != nil {
		return model.SwapEventData{}, err
	}
	sqrtPrice, err := asBigInt(values[2])
	if err != nil {
		return model.SwapEventData{}, err
	}
	liquidity, err := asBigInt(values[3])
	if err != nil {
		return model.SwapEventData{}, err
	}
	tickInt, err := asBigInt(values[4])
	if err != nil {
		return model.SwapEventData{}, err
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return model.SwapEventData{}, err
	}

	return model.SwapEventData{
		Sender:       parties.Sender.Hex(),
		Recipient:    parties.Recipient.Hex(),
		Amount0:      amount0.String(),
		Amount1:      amount1.String(),
		SqrtPriceX96: sqrtPrice.String(),
		Liquidity:    liquidity.String(),
		Tick:         tick,
	}, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
