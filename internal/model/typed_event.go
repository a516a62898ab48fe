package model

import "encoding/json"

// TypedEventRecord is one decoded pool event as stored in typed-events JSONL.
type TypedEventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    uint64          `json:"log_index"`
	Address     string          `json:"address"`
	EventName   string          `json:"event_name"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
	PoolMeta    PoolMeta        `json:"pool_meta"`
	Raw         *RawLogRef      `json:"raw,omitempty"`
}

// RawLogRef keeps a minimal raw reference for traceability.
type RawLogRef struct {
	Topic0 string `json:"topic0"`
	Data   string `json:"data"`
}

// Swap decodes the payload of a Swap record.
func (r TypedEventRecord) Swap() (SwapEventData, bool, error) {
	if r.EventName != "Swap" {
		return SwapEventData{}, false, nil
	}
	var swap SwapEventData
	if err := json.Unmarshal(r.Decoded, &swap); err != nil {
		return SwapEventData{}, true, err
	}
	return swap, true, nil
}
