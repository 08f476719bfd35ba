// Package models provides domain models for the trading journal.
package models

// TradeType represents the direction of a trade.
type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// Valid reports whether t is a known trade type.
func (t TradeType) Valid() bool {
	return t == TradeBuy || t == TradeSell
}

// TradeStatus represents the lifecycle state of a trade.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "OPEN"
	StatusClosed TradeStatus = "CLOSED"
)

// Valid reports whether s is a known trade status.
func (s TradeStatus) Valid() bool {
	return s == StatusOpen || s == StatusClosed
}

// Emotion tags the trader's state of mind when entering a trade.
type Emotion string

const (
	EmotionNeutral   Emotion = "NEUTRAL"
	EmotionConfident Emotion = "CONFIDENT"
	EmotionAnxious   Emotion = "ANXIOUS"
	EmotionGreedy    Emotion = "GREEDY"
	EmotionFearful   Emotion = "FEARFUL"
	EmotionFOMO      Emotion = "FOMO"
)

// Emotions lists every accepted emotion tag.
var Emotions = []Emotion{
	EmotionNeutral,
	EmotionConfident,
	EmotionAnxious,
	EmotionGreedy,
	EmotionFearful,
	EmotionFOMO,
}

// Valid reports whether e is a known emotion tag.
func (e Emotion) Valid() bool {
	for _, known := range Emotions {
		if e == known {
			return true
		}
	}
	return false
}

// TransactionType represents a cash movement direction.
type TransactionType string

const (
	Deposit    TransactionType = "DEPOSIT"
	Withdrawal TransactionType = "WITHDRAWAL"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == Deposit || t == Withdrawal
}

// MutationOp identifies the kind of ledger mutation that triggered a reconciliation.
type MutationOp string

const (
	OpCreate MutationOp = "create"
	OpUpdate MutationOp = "update"
	OpDelete MutationOp = "delete"
)

// Currency is the single accounting currency of every ledger.
const Currency = "NPR"
