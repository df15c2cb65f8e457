package domain

import (
	"errors"
	"fmt"
)

const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusRefunded  = "refunded"
	TxStatusVoided    = "voided"
)

var ErrInvalidTransition = errors.New("transition not allowed")

var transactionTransitions = map[string][]string{
	TxStatusPending:   {TxStatusCompleted, TxStatusVoided},
	TxStatusCompleted: {TxStatusRefunded},
}

// ValidateTransition reports whether a transaction may move from one status to another.
// Refunded and voided are terminal.
func ValidateTransition(from string, to string) error {
	for _, next := range transactionTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func IsTerminalStatus(status string) bool {
	return status == TxStatusRefunded || status == TxStatusVoided
}

func IsKnownStatus(status string) bool {
	switch status {
	case TxStatusPending, TxStatusCompleted, TxStatusRefunded, TxStatusVoided:
		return true
	}
	return false
}
