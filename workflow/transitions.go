package workflow

import (
	"bitbucket.org/mmdatafocus/backoffice_backend/models"
)

// ItemState is the fulfillment lifecycle position of a line item. The debit
// guarantee hangs off these states: only the Open -> checked transition moves
// stock, so a second Check on the same item can never debit twice.
type ItemState string

const (
	StateOpen               ItemState = "Open"
	StatePartiallyFulfilled ItemState = "PartiallyFulfilled"
	StateFullyFulfilled     ItemState = "FullyFulfilled"
)

func StateOf(item *models.LineItem) ItemState {
	if item.IsChecked == nil || !*item.IsChecked {
		return StateOpen
	}
	if item.QuantityFound != nil && *item.QuantityFound < item.Quantity {
		return StatePartiallyFulfilled
	}
	return StateFullyFulfilled
}

// checkPlan is the computed effect of a Check command, decided before any row
// is touched so the decision is testable on its own.
type checkPlan struct {
	QuantityFound   int
	QuantityMissing int
	ClearMissing    bool
	DebitStock      bool
	NewState        ItemState
}

// planCheck decides the Check transition. priorFound is the quantity_found
// recorded on the item before checking, if any. Negative prior values are
// rejected; values above the required quantity are clamped down to it.
func planCheck(state ItemState, quantity int, priorFound *int) (checkPlan, error) {
	switch state {
	case StateFullyFulfilled:
		return checkPlan{}, ErrAlreadyComplete
	case StatePartiallyFulfilled:
		// Complete the remainder. Stock moved on the first check already.
		return checkPlan{
			QuantityFound:   quantity,
			QuantityMissing: 0,
			ClearMissing:    true,
			DebitStock:      false,
			NewState:        StateFullyFulfilled,
		}, nil
	}

	found := quantity
	if priorFound != nil {
		found = *priorFound
		if found < 0 {
			return checkPlan{}, NewValidationError("quantity_found cannot be negative")
		}
		if found > quantity {
			found = quantity
		}
	}

	plan := checkPlan{
		QuantityFound:   found,
		QuantityMissing: quantity - found,
		DebitStock:      true,
	}
	if found >= quantity {
		plan.ClearMissing = true
		plan.NewState = StateFullyFulfilled
	} else {
		plan.NewState = StatePartiallyFulfilled
	}
	return plan, nil
}

// planUncheck validates the Uncheck transition. The credit amount is always
// the item's full required quantity, mirroring what Check debited.
func planUncheck(state ItemState) error {
	if state == StateOpen {
		return ErrNotChecked
	}
	return nil
}

// splitPlan describes how one item becomes two. The sibling is always a fresh
// Open item with the same product, name and source as the original.
type splitPlan struct {
	OriginalQuantity   int
	OriginalBecomeFull bool
	SiblingQuantity    int
}

// planSplit decides the Split transition.
//
// Open items split by an explicit quantity: 0 < splitQuantity < quantity.
// Partially fulfilled items split along the shortfall: the original shrinks
// to its found quantity and becomes fully fulfilled, the sibling carries the
// rest. Fully fulfilled items have nothing left to split.
func planSplit(state ItemState, quantity int, found *int, splitQuantity int) (splitPlan, error) {
	switch state {
	case StateFullyFulfilled:
		return splitPlan{}, ErrNotSplittable
	case StatePartiallyFulfilled:
		f := 0
		if found != nil {
			f = *found
		}
		if f <= 0 || f >= quantity {
			return splitPlan{}, ErrInvalidSplitQuantity
		}
		return splitPlan{
			OriginalQuantity:   f,
			OriginalBecomeFull: true,
			SiblingQuantity:    quantity - f,
		}, nil
	}

	if splitQuantity <= 0 || splitQuantity >= quantity {
		return splitPlan{}, ErrInvalidSplitQuantity
	}
	return splitPlan{
		OriginalQuantity: quantity - splitQuantity,
		SiblingQuantity:  splitQuantity,
	}, nil
}

// normalizeFoundQuantity applies the over/under-delivery policy used by Edit:
// negative found quantities are rejected, over-delivery is clamped to the
// required quantity, and the derived shortfall is recomputed.
func normalizeFoundQuantity(quantity int, found *int) (*int, *int, error) {
	if found == nil {
		return nil, nil, nil
	}
	f := *found
	if f < 0 {
		return nil, nil, NewValidationError("quantity_found cannot be negative")
	}
	if f > quantity {
		f = quantity
	}
	missing := quantity - f
	return &f, &missing, nil
}
