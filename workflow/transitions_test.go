package workflow

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/models"
	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
)

// NOTE: These tests are intentionally DB-free. They validate the transition
// semantics on their own: at-most-one stock debit per item, split arithmetic,
// and the over/under-delivery policy. Full DB integration coverage lives in
// fulfillment_regression_test.go and requires docker.

func openItem(quantity int) *models.LineItem {
	return &models.LineItem{Quantity: quantity, IsChecked: utils.NewFalse()}
}

func checkedItem(quantity, found int) *models.LineItem {
	now := time.Now()
	return &models.LineItem{
		Quantity:      quantity,
		QuantityFound: &found,
		IsChecked:     utils.NewTrue(),
		CheckedAt:     &now,
	}
}

func TestStateOf(t *testing.T) {
	if got := StateOf(openItem(10)); got != StateOpen {
		t.Fatalf("unchecked item: expected Open, got %s", got)
	}
	if got := StateOf(checkedItem(10, 6)); got != StatePartiallyFulfilled {
		t.Fatalf("checked 6/10: expected PartiallyFulfilled, got %s", got)
	}
	if got := StateOf(checkedItem(10, 10)); got != StateFullyFulfilled {
		t.Fatalf("checked 10/10: expected FullyFulfilled, got %s", got)
	}
	// Checked with no recorded found quantity counts as complete.
	item := openItem(10)
	item.IsChecked = utils.NewTrue()
	if got := StateOf(item); got != StateFullyFulfilled {
		t.Fatalf("checked with nil found: expected FullyFulfilled, got %s", got)
	}
}

func TestPlanCheck_OpenNoPriorFound_DefaultsToFullQuantity(t *testing.T) {
	plan, err := planCheck(StateOpen, 10, nil)
	if err != nil {
		t.Fatalf("planCheck: %v", err)
	}
	if plan.QuantityFound != 10 || plan.QuantityMissing != 0 {
		t.Fatalf("expected found=10 missing=0, got found=%d missing=%d", plan.QuantityFound, plan.QuantityMissing)
	}
	if !plan.DebitStock {
		t.Fatalf("first check out of Open must debit stock")
	}
	if !plan.ClearMissing {
		t.Fatalf("full fulfillment must clear missing fields")
	}
	if plan.NewState != StateFullyFulfilled {
		t.Fatalf("expected FullyFulfilled, got %s", plan.NewState)
	}
}

func TestPlanCheck_OpenWithShortfall_DebitsFullQuantityOnce(t *testing.T) {
	found := 7
	plan, err := planCheck(StateOpen, 10, &found)
	if err != nil {
		t.Fatalf("planCheck: %v", err)
	}
	if plan.QuantityFound != 7 || plan.QuantityMissing != 3 {
		t.Fatalf("expected found=7 missing=3, got found=%d missing=%d", plan.QuantityFound, plan.QuantityMissing)
	}
	if !plan.DebitStock {
		t.Fatalf("first check must debit stock even on partial fulfillment")
	}
	if plan.NewState != StatePartiallyFulfilled {
		t.Fatalf("expected PartiallyFulfilled, got %s", plan.NewState)
	}

	// Second check completes the remainder with no further stock movement.
	second, err := planCheck(plan.NewState, 10, &plan.QuantityFound)
	if err != nil {
		t.Fatalf("planCheck (second): %v", err)
	}
	if second.DebitStock {
		t.Fatalf("second check must not debit stock again")
	}
	if second.QuantityFound != 10 || second.QuantityMissing != 0 || !second.ClearMissing {
		t.Fatalf("second check must complete the remainder: %+v", second)
	}
	if second.NewState != StateFullyFulfilled {
		t.Fatalf("expected FullyFulfilled, got %s", second.NewState)
	}
}

func TestPlanCheck_FullyFulfilled_FailsAlreadyComplete(t *testing.T) {
	_, err := planCheck(StateFullyFulfilled, 10, nil)
	if !errors.Is(err, ErrAlreadyComplete) {
		t.Fatalf("expected ErrAlreadyComplete, got %v", err)
	}
}

func TestPlanCheck_OverAndUnderDelivery(t *testing.T) {
	over := 15
	plan, err := planCheck(StateOpen, 10, &over)
	if err != nil {
		t.Fatalf("planCheck: %v", err)
	}
	if plan.QuantityFound != 10 || plan.QuantityMissing != 0 {
		t.Fatalf("over-delivery must clamp to quantity: %+v", plan)
	}

	negative := -1
	if _, err := planCheck(StateOpen, 10, &negative); !IsValidationError(err) {
		t.Fatalf("negative found quantity must be rejected, got %v", err)
	}
}

func TestPlanUncheck(t *testing.T) {
	if err := planUncheck(StateOpen); !errors.Is(err, ErrNotChecked) {
		t.Fatalf("uncheck of Open item: expected ErrNotChecked, got %v", err)
	}
	if err := planUncheck(StatePartiallyFulfilled); err != nil {
		t.Fatalf("uncheck of partial item: %v", err)
	}
	if err := planUncheck(StateFullyFulfilled); err != nil {
		t.Fatalf("uncheck of full item: %v", err)
	}
}

func TestPlanSplit_OpenItem(t *testing.T) {
	plan, err := planSplit(StateOpen, 10, nil, 4)
	if err != nil {
		t.Fatalf("planSplit: %v", err)
	}
	if plan.OriginalQuantity != 6 || plan.SiblingQuantity != 4 {
		t.Fatalf("expected 6/4 split, got %d/%d", plan.OriginalQuantity, plan.SiblingQuantity)
	}
	if plan.OriginalBecomeFull {
		t.Fatalf("Open split leaves both items unchecked")
	}
	if plan.OriginalQuantity+plan.SiblingQuantity != 10 {
		t.Fatalf("split quantities must sum to the original")
	}

	for _, bad := range []int{0, -1, 10, 11} {
		if _, err := planSplit(StateOpen, 10, nil, bad); !errors.Is(err, ErrInvalidSplitQuantity) {
			t.Fatalf("splitQuantity=%d: expected ErrInvalidSplitQuantity, got %v", bad, err)
		}
	}
}

func TestPlanSplit_PartiallyFulfilledItem(t *testing.T) {
	found := 6
	plan, err := planSplit(StatePartiallyFulfilled, 10, &found, 0)
	if err != nil {
		t.Fatalf("planSplit: %v", err)
	}
	if plan.OriginalQuantity != 6 || !plan.OriginalBecomeFull {
		t.Fatalf("original must become fully fulfilled at quantity=6: %+v", plan)
	}
	if plan.SiblingQuantity != 4 {
		t.Fatalf("sibling must carry the shortfall of 4, got %d", plan.SiblingQuantity)
	}
}

func TestPlanSplit_FullyFulfilled_FailsNotSplittable(t *testing.T) {
	found := 10
	if _, err := planSplit(StateFullyFulfilled, 10, &found, 5); !errors.Is(err, ErrNotSplittable) {
		t.Fatalf("expected ErrNotSplittable, got %v", err)
	}
}

func TestNormalizeFoundQuantity(t *testing.T) {
	found, missing, err := normalizeFoundQuantity(10, nil)
	if err != nil || found != nil || missing != nil {
		t.Fatalf("nil found should pass through: %v %v %v", found, missing, err)
	}

	f := 7
	found, missing, err = normalizeFoundQuantity(10, &f)
	if err != nil {
		t.Fatalf("normalizeFoundQuantity: %v", err)
	}
	if *found != 7 || *missing != 3 {
		t.Fatalf("expected found=7 missing=3, got %d/%d", *found, *missing)
	}

	over := 12
	found, missing, err = normalizeFoundQuantity(10, &over)
	if err != nil {
		t.Fatalf("normalizeFoundQuantity: %v", err)
	}
	if *found != 10 || *missing != 0 {
		t.Fatalf("over-delivery must clamp: got %d/%d", *found, *missing)
	}

	neg := -2
	if _, _, err := normalizeFoundQuantity(10, &neg); !IsValidationError(err) {
		t.Fatalf("negative found must be rejected, got %v", err)
	}
}
