package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AcquireProductStockLock serializes stock mutation per product across
// instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that runs the stock transaction.
func AcquireProductStockLock(tx *gorm.DB, productId int) error {
	lockName := fmt.Sprintf("stock:%d", productId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire stock lock for product_id=%d", productId)
	}
	return nil
}

func ReleaseProductStockLock(tx *gorm.DB, productId int) {
	lockName := fmt.Sprintf("stock:%d", productId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// obtainItemLock is a best-effort cross-instance guard around one line item.
// If Redis is unavailable the caller proceeds anyway; the row lock inside the
// transaction is the real serialization point. A held lock means another
// command is mid-flight on the same item, which surfaces as ErrConcurrency.
func obtainItemLock(ctx context.Context, logger *logrus.Logger, itemId int) (*redislock.Lock, error) {
	locker := config.GetRedisLock()
	if locker == nil {
		logger.WithFields(logrus.Fields{
			"field":   "obtainItemLock",
			"item_id": itemId,
		}).Warn("redis lock not ready; proceeding without redis lock")
		return nil, nil
	}
	lock, err := locker.Obtain(ctx, fmt.Sprintf("lock:LineItem:%d", itemId), 10*time.Second, nil)
	if err == redislock.ErrNotObtained {
		return nil, ErrConcurrency
	} else if err != nil {
		logger.WithFields(logrus.Fields{
			"field":   "obtainItemLock",
			"item_id": itemId,
		}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		return nil, nil
	}
	return lock, nil
}

func releaseItemLock(ctx context.Context, lock *redislock.Lock) {
	if lock == nil {
		return
	}
	_ = lock.Release(ctx)
}
