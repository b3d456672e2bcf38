package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"gorm.io/gorm"
)

// AcquireMigrationLock serializes migration runs per business across
// instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will do the batch transaction.
func AcquireMigrationLock(tx *gorm.DB, businessId string) error {
	lockName := fmt.Sprintf("migration:%s", businessId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire migration lock for business_id=%s", businessId)
	}
	return nil
}

func ReleaseMigrationLock(tx *gorm.DB, businessId string) {
	lockName := fmt.Sprintf("migration:%s", businessId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// ObtainRunLock adds a cross-instance Redis lock on top of the advisory
// lock when a locker is configured. A nil locker means Redis is not wired
// in that deployment and the MySQL advisory lock stands alone.
func ObtainRunLock(ctx context.Context, locker *redislock.Client, businessId string, ttl time.Duration) (*redislock.Lock, error) {
	if locker == nil {
		return nil, nil
	}
	lock, err := locker.Obtain(ctx, fmt.Sprintf("lock:migration:%s", businessId), ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, fmt.Errorf("migration already running for business_id=%s", businessId)
	}
	if err != nil {
		return nil, err
	}
	return lock, nil
}
