package models

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mmdatafocus/vendorportal_backend/config"
	"github.com/mmdatafocus/vendorportal_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Setting is one scalar configuration value. Scope is encoded by the row:
// business_id="" is a platform default, user_id=0 is business-wide.
type Setting struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"size:64;not null;default:'';index:uniq_setting,unique" json:"business_id"`
	UserId     int       `gorm:"not null;default:0;index:uniq_setting,unique" json:"user_id"`
	SettingKey string    `gorm:"size:191;not null;index:uniq_setting,unique" json:"setting_key"`
	Value      string    `gorm:"size:255;not null" json:"value"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Threshold keys. Every numeric cutoff in the reconciliation core is
// settings-driven; the defaults below are the documented values and are
// pinned by tests — changing them silently is not allowed.
const (
	SettingKeyScoreMatched       = "matching.score.matched"
	SettingKeyScorePartial       = "matching.score.partial"
	SettingKeyVarianceThreshold  = "exceptions.variance.threshold"
	SettingKeyVarianceHighBand   = "exceptions.variance.high_band"
	SettingKeyVarianceCritBand   = "exceptions.variance.critical_band"
	SettingKeyAgingWarningDays   = "exceptions.aging.warning_days"
	SettingKeyAgingCriticalDays  = "exceptions.aging.critical_days"
	SettingKeyApprovalHighDays   = "exceptions.approval.high_days"
	SettingKeyApprovalCritDays   = "exceptions.approval.critical_days"
	SettingKeyPaymentHighDays    = "exceptions.payment.high_days"
	SettingKeyPaymentCritDays    = "exceptions.payment.critical_days"
	SettingKeyStaleWarningDays   = "staleness.warning_days"
	SettingKeyStaleCriticalDays  = "staleness.critical_days"
	SettingKeyStaleSevereDays    = "staleness.severe_days"
	SettingKeyStaleNotifyTarget  = "staleness.notify_recipient"
)

var settingDefaults = map[string]string{
	SettingKeyScoreMatched:      "95",
	SettingKeyScorePartial:      "80",
	SettingKeyVarianceThreshold: "100",
	SettingKeyVarianceHighBand:  "500",
	SettingKeyVarianceCritBand:  "1000",
	SettingKeyAgingWarningDays:  "30",
	SettingKeyAgingCriticalDays: "60",
	SettingKeyApprovalHighDays:  "7",
	SettingKeyApprovalCritDays:  "14",
	SettingKeyPaymentHighDays:   "7",
	SettingKeyPaymentCritDays:   "14",
	SettingKeyStaleWarningDays:  "3",
	SettingKeyStaleCriticalDays: "7",
	SettingKeyStaleSevereDays:   "14",
	SettingKeyStaleNotifyTarget: "finance-team",
}

// ResolveSetting merges an ordered priority chain of optional layers: the
// first present layer wins. Pure; callers assemble user > business >
// platform > built-in default.
func ResolveSetting(layers ...*string) (string, bool) {
	for _, layer := range layers {
		if layer != nil {
			return *layer, true
		}
	}
	return "", false
}

// GetSettingValue resolves a scalar config value through the priority chain
// (user > business > platform default row > fallback), caching per key.
func GetSettingValue(ctx context.Context, userId int, key string, fallback string) (string, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return "", errors.New("business id is required")
	}

	cacheKey := fmt.Sprintf("Setting:%s:%d:%s", businessId, userId, key)
	if cached, exists, err := config.GetRedisValue(cacheKey); err == nil && exists {
		return cached, nil
	}

	db := config.GetDB()
	var rows []*Setting
	// Bypassing the tenant guard scope: the platform-default row has an
	// empty business_id on purpose.
	scanCtx := utils.SetSkipTenantScopeInContext(ctx, true)
	err := db.WithContext(scanCtx).
		Where("setting_key = ? AND business_id IN ? AND user_id IN ?",
			key, []string{businessId, ""}, []int{userId, 0}).
		Find(&rows).Error
	if err != nil {
		return "", err
	}

	var userLayer, businessLayer, platformLayer *string
	for _, row := range rows {
		v := row.Value
		switch {
		case row.BusinessId == businessId && row.UserId == userId && userId != 0:
			userLayer = &v
		case row.BusinessId == businessId && row.UserId == 0:
			businessLayer = &v
		case row.BusinessId == "" && row.UserId == 0:
			platformLayer = &v
		}
	}

	value, found := ResolveSetting(userLayer, businessLayer, platformLayer)
	if !found {
		value = fallback
	}

	if err := config.SetRedisValue(cacheKey, value, utils.GetCacheLifespan()); err != nil {
		return "", err
	}
	return value, nil
}

// SetSettingValue upserts one setting row and invalidates its cache entries.
func SetSettingValue(ctx context.Context, userId int, key string, value string) (*Setting, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	setting := Setting{
		BusinessId: businessId,
		UserId:     userId,
		SettingKey: key,
		Value:      value,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&setting).Error; err != nil {
			if !utils.IsDuplicateKeyError(err) {
				return err
			}
			if err := tx.Where("business_id = ? AND user_id = ? AND setting_key = ?",
				businessId, userId, key).First(&setting).Error; err != nil {
				return err
			}
			if err := tx.Model(&setting).Update("value", value).Error; err != nil {
				return err
			}
			setting.Value = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("Setting:%s:%d:%s", businessId, userId, key)
	if err := config.RemoveRedisKey(cacheKey); err != nil {
		return nil, err
	}
	return &setting, nil
}

// settingDefault returns the documented built-in default for a key.
func settingDefault(key string) string {
	return settingDefaults[key]
}

// GetSettingDecimal resolves and parses; the built-in default backstops a
// malformed override so a bad row can't zero out a threshold.
func GetSettingDecimal(ctx context.Context, userId int, key string) (decimal.Decimal, error) {
	raw, err := GetSettingValue(ctx, userId, key, settingDefault(key))
	if err != nil {
		return decimal.Zero, err
	}
	value, parseErr := decimal.NewFromString(raw)
	if parseErr != nil {
		return decimal.NewFromString(settingDefault(key))
	}
	return value, nil
}

func GetSettingInt(ctx context.Context, userId int, key string) (int, error) {
	raw, err := GetSettingValue(ctx, userId, key, settingDefault(key))
	if err != nil {
		return 0, err
	}
	value, parseErr := strconv.Atoi(raw)
	if parseErr != nil {
		return strconv.Atoi(settingDefault(key))
	}
	return value, nil
}

// matchingScoreBands loads the matched/partial cutoffs for the tenant.
func matchingScoreBands(ctx context.Context) (scoreBands, error) {
	matched, err := GetSettingDecimal(ctx, 0, SettingKeyScoreMatched)
	if err != nil {
		return scoreBands{}, err
	}
	partial, err := GetSettingDecimal(ctx, 0, SettingKeyScorePartial)
	if err != nil {
		return scoreBands{}, err
	}
	return scoreBands{Matched: matched, Partial: partial}, nil
}
