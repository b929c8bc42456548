package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/plastics_backend/config"
	"bitbucket.org/mmdatafocus/plastics_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const settingsCacheKey = "businessSettings"

// BusinessSettings is a singleton row (id is always 1). The advisory fields
// are replaced wholesale by ApplyRecommendation; partial edits go through the
// same call with the current values filled in.
type BusinessSettings struct {
	ID                       int             `gorm:"primary_key" json:"id"`
	CommissionShareFraction  decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"commission_share_fraction"`
	DefaultCommissionRate    decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"default_commission_rate"`
	DefaultRollerPricePerKg  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"default_roller_price_per_kg"`
	DefaultPackingBagPrice   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"default_packing_bag_price"`
	FuelAlertThresholdLiters decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"fuel_alert_threshold_liters"`
	Advice                   string          `gorm:"type:text" json:"advice"`
	UpdatedAt                time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type SettingsRecommendation struct {
	CommissionShareFraction  decimal.Decimal `json:"commission_share_fraction"`
	DefaultCommissionRate    decimal.Decimal `json:"default_commission_rate"`
	DefaultRollerPricePerKg  decimal.Decimal `json:"default_roller_price_per_kg"`
	DefaultPackingBagPrice   decimal.Decimal `json:"default_packing_bag_price"`
	FuelAlertThresholdLiters decimal.Decimal `json:"fuel_alert_threshold_liters"`
	Advice                   string          `json:"advice"`
}

func (input *SettingsRecommendation) validate() error {
	if input.CommissionShareFraction.IsNegative() || input.CommissionShareFraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: commission share fraction must be between 0 and 1", utils.ErrValidation)
	}
	if input.DefaultCommissionRate.IsNegative() {
		return fmt.Errorf("%w: default commission rate cannot be negative", utils.ErrValidation)
	}
	if input.DefaultRollerPricePerKg.IsNegative() || input.DefaultPackingBagPrice.IsNegative() {
		return fmt.Errorf("%w: default prices cannot be negative", utils.ErrValidation)
	}
	if input.FuelAlertThresholdLiters.IsNegative() {
		return fmt.Errorf("%w: fuel alert threshold cannot be negative", utils.ErrValidation)
	}
	return nil
}

func defaultSettings() *BusinessSettings {
	return &BusinessSettings{
		ID:                       1,
		CommissionShareFraction:  decimal.New(35, -2),
		DefaultCommissionRate:    decimal.New(2, -2),
		DefaultRollerPricePerKg:  decimal.Zero,
		DefaultPackingBagPrice:   decimal.Zero,
		FuelAlertThresholdLiters: decimal.NewFromInt(50),
	}
}

// GetSettings reads the singleton row through the redis cache, seeding the
// row with defaults on first access.
func (s *Store) GetSettings(ctx context.Context) (*BusinessSettings, error) {
	var cached BusinessSettings
	if found, err := config.GetRedisObject(s.rdb, settingsCacheKey, &cached); err == nil && found {
		return &cached, nil
	}

	var settings BusinessSettings
	err := s.db.WithContext(ctx).First(&settings, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = *defaultSettings()
		if err := s.db.WithContext(ctx).Create(&settings).Error; err != nil {
			return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}

	if err := config.SetRedisObject(s.rdb, settingsCacheKey, &settings, time.Hour); err != nil {
		s.logger.WithError(err).Warn("settings cache write failed")
	}
	return &settings, nil
}

// ApplyRecommendation replaces the advisory settings wholesale. The caller
// is the recommendation engine acting through a privileged operator.
func (s *Store) ApplyRecommendation(ctx context.Context, input *SettingsRecommendation) (*BusinessSettings, error) {
	if err := s.ActorCan(ctx, PermApplySettings); err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	settings, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	settings.CommissionShareFraction = input.CommissionShareFraction
	settings.DefaultCommissionRate = input.DefaultCommissionRate
	settings.DefaultRollerPricePerKg = input.DefaultRollerPricePerKg
	settings.DefaultPackingBagPrice = input.DefaultPackingBagPrice
	settings.FuelAlertThresholdLiters = input.FuelAlertThresholdLiters
	settings.Advice = input.Advice

	if err := s.db.WithContext(ctx).Save(settings).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	if err := config.RemoveRedisKey(s.rdb, settingsCacheKey); err != nil {
		s.logger.WithError(err).Warn("settings cache invalidation failed")
	}
	return settings, nil
}
