package collateral

import (
	"context"

	"kolo-backend/internal/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PriceOracle supplies the USD price of one whole token plus the token's
// base-unit decimal precision.
type PriceOracle interface {
	Price(ctx context.Context, asset string) (decimal.Decimal, int32, error)
}

// GormPriceOracle reads prices from the AssetPrices table. Admin endpoints
// upsert rows via SetPrice.
type GormPriceOracle struct {
	DB *gorm.DB
}

func (o *GormPriceOracle) Price(ctx context.Context, asset string) (decimal.Decimal, int32, error) {
	var p domain.AssetPrice
	if err := o.DB.WithContext(ctx).Where("asset = ?", asset).First(&p).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return decimal.Zero, 0, ErrPriceNotSet
		}
		return decimal.Zero, 0, err
	}
	if p.PriceUSD.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, 0, ErrPriceNotSet
	}
	return p.PriceUSD, p.Decimals, nil
}

// SetPrice upserts the price row for an asset.
func (o *GormPriceOracle) SetPrice(ctx context.Context, asset string, priceUSD decimal.Decimal, decimals int32) error {
	if priceUSD.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	var existing domain.AssetPrice
	err := o.DB.WithContext(ctx).Where("asset = ?", asset).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return o.DB.WithContext(ctx).Create(&domain.AssetPrice{
			Asset:    asset,
			PriceUSD: priceUSD,
			Decimals: decimals,
		}).Error
	}
	if err != nil {
		return err
	}
	existing.PriceUSD = priceUSD
	existing.Decimals = decimals
	return o.DB.WithContext(ctx).Save(&existing).Error
}

// FromBaseUnits converts an on-chain base-unit amount to whole tokens.
func FromBaseUnits(amount int64, decimals int32) decimal.Decimal {
	return decimal.New(amount, -decimals)
}

// usdCents rounds a decimal USD value to cents as float64, matching how the
// rest of the ledger stores money.
func usdCents(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
