package utils

import (
	"github.com/shopspring/decimal"
)

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func NewIntPtr(v int) *int {
	return &v
}

func NewDecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
