package utils

import (
	"fmt"
	"os"

	"github.com/ttacon/libphonenumber"
)

// ValidatePhone accepts an empty phone (optional field) and otherwise requires
// a parseable, valid number for the configured region (PHONE_REGION, default MM).
func ValidatePhone(phone string) error {
	if phone == "" {
		return nil
	}
	region := os.Getenv("PHONE_REGION")
	if region == "" {
		region = "MM"
	}
	num, err := libphonenumber.Parse(phone, region)
	if err != nil {
		return fmt.Errorf("%w: invalid phone number", ErrValidation)
	}
	if !libphonenumber.IsValidNumber(num) {
		return fmt.Errorf("%w: invalid phone number", ErrValidation)
	}
	return nil
}
