package settings

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("mapmode", validateMapMode)
	})
	return validate
}

func validateMapMode(fl validator.FieldLevel) bool {
	switch MapMode(fl.Field().String()) {
	case MapModeDefault, MapModeImage:
		return true
	}
	return false
}

// Validate checks the structural constraints of a view setting.
func Validate(vs ViewSetting) error {
	if err := validatorInstance().Struct(vs); err != nil {
		return fmt.Errorf("invalid view setting: %w", err)
	}
	return nil
}
