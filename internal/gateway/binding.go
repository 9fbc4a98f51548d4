package gateway

import (
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Enum validations for order fields. Case-insensitive, since Normalize
// canonicalizes the values after binding.
func init() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterValidation("outcome", oneOfFold("YES", "NO"))
	v.RegisterValidation("tradeside", oneOfFold("buy", "sell"))
}

func oneOfFold(values ...string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		for _, v := range values {
			if strings.EqualFold(s, v) {
				return true
			}
		}
		return false
	}
}
