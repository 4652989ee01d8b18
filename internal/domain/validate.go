package domain

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	nonstandard "github.com/go-playground/validator/v10/non-standard-validators"
)

// validate 领域输入共用的校验器，字段名取 json 标签
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := RegisterRules(v); err != nil {
		panic(err)
	}
	return v
}

// RegisterRules 在校验器上注册 json 字段名与自定义规则（notblank、finite），
// HTTP 层的 binding 校验器也通过它保持同样的字段命名。
func RegisterRules(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("notblank", nonstandard.NotBlank); err != nil {
		return err
	}
	return v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
}

// validateStruct 执行结构体标签校验，只返回第一个失败字段
func validateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		return AsValidationError(err)
	}
	return nil
}

// AsValidationError 将 validator 的校验错误转换为第一个失败字段的 ValidationError，其他错误原样返回
func AsValidationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}
	fe := errs[0]
	field, reason := topLevelField(fe), reasonFor(fe)
	if fe.Field() != field {
		reason = fe.Field() + " " + reason
	}
	return &ValidationError{Field: field, Reason: reason}
}

// topLevelField 嵌套字段归到顶层字段上，如 ProductInput.rating.rate -> rating
func topLevelField(fe validator.FieldError) string {
	parts := strings.Split(fe.Namespace(), ".")
	if len(parts) < 2 {
		return fe.Field()
	}
	return parts[1]
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "email":
		return "is not a valid address"
	case "finite":
		return "must be a finite number"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}
