// Package rule 封装 go-playground/validator，结构体标签名为 rule.
//
// 与 gin 的 binding 共用同一个 validator 实例，错误中的字段名取自 json 或 form 标签，
// 便于直接返回给调用方.
package rule

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	inst *validator.Validate
	once sync.Once
)

// initValidator 尝试复用 gin 的 validator 引擎；若不可用则新建.
func initValidator() {
	inst = validator.New()

	if engine := binding.Validator.Engine(); engine != nil {
		if v, ok := engine.(*validator.Validate); ok {
			inst = v
		}
	}

	inst.SetTagName("rule")
	inst.RegisterTagNameFunc(fieldName)
}

// fieldName 依次取 json、form 标签名，都没有时用 Go 字段名.
func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "form", "mapstructure"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name == "-" {
			return ""
		}

		if name != "" {
			return name
		}
	}

	return f.Name
}

func lazyInit() {
	once.Do(initValidator)
}

// Engine 返回全局 *validator.Validate.
func Engine() *validator.Validate {
	lazyInit()

	return inst
}

// RegisterValidation 注册自定义规则.
func RegisterValidation(tag string, fn validator.Func, opts ...bool) error {
	lazyInit()

	return inst.RegisterValidation(tag, fn, opts...)
}

// RegisterPattern 注册一个按正则匹配字符串字段的规则，非字符串字段一律不通过.
func RegisterPattern(tag string, re *regexp.Regexp) error {
	return RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		f := fl.Field()

		return f.Kind() == reflect.String && re.MatchString(f.String())
	})
}

// ValidateStruct 对结构体执行完整校验，可用 Errors 转成可读形式.
func ValidateStruct(s any) error {
	lazyInit()

	return inst.Struct(s)
}

// ValidateVar 按规则对单个变量校验，例如: ValidateVar("abc", "required,max=8").
func ValidateVar(field any, tag string) error {
	lazyInit()

	return inst.Var(field, tag)
}

// ValidationErrors 字段路径到可读错误信息的映射.
type ValidationErrors map[string]string

// Error 按字段名排序后拼接.
func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v[k])
	}

	return strings.Join(parts, "; ")
}

// Errors 把 validator 的错误转为 ValidationErrors，err 不是校验错误时返回 nil.
func Errors(err error) ValidationErrors {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	out := make(ValidationErrors, len(verrs))

	for _, fe := range verrs {
		out[fieldPath(fe)] = describe(fe)
	}

	return out
}

// fieldPath 去掉最外层的结构体名，如 CreateImageRequest.size_x 变为 size_x.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}

	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required when " + fe.Param()
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min", "gte":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}

		return "must be at least " + fe.Param()
	case "max", "lte":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}

		return "must be at most " + fe.Param()
	case "uuid":
		return "must be a UUID"
	case "startswith":
		return "must start with " + fe.Param()
	default:
		return fmt.Sprintf("failed the %q rule", fe.Tag())
	}
}
