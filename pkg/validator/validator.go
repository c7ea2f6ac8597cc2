// Package validator 参数校验器及其多语言翻译
package validator

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/pkg/errors"
)

// CustomValidator 实现 gin 的 binding.StructValidator
type CustomValidator struct {
	once     sync.Once
	Validate *validator.Validate
	Uni      *ut.UniversalTranslator
}

var _ binding.StructValidator = (*CustomValidator)(nil)

// NewCustomValidator 创建校验器并注册 en / zh_cn 翻译
func NewCustomValidator() *CustomValidator {
	v := &CustomValidator{}
	v.lazyinit()
	return v
}

func (v *CustomValidator) ValidateStruct(obj any) error {
	if kindOfData(obj) != reflect.Struct {
		return nil
	}
	v.lazyinit()
	return v.Validate.Struct(obj)
}

func (v *CustomValidator) Engine() any {
	v.lazyinit()
	return v.Validate
}

// Translator 按语言获取翻译器，zh-CN / zh_cn 视为中文，未知语言回退到英文
func (v *CustomValidator) Translator(locale string) ut.Translator {
	v.lazyinit()
	locale = strings.ToLower(strings.ReplaceAll(locale, "-", "_"))
	if strings.HasPrefix(locale, "zh") {
		locale = "zh"
	}
	if trans, found := v.Uni.GetTranslator(locale); found {
		return trans
	}
	trans, _ := v.Uni.GetTranslator("en")
	return trans
}

func (v *CustomValidator) lazyinit() {
	v.once.Do(func() {
		v.Validate = validator.New()
		v.Validate.SetTagName("binding")
		// 错误信息中使用 json 字段名
		v.Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})

		enLocale, zhLocale := en.New(), zh.New()
		v.Uni = ut.New(enLocale, enLocale, zhLocale)

		enTrans, _ := v.Uni.GetTranslator("en")
		zhTrans, _ := v.Uni.GetTranslator("zh")
		if err := en_translations.RegisterDefaultTranslations(v.Validate, enTrans); err != nil {
			panic(errors.Wrap(err, "register en translations"))
		}
		if err := zh_translations.RegisterDefaultTranslations(v.Validate, zhTrans); err != nil {
			panic(errors.Wrap(err, "register zh translations"))
		}
	})
}

func kindOfData(data any) reflect.Kind {
	value := reflect.ValueOf(data)
	valueType := value.Kind()
	if valueType == reflect.Ptr {
		valueType = value.Elem().Kind()
	}
	return valueType
}
