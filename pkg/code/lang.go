package code

import (
	"errors"
	"reflect"
	"sync/atomic"
)

// lang stores the English and Chinese text of a message
// lang 存储英文和中文文本
type lang struct {
	en    string // English // 英文
	zh_cn string // Chinese // 中文
}

const FALLBACK_LNG = "en"

var lng atomic.Value

func init() {
	lng.Store(FALLBACK_LNG)
}

// GetMessage returns the message in the global language, falling back to English
// GetMessage 按全局语言返回消息，缺失时回退到英文
func (l lang) GetMessage() string {
	return l.In(GetGlobalDefaultLang())
}

// In 返回指定语言的消息
func (l lang) In(language string) string {
	val := reflect.ValueOf(l)
	if field := val.FieldByName(language); field.IsValid() && field.String() != "" {
		return field.String()
	}
	return l.en
}

// GetSupportedLanguages returns all languages of the lang type
// GetSupportedLanguages 返回 lang 类型支持的所有语言
func GetSupportedLanguages() []string {
	typ := reflect.TypeOf(lang{})
	languages := make([]string, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		languages = append(languages, typ.Field(i).Name)
	}
	return languages
}

// SetGlobalDefaultLang sets the global language; unknown values reset it to English
// SetGlobalDefaultLang 设置全局默认语言，不支持的语言回退到英文
func SetGlobalDefaultLang(language string) error {
	for _, l := range GetSupportedLanguages() {
		if language == l {
			lng.Store(language)
			return nil
		}
	}
	lng.Store(FALLBACK_LNG)
	return errors.New("unsupported language type, set defaulting to " + FALLBACK_LNG)
}

// GetGlobalDefaultLang 获取全局默认语言
func GetGlobalDefaultLang() string {
	if s, ok := lng.Load().(string); ok && s != "" {
		return s
	}
	return FALLBACK_LNG
}
