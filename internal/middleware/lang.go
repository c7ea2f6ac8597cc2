package middleware

import (
	"github.com/haierkeys/sticky-note-canvas-service/pkg/app"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/code"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/validator"

	"github.com/gin-gonic/gin"
)

// Lang 按 ?lang= 或 lang 请求头选择校验翻译器和结果码语言
func Lang(v *validator.CustomValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang, exist := c.GetQuery("lang")
		if !exist {
			lang = c.GetHeader("lang")
		}

		c.Set(app.TransKey, v.Translator(lang))
		if lang != "" {
			_ = code.SetGlobalDefaultLang(normalizeLang(lang))
		}

		c.Next()
	}
}

func normalizeLang(lang string) string {
	switch lang {
	case "zh", "zh-CN", "zh_CN", "zh-cn", "zh_cn":
		return "zh_cn"
	default:
		return lang
	}
}
