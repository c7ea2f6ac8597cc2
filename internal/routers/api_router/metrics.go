package api_router

import (
	"encoding/json"
	"expvar"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Expvar 导出 expvar 运行时变量（memstats、cmdline 等）
func Expvar(c *gin.Context) {
	vars := make(map[string]json.RawMessage)
	expvar.Do(func(kv expvar.KeyValue) {
		vars[kv.Key] = json.RawMessage(kv.Value.String())
	})
	c.JSON(http.StatusOK, vars)
}
