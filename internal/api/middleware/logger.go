package middleware

import (
	"fmt"
	"strings"
	"time"

	"phoneshop/internal/logger"

	"github.com/gin-gonic/gin"
)

type logWriter struct {
	logger *logger.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	w.logger.Info("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// Logger writes one access line per request through the process logger.
func Logger(logger *logger.Logger) gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		Output:    logWriter{logger: logger},
		SkipPaths: []string{"/healthz"},
		Formatter: func(param gin.LogFormatterParams) string {
			staff, _ := param.Keys[StaffKey].(string)
			if staff == "" {
				staff = "-"
			}
			line := fmt.Sprintf("[%s] %s %s %d %s %s %s",
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.StatusCode,
				param.Latency,
				param.ClientIP,
				staff,
			)
			if param.ErrorMessage != "" {
				line += " " + param.ErrorMessage
			}
			return line + "\n"
		},
	})
}
