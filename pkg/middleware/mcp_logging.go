package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/logging"
)

// maxLoggedArgLen bounds how much of a string argument (SQL text,
// questions) ends up in the log.
const maxLoggedArgLen = 200

// MCPRequestLogger returns middleware that logs MCP JSON-RPC calls:
// method, tool name and truncated arguments. The response body is not
// intercepted, since streamable HTTP responses may be SSE streams;
// only status and duration are recorded. A nil logger disables
// logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("failed to read mcp request body", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var rpc rpcCall
			// Not every frame is a tools/call; a parse failure is fine.
			_ = json.Unmarshal(body, &rpc)

			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			logger.Debug("mcp call",
				zap.String("method", rpc.Method),
				zap.String("tool", rpc.Params.Name),
				zap.Any("arguments", truncateArguments(rpc.Params.Arguments)),
				zap.Int("status", wrapped.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// rpcCall is the slice of a JSON-RPC tools/call frame the log needs.
type rpcCall struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

// truncateArguments bounds string arguments and redacts anything that
// looks like a credential.
func truncateArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "password") || strings.Contains(lower, "secret") ||
			strings.Contains(lower, "token") || strings.Contains(lower, "credential") {
			out[k] = logging.RedactedText
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = logging.TruncateString(s, maxLoggedArgLen)
			continue
		}
		out[k] = v
	}
	return out
}
