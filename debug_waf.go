package inspectcore

import (
	"strings"

	"go.uber.org/zap"
)

// debugScan logs a detailed trace of a WAF scan outcome when the logger is
// configured at debug level, mirroring the teacher's per-request debug
// logging around rule hits.
func debugScan(logger *zap.Logger, req *RequestRecord, hits []string, totalScore, threshold int, blocked bool) {
	if ce := logger.Check(zap.DebugLevel, "waf scan"); ce != nil {
		ce.Write(
			zap.String("authority", req.Authority),
			zap.String("path", req.Path),
			zap.Int("total_score", totalScore),
			zap.Int("threshold", threshold),
			zap.Bool("blocked", blocked),
			zap.String("matched_signatures", strings.Join(hits, ",")),
		)
	}
}
