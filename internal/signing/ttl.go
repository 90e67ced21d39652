package signing

import (
	"strconv"
	"strings"
	"time"

	coreerrors "folio-core/internal/core/errors"
)

var ttlUnits = map[string]time.Duration{
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
	"w":  7 * 24 * time.Hour,
	"y":  365 * 24 * time.Hour,
}

// ParseTTL 解析 "1h"、"30m"、"7d"、"500ms" 等时长；纯数字按秒计
func ParseTTL(spec string) (time.Duration, error) {
	s := strings.TrimSpace(strings.ToLower(spec))
	if s == "" {
		return 0, coreerrors.New(coreerrors.CodeInvalidParam, "empty ttl")
	}

	i := 0
	for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
		i++
	}
	num, unit := s[:i], strings.TrimSpace(s[i:])
	if num == "" {
		return 0, coreerrors.Newf(coreerrors.CodeInvalidParam, "ttl %q has no number", spec)
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, coreerrors.Wrapf(err, coreerrors.CodeInvalidParam, "ttl %q", spec)
	}

	mult := time.Second
	if unit != "" {
		var ok bool
		if mult, ok = ttlUnits[unit]; !ok {
			return 0, coreerrors.Newf(coreerrors.CodeInvalidParam, "ttl %q has unknown unit %q", spec, unit)
		}
	}

	d := time.Duration(n * float64(mult))
	if d <= 0 {
		return 0, coreerrors.Newf(coreerrors.CodeInvalidParam, "ttl %q must be positive", spec)
	}
	return d, nil
}
