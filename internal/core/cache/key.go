package cache

import (
	"fmt"
	"strings"

	coreerrors "folio-core/internal/core/errors"
)

// 键语法：{prefix}:{domain}:{selector}[:{qualifier}]*
//
// 段内禁止 ':' 与 glob 元字符，否则 DelPattern 会跨域误删。
const separator = ":"

// 领域名
const (
	DomainSeries   = "series"
	DomainChapter  = "chapter"
	DomainGenres   = "genres"
	DomainSettings = "settings"
	DomainUser     = "user"
)

// Key 严格构建键，任一段非法则报错
func Key(prefix, domain, selector string, qualifiers ...string) (string, error) {
	segments := append([]string{prefix, domain, selector}, qualifiers...)
	for i, seg := range segments {
		if err := validateSegment(seg); err != nil {
			return "", coreerrors.Wrapf(err, coreerrors.CodeInvalidParam, "cache key segment %d", i)
		}
	}
	return strings.Join(segments, separator), nil
}

// Pattern 领域通配：{prefix}:{domain}:*
func Pattern(prefix, domain string) (string, error) {
	for _, seg := range []string{prefix, domain} {
		if err := validateSegment(seg); err != nil {
			return "", coreerrors.Wrap(err, coreerrors.CodeInvalidParam, "cache pattern")
		}
	}
	return prefix + separator + domain + separator + "*", nil
}

func validateSegment(seg string) error {
	if seg == "" {
		return fmt.Errorf("empty segment")
	}
	for i := 0; i < len(seg); i++ {
		if needsEscape(seg[i]) {
			return fmt.Errorf("invalid byte %q in %q", seg[i], seg)
		}
	}
	return nil
}

func needsEscape(c byte) bool {
	switch c {
	case ':', '*', '?', '[', ']', '\\', '%':
		return true
	}
	return c <= 0x20 || c >= 0x7f
}

// escapeSegment 把调用方传入的 id 等自由文本转义成合法段
func escapeSegment(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if needsEscape(c) {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Keys 各领域键构建器，自由文本自动转义
type Keys struct {
	Prefix string
}

func (k Keys) build(domain, selector string, qualifiers ...string) string {
	parts := make([]string, 0, 3+len(qualifiers))
	parts = append(parts, k.Prefix, domain, escapeSegment(selector))
	for _, q := range qualifiers {
		parts = append(parts, escapeSegment(q))
	}
	return strings.Join(parts, separator)
}

func (k Keys) pattern(domain string) string {
	return k.Prefix + separator + domain + separator + "*"
}

func (k Keys) Series(id string) string { return k.build(DomainSeries, id) }

// SeriesList 列表/分页查询，qualifiers 通常是筛选条件与页码
func (k Keys) SeriesList(qualifiers ...string) string {
	return k.build(DomainSeries, "list", qualifiers...)
}

func (k Keys) SeriesPattern() string { return k.pattern(DomainSeries) }

func (k Keys) Chapter(id string) string { return k.build(DomainChapter, id) }

func (k Keys) ChapterPages(id string) string { return k.build(DomainChapter, id, "pages") }

func (k Keys) ChapterPattern() string { return k.pattern(DomainChapter) }

func (k Keys) Genres() string { return k.build(DomainGenres, "all") }

func (k Keys) GenresPattern() string { return k.pattern(DomainGenres) }

func (k Keys) Settings(name string) string { return k.build(DomainSettings, name) }

func (k Keys) SettingsPattern() string { return k.pattern(DomainSettings) }

func (k Keys) User(id string) string { return k.build(DomainUser, id) }

func (k Keys) UserPattern() string { return k.pattern(DomainUser) }

// DomainPattern 按名称取领域通配，未知领域报错
func (k Keys) DomainPattern(domain string) (string, error) {
	switch domain {
	case DomainSeries, DomainChapter, DomainGenres, DomainSettings, DomainUser:
		return k.pattern(domain), nil
	}
	return "", coreerrors.Newf(coreerrors.CodeInvalidParam, "unknown cache domain %q", domain)
}
