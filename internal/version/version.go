// Package version 构建信息，通过 -ldflags 注入
package version

import "strings"

var (
	// Version 版本号，例如 -ldflags "-X folio-core/internal/version.Version=1.4.0"
	Version = "dev"

	// BuildTime 构建时间
	BuildTime = ""

	// GitCommit 提交哈希
	GitCommit = ""
)

// GetShortVersion 简短版本号
func GetShortVersion() string {
	return "v" + strings.TrimPrefix(Version, "v")
}

// GetVersion 带构建时间与提交的完整版本
func GetVersion() string {
	v := GetShortVersion()
	if BuildTime != "" {
		v += " (built " + BuildTime + ")"
	}
	if GitCommit != "" {
		commit := GitCommit
		if len(commit) > 8 {
			commit = commit[:8]
		}
		v += " commit " + commit
	}
	return v
}
