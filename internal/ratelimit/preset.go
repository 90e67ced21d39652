package ratelimit

import "time"

// Preset 预设名，按端点类别选择而不是手调数字
type Preset string

const (
	PresetStrict   Preset = "strict"
	PresetStandard Preset = "standard"
	PresetRelaxed  Preset = "relaxed"
	PresetAuth     Preset = "auth"
	PresetUpload   Preset = "upload"
	PresetSearch   Preset = "search"
)

// DefaultPresets 内置预设
func DefaultPresets() map[Preset]Limit {
	return map[Preset]Limit{
		PresetStrict:   {Window: time.Minute, MaxRequests: 10},
		PresetStandard: {Window: time.Minute, MaxRequests: 60},
		PresetRelaxed:  {Window: time.Minute, MaxRequests: 300},
		PresetAuth:     {Window: 15 * time.Minute, MaxRequests: 5},
		PresetUpload:   {Window: time.Hour, MaxRequests: 20},
		PresetSearch:   {Window: time.Minute, MaxRequests: 30},
	}
}
