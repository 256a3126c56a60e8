package tts

import (
	"sort"

	"github.com/book-expert/voice-assistant/internal/core"
)

// Rate and volume bounds accepted by the engines.
const (
	MinRate   = 0.5
	MaxRate   = 2.0
	MinVolume = 0.5
	MaxVolume = 1.5
)

// DefaultVoice is used when a request does not name one.
const DefaultVoice = "zh-CN-XiaoxiaoNeural"

var engineDescriptions = map[EngineID]string{
	EngineEdge:  "Microsoft Edge TTS",
	EngineAzure: "Azure Cognitive Services",
}

// Azure shares the Edge neural voice catalogue.
var neuralVoices = map[string]string{
	"zh-CN-XiaoxiaoNeural":   "晓晓 (女声)",
	"zh-CN-YunxiNeural":      "云希 (男声)",
	"zh-CN-YunyangNeural":    "云扬 (男声)",
	"zh-CN-XiaoyiNeural":     "晓伊 (女声)",
	"zh-CN-YunjianNeural":    "云健 (男声)",
	"zh-CN-XiaochenNeural":   "晓辰 (女声)",
	"zh-CN-XiaohanNeural":    "晓涵 (女声)",
	"zh-CN-XiaomengNeural":   "晓梦 (女声)",
	"zh-CN-XiaomoNeural":     "晓墨 (女声)",
	"zh-CN-XiaoqiuNeural":    "晓秋 (女声)",
	"zh-CN-XiaoruiNeural":    "晓睿 (女声)",
	"zh-CN-XiaoshuangNeural": "晓双 (女声)",
	"zh-CN-XiaoxuanNeural":   "晓萱 (女声)",
	"zh-CN-XiaoyanNeural":    "晓颜 (女声)",
	"zh-CN-XiaoyouNeural":    "晓悠 (女声)",
	"zh-CN-XiaozhenNeural":   "晓甄 (女声)",
	"zh-CN-YunfengNeural":    "云枫 (男声)",
	"zh-CN-YunhaoNeural":     "云皓 (男声)",
	"zh-CN-YunjieNeural":     "云杰 (男声)",
	"zh-CN-YunxiaNeural":     "云夏 (男声)",
	"zh-CN-YunyeNeural":      "云野 (男声)",
	"zh-CN-YunzeNeural":      "云泽 (男声)",
}

// Engines returns the supported engines with a display name each.
func Engines() map[string]string {
	engines := make(map[string]string, len(engineDescriptions))
	for id, description := range engineDescriptions {
		engines[string(id)] = description
	}

	return engines
}

// Voices returns the voices of an engine keyed by voice id. Unknown engines
// have no voices.
func Voices(engine string) map[string]string {
	id, err := ParseEngine(engine)
	if err != nil {
		return map[string]string{}
	}

	switch id {
	case EngineEdge, EngineAzure:
		voices := make(map[string]string, len(neuralVoices))
		for voice, name := range neuralVoices {
			voices[voice] = name
		}

		return voices
	default:
		return map[string]string{}
	}
}

// VoiceIDs returns the voice ids of an engine in sorted order.
func VoiceIDs(engine string) []string {
	voices := Voices(engine)

	ids := make([]string, 0, len(voices))
	for id := range voices {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// ValidateConfig checks a synthesis configuration. An unlisted voice is only
// a warning because the engines accept more voices than are catalogued.
func ValidateConfig(engine, voice string, rate, volume float64) core.ValidationResult {
	result := core.NewValidationResult()

	_, engineErr := ParseEngine(engine)
	if engineErr != nil {
		result.AddError("unsupported TTS engine: %s", engine)
	}

	if _, known := Voices(engine)[voice]; !known {
		result.AddWarning("voice %s may not be supported", voice)
	}

	if !(rate >= MinRate && rate <= MaxRate) {
		result.AddError("rate must be between %.1f and %.1f", MinRate, MaxRate)
	}

	if !(volume >= MinVolume && volume <= MaxVolume) {
		result.AddError("volume must be between %.1f and %.1f", MinVolume, MaxVolume)
	}

	return result
}
