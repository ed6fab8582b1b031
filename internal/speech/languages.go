// Package speech turns analysed sentences into spoken audio.
package speech

import "strings"

// DefaultCode is used for languages missing from the table.
const DefaultCode = "ja"

var languageCodes = map[string]string{
	"日语": "ja", "日本語": "ja", "japanese": "ja",
	"英语": "en", "english": "en",
	"中文": "zh-CN", "汉语": "zh-CN", "简体中文": "zh-CN", "chinese": "zh-CN",
	"繁体中文": "zh-TW",
	"韩语": "ko", "朝鲜语": "ko", "korean": "ko",
	"法语": "fr", "french": "fr",
	"德语": "de", "german": "de",
	"西班牙语": "es", "spanish": "es",
	"意大利语": "it", "italian": "it",
	"俄语": "ru", "russian": "ru",
	"葡萄牙语": "pt", "portuguese": "pt",
}

// Code maps a language label as produced by the model to a TTS language code.
func Code(language string) string {
	if code, ok := languageCodes[strings.ToLower(strings.TrimSpace(language))]; ok {
		return code
	}
	return DefaultCode
}
