// Package i18n renders the host's localized log messages.
package i18n

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// MessageKey identifies a localized message
type MessageKey string

const (
	MsgManagerLoad          MessageKey = "brace.plugin_manager.load"
	MsgPluginsLoading       MessageKey = "brace.plugins.loading"
	MsgCandidateSkipped     MessageKey = "brace.plugin.load.warn.skipped"
	MsgNoMainType           MessageKey = "brace.plugin.load.warn.dont_has_main_class"
	MsgPackageUninstalled   MessageKey = "brace.plugin.load.uninstalled"
	MsgDuplicateID          MessageKey = "brace.plugin.load.warn.has_same_id_plugin"
	MsgDirectoryUnavailable MessageKey = "brace.plugin.load.warn.directory_unavailable"
	MsgPluginRegistered     MessageKey = "brace.plugin.registered"
	MsgScanComplete         MessageKey = "brace.plugins.scan_complete"
	MsgLifecycleDone        MessageKey = "brace.plugin.lifecycle.done"
	MsgLifecycleFailed      MessageKey = "brace.plugin.lifecycle.failed"
)

// Translator renders a message by key with positional arguments
type Translator interface {
	Sprintf(key MessageKey, args ...any) string
}

var messages = map[language.Tag]map[MessageKey]string{
	language.English: {
		MsgManagerLoad:          "Loading plugin manager",
		MsgPluginsLoading:       "Loading plugins from %s",
		MsgCandidateSkipped:     "Skipping plugin package %s: %v",
		MsgNoMainType:           "Plugin package %s has no usable main type: %v",
		MsgPackageUninstalled:   "Plugin package %s was uninstalled, not loading it again",
		MsgDuplicateID:          "A plugin with id %s is already registered, ignoring %s",
		MsgDirectoryUnavailable: "Plugins directory %s is unavailable: %v",
		MsgPluginRegistered:     "Registered plugin %s (%s)",
		MsgScanComplete:         "Found %d plugin package(s) in %s",
		MsgLifecycleDone:        "Plugin %s: %s complete",
		MsgLifecycleFailed:      "Plugin %s: %s failed: %v",
	},
	language.Chinese: {
		MsgManagerLoad:          "正在加载插件管理器",
		MsgPluginsLoading:       "正在从 %s 加载插件",
		MsgCandidateSkipped:     "跳过插件包 %s: %v",
		MsgNoMainType:           "插件包 %s 没有可用的主类型: %v",
		MsgPackageUninstalled:   "插件包 %s 已卸载, 不再加载",
		MsgDuplicateID:          "已存在 ID 为 %s 的插件, 忽略 %s",
		MsgDirectoryUnavailable: "插件目录 %s 不可用: %v",
		MsgPluginRegistered:     "已注册插件 %s (%s)",
		MsgScanComplete:         "在 %[2]s 中找到 %[1]d 个插件包",
		MsgLifecycleDone:        "插件 %s: %s 完成",
		MsgLifecycleFailed:      "插件 %s: %s 失败: %v",
	},
}

var (
	builder = newBuilder()
	matcher = language.NewMatcher([]language.Tag{language.English, language.Chinese})
)

func newBuilder() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range messages {
		for key, format := range msgs {
			if err := b.SetString(tag, string(key), format); err != nil {
				panic(fmt.Sprintf("i18n: invalid message %s: %v", key, err))
			}
		}
	}
	return b
}

// Printer is a Translator backed by the built-in message catalog
type Printer struct {
	tag     language.Tag
	printer *message.Printer
}

// New returns a Printer for lang (e.g. "en", "zh-CN"). Unknown languages fall back to English.
func New(lang string) *Printer {
	tag := language.English
	if lang = strings.TrimSpace(lang); lang != "" {
		if parsed, err := language.Parse(lang); err == nil {
			_, idx, _ := matcher.Match(parsed)
			tag = []language.Tag{language.English, language.Chinese}[idx]
		}
	}

	return &Printer{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(builder)),
	}
}

// Default returns the English printer
func Default() *Printer {
	return New("en")
}

// Language returns the resolved language tag
func (p *Printer) Language() language.Tag {
	return p.tag
}

// Sprintf renders key. Keys missing from the catalog render as the key followed by the arguments.
func (p *Printer) Sprintf(key MessageKey, args ...any) string {
	if _, ok := messages[language.English][key]; !ok {
		if len(args) == 0 {
			return string(key)
		}
		return strings.TrimSpace(string(key) + " " + fmt.Sprintln(args...))
	}
	return p.printer.Sprintf(string(key), args...)
}
