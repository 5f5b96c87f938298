package i18n

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestNew(t *testing.T) {
	tests := []struct {
		lang string
		want language.Tag
	}{
		{"", language.English},
		{"en", language.English},
		{"en-GB", language.English},
		{"zh", language.Chinese},
		{"zh-CN", language.Chinese},
		{"fr", language.English},
		{"not a language", language.English},
	}

	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.lang).Language())
		})
	}
}

func TestPrinter_Sprintf(t *testing.T) {
	t.Run("english", func(t *testing.T) {
		p := Default()
		assert.Equal(t, "A plugin with id alpha is already registered, ignoring b.plugin",
			p.Sprintf(MsgDuplicateID, "alpha", "b.plugin"))
		assert.Equal(t, "Skipping plugin package c.plugin: manifest missing",
			p.Sprintf(MsgCandidateSkipped, "c.plugin", errors.New("manifest missing")))
		assert.Equal(t, "Plugin package d.plugin has no usable main type: entry point missing",
			p.Sprintf(MsgNoMainType, "d.plugin", errors.New("entry point missing")))
	})

	t.Run("chinese", func(t *testing.T) {
		p := New("zh")
		assert.Equal(t, "正在从 plugins 加载插件", p.Sprintf(MsgPluginsLoading, "plugins"))
		assert.Equal(t, "在 plugins 中找到 2 个插件包", p.Sprintf(MsgScanComplete, 2, "plugins"))
	})

	t.Run("unknown key", func(t *testing.T) {
		p := Default()
		assert.Equal(t, "brace.unknown", p.Sprintf("brace.unknown"))
		assert.Equal(t, "brace.unknown a 1", p.Sprintf("brace.unknown", "a", 1))
	})
}

func TestCatalogsCoverSameKeys(t *testing.T) {
	for key := range messages[language.English] {
		assert.Contains(t, messages[language.Chinese], key)
	}
	assert.Len(t, messages[language.Chinese], len(messages[language.English]))
}
