package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsSelfDisclosure(t *testing.T) {
	positives := []string{
		"Olá, eu sou uma IA criada para ajudar",
		"I am a bot",
		"I am an AI assistant",
		"I was programmed to say this",
		"Sou um programa de computador",
		"Fui programado pela equipe",
	}
	for _, s := range positives {
		assert.True(t, ContainsSelfDisclosure(s), s)
	}

	negatives := []string{
		"Você é a Irmã Clara e conversa com os fiéis",
		"Sou uma pessoa muito alegre",
		"Nunca diga que é um programa",
	}
	for _, s := range negatives {
		assert.False(t, ContainsSelfDisclosure(s), s)
	}
}

func TestContainsLink(t *testing.T) {
	assert.True(t, ContainsLink("http://a.b"))
	assert.True(t, ContainsLink("bit.ly/xyz"))
	assert.False(t, ContainsLink("minha igreja fica na rua 7"))
	assert.False(t, ContainsLink("site.com.br"))
}

func TestNormalize(t *testing.T) {
	n := normalize("  Amém!!  Ação, JÁ?  ")
	assert.Equal(t, "amem acao ja", n.text)
	assert.Equal(t, []string{"amem", "acao", "ja"}, n.tokens)
}

func TestTermMatcher(t *testing.T) {
	m := newTermMatcher([]string{"Bíblia", "espírito santo", ""}, []string{"biblia"})
	assert.Equal(t, 2, m.size())

	term, ok := m.match(normalize("Li a biblia hoje"))
	assert.True(t, ok)
	assert.Equal(t, "Bíblia", term)

	term, ok = m.match(normalize("O Espírito Santo nos guia"))
	assert.True(t, ok)
	assert.Equal(t, "espírito santo", term)

	_, ok = m.match(normalize("bibliaoteca"))
	assert.False(t, ok)

	_, ok = m.match(normalize("o espírito santoral"))
	assert.False(t, ok)
	_, ok = m.match(normalize("meu espírito santo"))
	assert.True(t, ok)

	sub := newSubstringMatcher([]string{"cura garantida"})
	_, ok = sub.match(normalize("temos a cura garantidamente"))
	assert.True(t, ok)
	_, ok = newTermMatcher([]string{"cura garantida"}).match(normalize("temos a cura garantidamente"))
	assert.False(t, ok)

	var nilMatcher *termMatcher
	_, ok = nilMatcher.match(normalize("qualquer"))
	assert.False(t, ok)
}

func TestIsEmojiOnly(t *testing.T) {
	assert.True(t, isEmojiOnly("🙏"))
	assert.True(t, isEmojiOnly("👨‍👩‍👧 ✨"))
	assert.False(t, isEmojiOnly("🙏 amém"))
	assert.False(t, isEmojiOnly("!!!"))
	assert.False(t, isEmojiOnly(""))
}
