package session

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestExcerpt_TruncatesOnRuneBoundary(t *testing.T) {
	text := strings.Repeat("é", 10)

	got := excerpt(text, 5)
	assert.Equal(t, strings.Repeat("é", 5)+"...", got)
	assert.True(t, utf8.ValidString(got))
}

func TestExcerpt_ShortTextUntouched(t *testing.T) {
	assert.Equal(t, "warm analog light", excerpt("warm  analog\nlight", 200))
}
