package breadbox_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/modestbitboard/breadbox"
)

func TestIsValidName(t *testing.T) {
	valid := []string{"games", "Games", "linux-isos", "anime_2024", "a"}
	for _, name := range valid {
		assert.True(t, breadbox.IsValidName(name), name)
	}

	invalid := []string{"", "games!", "two words", "a/b", "ünïcode", "."}
	for _, name := range invalid {
		assert.False(t, breadbox.IsValidName(name), name)
	}
}

func TestIsValidFilename(t *testing.T) {
	valid := []string{"thumbnail.jpg", "game.7z", "some file.iso", "日本語.mkv"}
	for _, name := range valid {
		assert.True(t, breadbox.IsValidFilename(name), name)
	}

	invalid := []string{"", ".", "..", "a/b.iso", `a\b.iso`, "nul\x00byte", "ctrl\x1b.bin", string([]byte{0xff, 0xfe})}
	for _, name := range invalid {
		assert.False(t, breadbox.IsValidFilename(name), name)
	}
}
