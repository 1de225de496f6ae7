package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "rtx 3060 ti", Fold("RTX 3060 Ti"))
	assert.Equal(t, "видеокарта", Fold("ВИДЕОКАРТА"))
	assert.Equal(t, "rtx 4090", Fold("ＲＴＸ ４０９０"), "full-width runes fold to ASCII")
}

func TestWords(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  RTX-3060 / 12GB!! ", "rtx 3060 12gb"},
		{"Видеокарта: GTX 1060, 6 ГБ", "видеокарта gtx 1060 6 гб"},
		{"", ""},
		{"***", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Words(tt.in), tt.in)
	}
}

func TestContainsPhrase(t *testing.T) {
	assert.True(t, ContainsPhrase("asus rtx 3060 ti oc", "rtx 3060 ti"))
	assert.True(t, ContainsPhrase("rtx 3060", "rtx 3060"))
	assert.False(t, ContainsPhrase("rtx 30600", "rtx 3060"))
	assert.False(t, ContainsPhrase("xrtx 3060", "rtx 3060"))
	assert.False(t, ContainsPhrase("rtx 3060", ""))
}
