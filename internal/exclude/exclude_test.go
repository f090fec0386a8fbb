package exclude

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		host     string
		want     bool
	}{
		{"wildcard subdomain", []string{"*.bank.com"}, "secure.bank.com", true},
		{"wildcard is case-insensitive", []string{"*.BANK.com"}, "Secure.Bank.COM", true},
		{"wildcard needs full match", []string{"*.bank.com"}, "bank.com", false},
		{"wildcard anchored at end", []string{"*.bank.com"}, "secure.bank.com.evil.org", false},
		{"dot is literal in wildcard", []string{"*.bank.com"}, "securexbankxcom", false},
		{"wildcard in middle", []string{"mail.*.org"}, "mail.example.org", true},
		{"plain substring", []string{"example"}, "www.example.com", true},
		{"plain case-insensitive", []string{"EXAMPLE.com"}, "www.example.com", true},
		{"plain miss", []string{"github.com"}, "gitlab.com", false},
		{"blank patterns ignored", []string{"", "  "}, "anything", false},
		{"no patterns", nil, "example.com", false},
		{"second rule matches", []string{"nope", "*.internal"}, "db.internal", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := Compile(tt.patterns)
			require.NoError(t, err)
			assert.Equal(t, tt.want, l.Match(tt.host))
		})
	}
}

func TestLen(t *testing.T) {
	l, err := Compile([]string{"a", "", "*.b"})
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())

	var nilList *List
	assert.Equal(t, 0, nilList.Len())
	assert.False(t, nilList.Match("x"))
}
