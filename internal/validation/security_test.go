package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateArgument(t *testing.T) {
	valid := []string{"tstl", "-p", "tsconfig.json", "--luaTarget", "5.4", "/usr/bin/npx"}
	for _, arg := range valid {
		assert.NoError(t, ValidateArgument(arg), arg)
	}

	invalid := []string{"a;b", "$(id)", "`id`", "a|b", "../x", "/etc/passwd", "a\nb", "'quoted'"}
	for _, arg := range invalid {
		assert.Error(t, ValidateArgument(arg), arg)
	}
}

func TestValidateCommand(t *testing.T) {
	allowed := map[string]bool{"npx": true, "tstl": true}

	assert.NoError(t, ValidateCommand("npx", allowed))
	assert.NoError(t, ValidateCommand("/usr/bin/npx", allowed))
	assert.Error(t, ValidateCommand("", allowed))
	assert.Error(t, ValidateCommand("bash", allowed))
	assert.Error(t, ValidateCommand("/opt/evil/npx", allowed))
}

func TestValidateOriginFormat(t *testing.T) {
	for _, origin := range []string{"http://localhost:8080", "https://example.com", "localhost:3000", "example.com"} {
		assert.NoError(t, ValidateOriginFormat(origin), origin)
	}
	for _, origin := range []string{"", "ws://example.com", "https://", "example.com/path", "a b"} {
		assert.Error(t, ValidateOriginFormat(origin), origin)
	}
}

func TestValidateOrigin(t *testing.T) {
	allowed := []string{"https://example.com", "localhost:8080"}

	assert.NoError(t, ValidateOrigin("https://example.com", allowed))
	assert.NoError(t, ValidateOrigin("http://localhost:8080", allowed))
	assert.Error(t, ValidateOrigin("", allowed))
	assert.Error(t, ValidateOrigin("https://evil.com", allowed))
	assert.Error(t, ValidateOrigin("file://localhost:8080", allowed))
}

func TestValidateSnippetID(t *testing.T) {
	assert.NoError(t, ValidateSnippetID("Ab3_-xYz09"))
	assert.Error(t, ValidateSnippetID("short"))
	assert.Error(t, ValidateSnippetID("has/slash/inside"))
	assert.Error(t, ValidateSnippetID("dots.are.not.ok"))
}
