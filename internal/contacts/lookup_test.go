package contacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adaVCard = `BEGIN:VCARD
VERSION:3.0
FN:Ada Lovelace
TEL;TYPE=CELL:(555) 123-4567
TEL:+1-555-987-6543
END:VCARD
`

const namelessVCard = `BEGIN:VCARD
VERSION:3.0
TEL:5550000000
END:VCARD
`

func writeVCard(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestNormalizeNumber(t *testing.T) {
	assert.Equal(t, "5551234567", NormalizeNumber("(555) 123-4567"))
	assert.Equal(t, "5551234567", NormalizeNumber("+1-555-123-4567"))
	assert.Equal(t, "5551234567", NormalizeNumber("15551234567"))
	assert.Equal(t, "5551234567", NormalizeNumber("555.123.4567"))
	assert.Equal(t, "", NormalizeNumber("no digits"))
}

func TestParseVCard(t *testing.T) {
	contact, ok := parseVCard(adaVCard)
	require.True(t, ok)
	assert.Equal(t, "Ada Lovelace", contact.Name)
	assert.Equal(t, []string{"(555) 123-4567", "+1-555-987-6543"}, contact.PhoneNumbers)
}

func TestParseVCard_SkipsIncomplete(t *testing.T) {
	_, ok := parseVCard(namelessVCard)
	assert.False(t, ok)

	_, ok = parseVCard("BEGIN:VCARD\nFN:No Phone\nEND:VCARD\n")
	assert.False(t, ok)
}

func TestReloadAndResolve(t *testing.T) {
	dir := t.TempDir()
	writeVCard(t, dir, "ada.vcf", adaVCard)
	writeVCard(t, dir, "ignored.txt", "not a vcard")

	l := NewLookup(dir, nil)
	require.NoError(t, l.Reload())

	name, ok := l.Resolve("+15551234567")
	require.True(t, ok)
	assert.Equal(t, "Ada Lovelace", name)

	// Country-code variants resolve to the same contact.
	name, _ = l.Resolve("555-987-6543")
	assert.Equal(t, "Ada Lovelace", name)

	_, ok = l.Resolve("+15550001111")
	assert.False(t, ok)
	assert.Equal(t, "+15550001111", l.NameOrNumber("+15550001111"))
}

func TestReload_MissingDirIsNotAnError(t *testing.T) {
	l := NewLookup("/nonexistent/vcards", nil)
	assert.NoError(t, l.Reload())
	assert.Equal(t, 0, l.Len())
}

func TestReload_ReplacesPreviousMapping(t *testing.T) {
	dir := t.TempDir()
	writeVCard(t, dir, "ada.vcf", adaVCard)

	l := NewLookup(dir, nil)
	require.NoError(t, l.Reload())
	require.Equal(t, 2, l.Len())

	require.NoError(t, os.Remove(filepath.Join(dir, "ada.vcf")))
	require.NoError(t, l.Reload())
	assert.Equal(t, 0, l.Len())
}

func TestSearchByName(t *testing.T) {
	dir := t.TempDir()
	writeVCard(t, dir, "ada.vcf", adaVCard)
	writeVCard(t, dir, "grace.vcf", "FN:Grace Hopper\nTEL:5552223333\n")

	l := NewLookup(dir, nil)
	require.NoError(t, l.Reload())

	got := l.SearchByName("grace", 10)
	require.Len(t, got, 1)
	assert.Equal(t, "Grace Hopper", got[0].Name)

	assert.Empty(t, l.SearchByName("", 10))
	assert.Len(t, l.SearchByName("a", 1), 1)
}

func TestDeviceDir(t *testing.T) {
	assert.Equal(t, "/data/kdeconnect-dev-1", DeviceDir("/data", "dev-1"))
}
