package output

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ads-scraper/models"
)

var sampleAds = []models.Ad{
	{Title: "Bicycle", Link: "https://avitoua.com/ad/1", ShortDescription: "Red; fast", Country: "Ukraine", City: "Kyiv", Price: "1 200 грн"},
	{Title: `Sofa "XL"`, Link: "/ad/2", ShortDescription: "Шкіряний", Country: "Україна", City: "Львів", Price: "500 грн"},
	{Title: "Lamp", Link: "/ad/3", ShortDescription: "line one\nline two", Country: "", City: "", Price: ""},
}

func readBack(t *testing.T, data []byte, delimiter rune) [][]string {
	t.Helper()
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delimiter
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteRoundTripsHeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	n, err := Write(&buf, sampleAds, Options{})
	require.NoError(t, err)
	assert.Equal(t, len(sampleAds), n)

	rows := readBack(t, buf.Bytes(), ';')
	require.Len(t, rows, len(sampleAds)+1)
	assert.Equal(t, models.Header(), rows[0])
	for i, ad := range sampleAds {
		assert.Equal(t, ad.Record(), rows[i+1])
	}
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("title;link;short_description;country;city;price\n")))
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	n, err := Write(&buf, nil, Options{Delimiter: ';'})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "title;link;short_description;country;city;price\n", buf.String())
}

func TestWriteBOMAndDelimiter(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(&buf, sampleAds[:1], Options{Delimiter: '\t', BOM: true})
	require.NoError(t, err)

	data := buf.Bytes()
	require.True(t, bytes.HasPrefix(data, utf8BOM))
	rows := readBack(t, data[len(utf8BOM):], '\t')
	require.Len(t, rows, 2)
	assert.Equal(t, "Red; fast", rows[1][2])
}

func TestWriteAdsOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ads.csv")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("stale data\n"), 100), 0o644))

	n, err := WriteAds(path, sampleAds[:2], Options{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale data")

	rows := readBack(t, data, ';')
	require.Len(t, rows, 3)
	assert.Equal(t, "Львів", rows[2][4])
}

func TestWriteAdsBadPath(t *testing.T) {
	_, err := WriteAds(filepath.Join(t.TempDir(), "missing", "ads.csv"), sampleAds, Options{})
	assert.Error(t, err)
}
