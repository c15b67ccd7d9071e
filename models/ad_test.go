package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeader(t *testing.T) {
	assert.Equal(t,
		[]string{"title", "link", "short_description", "country", "city", "price"},
		Header())
}

func TestRecordFollowsHeader(t *testing.T) {
	ad := Ad{
		Title:            "Bike",
		Link:             "https://example.com/ad/1",
		ShortDescription: "Red bike",
		Country:          "Ukraine",
		City:             "Kyiv",
		Price:            "100 $",
	}

	record := ad.Record()
	assert.Len(t, record, len(Header()))

	byColumn := map[string]string{}
	for i, col := range Header() {
		byColumn[col] = record[i]
	}
	assert.Equal(t, "Bike", byColumn[ColumnTitle])
	assert.Equal(t, "https://example.com/ad/1", byColumn[ColumnLink])
	assert.Equal(t, "Red bike", byColumn[ColumnShortDescription])
	assert.Equal(t, "Ukraine", byColumn[ColumnCountry])
	assert.Equal(t, "Kyiv", byColumn[ColumnCity])
	assert.Equal(t, "100 $", byColumn[ColumnPrice])
}
