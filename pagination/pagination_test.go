package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ads-scraper/config"
)

func TestBuildPageURLs(t *testing.T) {
	tests := []struct {
		name     string
		template string
		pages    int
		want     []string
	}{
		{
			name:     "appended page number",
			template: "https://avitoua.com/search/iPage,",
			pages:    3,
			want: []string{
				"https://avitoua.com/search/iPage,1",
				"https://avitoua.com/search/iPage,2",
				"https://avitoua.com/search/iPage,3",
			},
		},
		{
			name:     "placeholder in query",
			template: "https://example.com/list?iPage={page}&sort=new",
			pages:    2,
			want: []string{
				"https://example.com/list?iPage=1&sort=new",
				"https://example.com/list?iPage=2&sort=new",
			},
		},
		{
			name:     "single page",
			template: "http://example.com/p/{page}/",
			pages:    1,
			want:     []string{"http://example.com/p/1/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildPageURLs(tt.template, tt.pages)
			require.NoError(t, err)
			require.Len(t, got, tt.pages)
			for i, p := range got {
				assert.Equal(t, i+1, p.Number)
				assert.Equal(t, tt.want[i], p.URL)
			}
		})
	}
}

func TestBuildPageURLsErrors(t *testing.T) {
	_, err := BuildPageURLs("https://example.com/", 0)
	assert.ErrorIs(t, err, ErrZeroPages)
	assert.ErrorIs(t, err, config.ErrZeroPages)

	_, err = BuildPageURLs("https://example.com/", -1)
	assert.Error(t, err)

	_, err = BuildPageURLs("/search/iPage,", 2)
	assert.Error(t, err)

	_, err = BuildPageURLs("mailto:someone@example.com?p={page}", 2)
	assert.Error(t, err)
}

func TestPageLabel(t *testing.T) {
	assert.Equal(t, "page 2/5", PageLabel(2, 5))
}
