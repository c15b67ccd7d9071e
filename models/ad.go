package models

// Column names of the output file, in field order
const (
	ColumnTitle            = "title"
	ColumnLink             = "link"
	ColumnShortDescription = "short_description"
	ColumnCountry          = "country"
	ColumnCity             = "city"
	ColumnPrice            = "price"
)

// Ad represents one classified ad row from a listing page
type Ad struct {
	Title            string
	Link             string
	ShortDescription string
	Country          string
	City             string
	Price            string
}

// Header returns the fixed output header
func Header() []string {
	return []string{
		ColumnTitle,
		ColumnLink,
		ColumnShortDescription,
		ColumnCountry,
		ColumnCity,
		ColumnPrice,
	}
}

// Record returns the ad fields in header order
func (a Ad) Record() []string {
	return []string{
		a.Title,
		a.Link,
		a.ShortDescription,
		a.Country,
		a.City,
		a.Price,
	}
}

// Page is one fetched listing page
type Page struct {
	Number      int // 1-based page number
	URL         string
	Body        []byte
	ContentType string
}
