package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"ads-scraper/logger"
	"ads-scraper/models"
)

// maxSheetNameLen is the longest tab title Google Sheets accepts
const maxSheetNameLen = 100

// Writer handles writing ads to Google Sheets
type Writer struct {
	service       *sheets.Service
	spreadsheetID string
	log           *zap.SugaredLogger
}

// NewWriter creates a new Google Sheets writer.
// Credentials are read from credentialsPath or, when empty, from GOOGLE_SHEETS_CREDENTIALS.
func NewWriter(ctx context.Context, spreadsheetID, credentialsPath string, log *zap.SugaredLogger) (*Writer, error) {
	log = logger.OrNop(log)
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID is empty")
	}

	credsJSON, err := readCredentials(credentialsPath)
	if err != nil {
		return nil, err
	}

	service, err := sheets.NewService(ctx, option.WithCredentialsJSON(credsJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Writer{
		service:       service,
		spreadsheetID: spreadsheetID,
		log:           log,
	}, nil
}

// readCredentials loads and validates service account credentials
func readCredentials(credentialsPath string) ([]byte, error) {
	var credsJSON []byte
	if credentialsPath != "" {
		data, err := os.ReadFile(credentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		credsJSON = data
	} else {
		credsEnv := strings.TrimSpace(os.Getenv("GOOGLE_SHEETS_CREDENTIALS"))
		if credsEnv == "" {
			return nil, fmt.Errorf("credentials not found: GOOGLE_SHEETS_CREDENTIALS environment variable is empty or not set")
		}
		credsJSON = []byte(credsEnv)
	}

	var creds struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(credsJSON, &creds); err != nil {
		return nil, fmt.Errorf("invalid credentials JSON: %w", err)
	}
	if creds.Type != "service_account" {
		return nil, fmt.Errorf("credentials must be a service account JSON file (type: service_account), got type: %q", creds.Type)
	}
	return credsJSON, nil
}

// CreateSheetAndWriteAds creates a new sheet at the beginning of the spreadsheet
// and writes the ads to it. It returns the sheet name and sheet ID (gid).
func (w *Writer) CreateSheetAndWriteAds(ctx context.Context, sheetName string, ads []models.Ad, sourceURL string) (string, int64, error) {
	sheetName = sanitizeSheetName(sheetName)

	batchUpdateRequest := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{
						Title: sheetName,
						Index: 0,
						// Index 0 is the zero value and would be dropped from the request
						ForceSendFields: []string{"Index"},
					},
				},
			},
		},
	}

	resp, err := w.service.Spreadsheets.BatchUpdate(w.spreadsheetID, batchUpdateRequest).Context(ctx).Do()
	if err != nil {
		return "", 0, fmt.Errorf("failed to create sheet: %w", err)
	}

	var sheetID int64
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		sheetID = resp.Replies[0].AddSheet.Properties.SheetId
	}
	w.log.Infof("Created sheet '%s' with ID %d", sheetName, sheetID)

	valueRange := &sheets.ValueRange{
		Values: buildValues(ads, sourceURL),
	}
	_, err = w.service.Spreadsheets.Values.Update(w.spreadsheetID, quoteSheetName(sheetName)+"!A1", valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return "", 0, fmt.Errorf("failed to write to sheet: %w", err)
	}

	w.log.Infof("Successfully wrote %d ads to sheet '%s'", len(ads), sheetName)
	return sheetName, sheetID, nil
}

// buildValues lays out the metadata row, the header and one row per ad
func buildValues(ads []models.Ad, sourceURL string) [][]interface{} {
	values := make([][]interface{}, 0, len(ads)+2)
	if sourceURL != "" {
		values = append(values, []interface{}{"URL", sourceURL})
	}
	values = append(values, toRow(models.Header()))
	for _, ad := range ads {
		values = append(values, toRow(ad.Record()))
	}
	return values
}

func toRow(fields []string) []interface{} {
	row := make([]interface{}, len(fields))
	for i, f := range fields {
		row[i] = f
	}
	return row
}

// sanitizeSheetName removes characters Google Sheets rejects in tab titles
func sanitizeSheetName(name string) string {
	invalidChars := []string{"/", "\\", "?", "*", "[", "]", ":"}
	result := name
	for _, char := range invalidChars {
		result = strings.ReplaceAll(result, char, "_")
	}
	result = strings.TrimSpace(result)
	if result == "" {
		result = "Sheet1"
	}
	if r := []rune(result); len(r) > maxSheetNameLen {
		result = string(r[:maxSheetNameLen])
	}
	return result
}

// quoteSheetName quotes a sheet title for use in A1 notation
func quoteSheetName(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// ExtractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL
func ExtractSpreadsheetID(url string) string {
	// https://docs.google.com/spreadsheets/d/SPREADSHEET_ID/edit?usp=sharing
	parts := strings.Split(url, "/d/")
	if len(parts) < 2 {
		return ""
	}

	idPart := parts[1]
	if idx := strings.IndexAny(idPart, "/?#"); idx != -1 {
		idPart = idPart[:idx]
	}
	return strings.TrimSpace(idPart)
}

// SheetURL returns a link that opens a specific sheet of the spreadsheet
func SheetURL(spreadsheetURL string, sheetID int64) string {
	spreadsheetID := ExtractSpreadsheetID(spreadsheetURL)
	if spreadsheetID == "" {
		return spreadsheetURL
	}
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/edit#gid=%d", spreadsheetID, sheetID)
}
