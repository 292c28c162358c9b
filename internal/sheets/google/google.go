package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	ports "emitrack/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Column layout of the ledger tab. Column G holds the row status.
const (
	idColumn     = "F"
	statusColumn = "G"
	defaultSheet = "Ledger"
)

var (
	errNoService = errors.New("sheets service not initialized")

	// matches the first row number of an A1 range such as "Ledger!A12:F12"
	rangeRowRe = regexp.MustCompile(`![A-Z]+(\d+)`)
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	// transaction id -> 1-based row number, refreshed from column F
	mu                 sync.Mutex
	rowIndex           map[string]int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

// Ensure interface conformance
var (
	_ ports.LedgerWriter = (*Client)(nil)
	_ ports.LedgerMarker = (*Client)(nil)
)

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_SHEET_NAME (default "Ledger")
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	sheetName := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if sheetName == "" {
		sheetName = defaultSheet
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, spreadsheetID, sheetName), nil
}

func New(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		sheetName:          sheetName,
		cacheValidDuration: 5 * time.Minute,
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON, err := serviceAccountCredentials(ctx)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func serviceAccountCredentials(ctx context.Context) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline JSON credentials")
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		slog.DebugContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// Append writes r after the last row of the ledger tab.
func (c *Client) Append(ctx context.Context, r ports.Row) (string, error) {
	if r.TransactionID == "" {
		return "", errors.New("row without transaction id")
	}
	if c.svc == nil {
		return "", errNoService
	}

	rng := fmt.Sprintf("%s!A:%s", c.sheetName, idColumn)
	vr := &gsheet.ValueRange{Values: [][]any{r.Values()}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	ref := ""
	if resp.Updates != nil {
		ref = resp.Updates.UpdatedRange
	}
	if row, ok := rowFromRange(ref); ok {
		c.mu.Lock()
		if c.rowIndex != nil {
			c.rowIndex[r.TransactionID] = row
		}
		c.mu.Unlock()
	}
	return ref, nil
}

// MarkDeleted sets the status column of the row holding transactionID.
func (c *Client) MarkDeleted(ctx context.Context, transactionID string) error {
	if c.svc == nil {
		return errNoService
	}
	row, err := c.findRow(ctx, transactionID)
	if err != nil {
		return err
	}

	rng := fmt.Sprintf("%s!%s%d", c.sheetName, statusColumn, row)
	vr := &gsheet.ValueRange{Values: [][]any{{ports.StatusDeleted}}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("mark row %d deleted in %s: %w", row, c.sheetName, err)
	}
	return nil
}

func (c *Client) findRow(ctx context.Context, transactionID string) (int, error) {
	c.mu.Lock()
	if c.rowIndex != nil && time.Now().Before(c.cacheExpiresAt) {
		if row, ok := c.rowIndex[transactionID]; ok {
			c.mu.Unlock()
			return row, nil
		}
	}
	c.mu.Unlock()

	rng := fmt.Sprintf("%s!%s:%s", c.sheetName, idColumn, idColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", rng, err)
	}
	index := indexRows(resp.Values)

	c.mu.Lock()
	c.rowIndex = index
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()

	row, ok := index[transactionID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ports.ErrRowNotFound, transactionID)
	}
	return row, nil
}

// indexRows maps each id in a single-column values matrix to its 1-based
// row number. The first occurrence wins.
func indexRows(values [][]any) map[string]int {
	index := make(map[string]int, len(values))
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		id := strings.TrimSpace(fmt.Sprint(row[0]))
		if id == "" {
			continue
		}
		if _, seen := index[id]; !seen {
			index[id] = i + 1
		}
	}
	return index
}

func rowFromRange(a1 string) (int, bool) {
	m := rangeRowRe.FindStringSubmatch(a1)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
