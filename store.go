package main

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// Status is the authoritative project status vocabulary. Historical variants
// ("New", "Generated") from older revisions are not accepted.
type Status string

const (
	StatusNew             Status = "new"
	StatusProcessing      Status = "Processing"
	StatusPendingApproval Status = "Pending Approval"
	StatusApproved        Status = "Approved"
	StatusRejected        Status = "Rejected"
	StatusUploaded        Status = "Uploaded"
	StatusUploadFailed    Status = "Upload Failed"
	StatusError           Status = "Error"
	StatusNeedsReview     Status = "needs_manual_review"
)

var validStatuses = map[Status]bool{
	StatusNew:             true,
	StatusProcessing:      true,
	StatusPendingApproval: true,
	StatusApproved:        true,
	StatusRejected:        true,
	StatusUploaded:        true,
	StatusUploadFailed:    true,
	StatusError:           true,
	StatusNeedsReview:     true,
}

// ValidStatus reports whether s is in the fixed enum.
func ValidStatus(s Status) bool { return validStatuses[s] }

// Project is one portal invitation and its lifecycle state.
type Project struct {
	ID          string
	Title       string
	URL         string
	Deadline    string
	Script      string // empty means not extracted/validated
	Description string
	ClientID    string
	Status      Status
	AudioURL    string
	Notes       string
}

// ProjectSummary is the slim row view returned by status queries.
type ProjectSummary struct {
	ID            string
	Title         string
	URL           string
	Status        Status
	AudioURL      string
	AudioFileName string
}

// Column layout of the backing sheet. Order matters: it is the physical
// row layout of the workbook.
var sheetColumns = []string{
	"Project ID",
	"Project Title",
	"Project URL",
	"Deadline",
	"Script",
	"Status",
	"Processed At",
	"Client ID",
	"Audio File URL",
	"Notes",
	"Reviewed At",
	"Uploaded At",
}

const storeSheet = "Projects"

// PlaceholderScript marks rows whose script could not be extracted and needs
// a human to paste it in before synthesis.
const PlaceholderScript = "MANUAL_REVIEW_REQUIRED"

// ProjectStore is the spreadsheet-backed row store. One instance is
// constructed at process start and threaded through explicitly; there is no
// lazy global handle.
type ProjectStore struct {
	path string
	now  func() time.Time
}

func NewProjectStore(path string) (*ProjectStore, error) {
	s := &ProjectStore{path: path, now: time.Now}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		f := excelize.NewFile()
		defer f.Close()

		if _, err := f.NewSheet(storeSheet); err != nil {
			return nil, fmt.Errorf("create sheet: %w", err)
		}
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return nil, fmt.Errorf("drop default sheet: %w", err)
		}

		header := make([]interface{}, len(sheetColumns))
		for i, c := range sheetColumns {
			header[i] = c
		}
		if err := f.SetSheetRow(storeSheet, "A1", &header); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
		if err := f.SaveAs(path); err != nil {
			return nil, fmt.Errorf("save workbook: %w", err)
		}
	}

	return s, nil
}

func (s *ProjectStore) open() (*excelize.File, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", s.path, err)
	}
	return f, nil
}

// CreateProject appends a row and returns the assigned id. An unrecognized
// status fails fast before anything is written.
func (s *ProjectStore) CreateProject(p *Project) (string, error) {
	if !ValidStatus(p.Status) {
		return "", fmt.Errorf("invalid status: %q", p.Status)
	}

	f, err := s.open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	rows, err := f.GetRows(storeSheet)
	if err != nil {
		return "", fmt.Errorf("read rows: %w", err)
	}

	id := uuid.NewString()[:8]

	script := p.Script
	if script == "" {
		script = PlaceholderScript
	}

	row := []interface{}{
		id,
		p.Title,
		p.URL,
		p.Deadline,
		script,
		string(p.Status),
		s.now().Format(time.RFC3339),
		p.ClientID,
		p.AudioURL,
		p.Notes,
		"", // Reviewed At
		"", // Uploaded At
	}

	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return "", err
	}
	if err := f.SetSheetRow(storeSheet, cell, &row); err != nil {
		return "", fmt.Errorf("append row: %w", err)
	}
	if err := f.Save(); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}

	return id, nil
}

// UpdateProject writes the given column updates to the row with the given
// id. Unknown columns and out-of-enum status values fail before any cell is
// touched; the store must never hold invalid state.
func (s *ProjectStore) UpdateProject(id string, updates map[string]string) error {
	colIndex := make(map[string]int, len(sheetColumns))
	for i, c := range sheetColumns {
		colIndex[c] = i
	}

	for col, val := range updates {
		if _, ok := colIndex[col]; !ok {
			return fmt.Errorf("unknown column: %q", col)
		}
		if col == "Status" && !ValidStatus(Status(val)) {
			return fmt.Errorf("invalid status: %q", val)
		}
	}

	f, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rowNum, err := s.findRow(f, id)
	if err != nil {
		return err
	}

	for col, val := range updates {
		cell, err := excelize.CoordinatesToCellName(colIndex[col]+1, rowNum)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(storeSheet, cell, val); err != nil {
			return fmt.Errorf("set %s: %w", col, err)
		}
	}

	if err := f.Save(); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// ListProjectsByStatus returns summaries of every row currently in the
// given status, in sheet order.
func (s *ProjectStore) ListProjectsByStatus(status Status) ([]ProjectSummary, error) {
	f, err := s.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(storeSheet)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	var out []ProjectSummary
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		if cellAt(row, 5) != string(status) {
			continue
		}
		audioURL := cellAt(row, 8)
		audioName := ""
		if audioURL != "" {
			audioName = path.Base(audioURL)
		}
		out = append(out, ProjectSummary{
			ID:            cellAt(row, 0),
			Title:         cellAt(row, 1),
			URL:           cellAt(row, 2),
			Status:        Status(cellAt(row, 5)),
			AudioURL:      audioURL,
			AudioFileName: audioName,
		})
	}

	return out, nil
}

// HasProjectURL reports whether any row already tracks the given project
// URL, so re-discovered invites are not processed twice.
func (s *ProjectStore) HasProjectURL(url string) (bool, error) {
	f, err := s.open()
	if err != nil {
		return false, err
	}
	defer f.Close()

	rows, err := f.GetRows(storeSheet)
	if err != nil {
		return false, fmt.Errorf("read rows: %w", err)
	}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if cellAt(row, 2) == url {
			return true, nil
		}
	}
	return false, nil
}

func (s *ProjectStore) findRow(f *excelize.File, id string) (int, error) {
	rows, err := f.GetRows(storeSheet)
	if err != nil {
		return 0, fmt.Errorf("read rows: %w", err)
	}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if cellAt(row, 0) == id {
			return i + 1, nil // 1-based sheet row
		}
	}
	return 0, fmt.Errorf("project %s: %w", id, ErrNotFound)
}

// cellAt tolerates short rows; excelize trims trailing empty cells.
func cellAt(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
