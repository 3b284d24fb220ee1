package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"student-records-backend/errs"
	"student-records-backend/events"
	"student-records-backend/store"
)

// headers maps normalized spreadsheet column titles to request fields.
var headers = map[string]string{
	"fullname":      "fullName",
	"full name":     "fullName",
	"name":          "fullName",
	"email":         "email",
	"e-mail":        "email",
	"phone":         "phone",
	"dob":           "dob",
	"date of birth": "dob",
	"gender":        "gender",
	"address":       "address",
	"course":        "course",
	"password":      "password",
}

type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type ImportResult struct {
	Imported int        `json:"imported"`
	Failed   []RowError `json:"failed"`
}

type importHandler struct {
	d Deps
}

func NewImportHandler(d Deps) *importHandler {
	return &importHandler{d: d.withDefaults()}
}

// Import registers one student per spreadsheet row of the first sheet. The
// first row names the columns. Rows that fail validation or already exist
// are reported and skipped.
func (h *importHandler) Import(c echo.Context) error {
	ctx := c.Request().Context()
	logger := requestLogger(c)

	fh, err := c.FormFile("file")
	if err != nil {
		return errs.ErrImportFile
	}
	src, err := fh.Open()
	if err != nil {
		return errs.ErrImportFile
	}
	defer src.Close()

	f, err := excelize.OpenReader(src)
	if err != nil {
		logger.Debug("unreadable workbook", zap.Error(err))
		return errs.ErrImportFile
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("unable to close workbook", zap.Error(err))
		}
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return errs.ErrImportFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil || len(rows) == 0 {
		return errs.ErrImportFile
	}

	columns := make(map[string]int)
	for i, title := range rows[0] {
		if field, ok := headers[strings.ToLower(strings.TrimSpace(title))]; ok {
			columns[field] = i
		}
	}
	if _, ok := columns["email"]; !ok {
		return errs.ErrImportFile
	}

	res := &ImportResult{Failed: []RowError{}}
	for i, row := range rows[1:] {
		line := i + 2
		if blank(row) {
			continue
		}

		cell := func(field string) string {
			idx, ok := columns[field]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		req := &RegisterRequest{
			FullName: cell("fullName"),
			Email:    cell("email"),
			Phone:    cell("phone"),
			Dob:      cell("dob"),
			Gender:   cell("gender"),
			Address:  cell("address"),
			Course:   cell("course"),
			Password: cell("password"),
		}

		if err := c.Validate(req); err != nil {
			res.Failed = append(res.Failed, RowError{Row: line, Error: err.Error()})
			continue
		}

		s, err := newStudent(h.d, logger, req)
		if err != nil {
			return err
		}

		if err := h.d.Students.Create(ctx, s); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				res.Failed = append(res.Failed, RowError{Row: line, Error: errs.ErrAlreadyExists.Error()})
				continue
			}

			logger.Error("database error", zap.Error(err), zap.Int("row", line))
			return errs.ErrDatabase
		}
		events.Emit(ctx, h.d.Events, events.New(events.Registered, s.ID.Hex()))
		res.Imported++
	}

	logger.Info("import finished", zap.Int("imported", res.Imported), zap.Int("failed", len(res.Failed)))
	return c.JSON(http.StatusOK, res)
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
