// Package snapshot encodes profile directories as spreadsheets and reads
// them back. The column set mirrors the "Users Data" sheet admins download,
// extended with the fields a re-import needs.
package snapshot

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/trafficwise/platform/internal/domain"
	"github.com/xuri/excelize/v2"
)

// Format is a snapshot file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// SheetName is the worksheet holding the rows in XLSX snapshots.
const SheetName = "Users Data"

// Columns is the header row, in file order.
var Columns = []string{
	"_id", "email", "phone", "address", "verified", "userType", "registerDate",
	"displayName", "role", "employeeCode",
}

// ParseFormat accepts "xlsx" or "csv"; an empty string means xlsx.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported snapshot format %q", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// FileName returns users_list_<date>.<ext>.
func FileName(f Format, at time.Time) string {
	return fmt.Sprintf("users_list_%s.%s", at.Format(time.DateOnly), f)
}

// Encode writes profiles to w.
func Encode(w io.Writer, f Format, profiles []domain.Profile) error {
	rows := make([][]string, 0, len(profiles)+1)
	rows = append(rows, Columns)
	for i := range profiles {
		rows = append(rows, toRow(&profiles[i]))
	}

	switch f {
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.WriteAll(rows); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		return nil
	case FormatXLSX:
		return writeXLSX(w, rows)
	}
	return fmt.Errorf("unsupported snapshot format %q", f)
}

// Decode reads profiles from r. Column order is taken from the header row;
// every column in Columns must be present.
func Decode(r io.Reader, f Format) ([]domain.Profile, error) {
	var (
		rows [][]string
		err  error
	)
	switch f {
	case FormatCSV:
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		rows, err = cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
	case FormatXLSX:
		rows, err = readXLSX(r)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported snapshot format %q", f)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("snapshot is empty")
	}
	index, err := headerIndex(rows[0])
	if err != nil {
		return nil, err
	}

	profiles := make([]domain.Profile, 0, len(rows)-1)
	for i, rec := range rows[1:] {
		if blank(rec) {
			continue
		}
		p, err := fromRow(index, rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func writeXLSX(w io.Writer, rows [][]string) error {
	book := excelize.NewFile()
	defer book.Close()

	if err := book.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := book.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if _, err := book.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer book.Close()

	sheet := SheetName
	if idx, _ := book.GetSheetIndex(SheetName); idx < 0 {
		sheet = book.GetSheetName(0)
	}
	rows, err := book.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, col := range Columns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

func toRow(p *domain.Profile) []string {
	code := ""
	if p.EmployeeCode != nil {
		code = *p.EmployeeCode
	}
	registered := ""
	if !p.RegisterDate.IsZero() {
		registered = p.RegisterDate.UTC().Format(time.RFC3339Nano)
	}
	return []string{
		p.UID, p.Email, p.Phone, p.Address, strconv.FormatBool(p.Verified), string(p.UserType), registered,
		p.DisplayName, string(p.Role), code,
	}
}

func fromRow(index map[string]int, rec []string) (domain.Profile, error) {
	get := func(col string) string {
		if i := index[col]; i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	p := domain.Profile{
		UID:         get("_id"),
		Email:       get("email"),
		Phone:       get("phone"),
		Address:     get("address"),
		DisplayName: get("displayName"),
	}

	if v := get("verified"); v != "" {
		verified, err := strconv.ParseBool(v)
		if err != nil {
			return p, fmt.Errorf("verified: %w", err)
		}
		p.Verified = verified
	}

	userType, err := domain.ParseUserType(get("userType"))
	if err != nil {
		return p, err
	}
	p.UserType = userType
	if role := get("role"); role != "" {
		if p.Role, err = domain.ParseRole(role); err != nil {
			return p, err
		}
	} else {
		p.Role = userType.Role()
	}

	if v := get("registerDate"); v != "" {
		if p.RegisterDate, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return p, fmt.Errorf("registerDate: %w", err)
		}
	}
	if code := get("employeeCode"); code != "" {
		p.EmployeeCode = &code
	}
	return p, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
