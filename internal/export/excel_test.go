package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"registrar/internal/registration"
)

func str(s string) *string { return &s }

func TestDetails(t *testing.T) {
	tests := []struct {
		name string
		r    registration.Registration
		want string
	}{
		{
			name: "student",
			r:    registration.Registration{Category: registration.CategoryStudent, Degree: str("BSc"), Institution: str("City College")},
			want: "Degree: BSc, Institution: City College",
		},
		{
			name: "employee with gaps",
			r:    registration.Registration{Category: registration.CategoryEmployee, Company: str("Acme")},
			want: "Degree: -, Profession: -, Company: Acme, Designation: -",
		},
		{
			name: "business",
			r:    registration.Registration{Category: registration.CategoryBusiness, BusinessName: str("X")},
			want: "Degree: -, Business Type: -, Business Name: X",
		},
		{
			name: "stray fields of other categories are ignored",
			r:    registration.Registration{Category: registration.CategoryStudent, Company: str("Acme")},
			want: "Degree: -, Institution: -",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Details(tt.r))
		})
	}
}

func TestWriteExcel(t *testing.T) {
	records := []registration.Registration{
		{
			FirstName: "Bob", LastName: "Roy", Mobile: "9876543210", Email: "bob@y.com",
			DOB: time.Date(1988, 11, 30, 0, 0, 0, 0, time.UTC), Address: "4 Mill Lane",
			Category: registration.CategoryBusiness, BusinessName: str("X"),
		},
		{
			FirstName: "Ann", MiddleName: str("Marie"), LastName: "Lee", Mobile: "9123456780", Email: "ann@x.com",
			DOB: time.Date(1999, 3, 7, 0, 0, 0, 0, time.UTC), Address: "12 Park Street",
			Category: registration.CategoryStudent, Degree: str("BSc"), Institution: str("City College"),
		},
	}

	var buf bytes.Buffer
	n, err := WriteExcel(&buf, records)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetName}, f.GetSheetList())

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{
		"First Name", "Middle Name", "Last Name", "Mobile", "Email",
		"Date of Birth", "Address", "Who Are You", "Degree/Institution/Business Details",
	}, rows[0])
	assert.Equal(t, []string{
		"Bob", "", "Roy", "9876543210", "bob@y.com", "11/30/1988", "4 Mill Lane", "business",
		"Degree: -, Business Type: -, Business Name: X",
	}, rows[1])
	assert.Equal(t, "Marie", rows[2][1])
	assert.Equal(t, "3/7/1999", rows[2][5])

	styleID, err := f.GetCellStyle(sheetName, "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold, "header row is bold")

	width, err := f.GetColWidth(sheetName, "I")
	require.NoError(t, err)
	assert.Equal(t, 40.0, width)
	width, err = f.GetColWidth(sheetName, "E")
	require.NoError(t, err)
	assert.Equal(t, 25.0, width)
}

func TestWriteExcel_HeaderOnlyWhenEmpty(t *testing.T) {
	var buf bytes.Buffer
	_, err := WriteExcel(&buf, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
