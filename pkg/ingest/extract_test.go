package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExtractExcel(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "site"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "bleached"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "north"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "yes"))
	path := filepath.Join(t.TempDir(), "survey.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	doc, err := Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "xlsx", doc.Format)
	require.Len(t, doc.Pages, 1)
	assert.Equal(t, "Sheet1\nsite\tbleached\nnorth\tyes\n", doc.Pages[0])
	assert.Equal(t, "Sheet1 site bleached north yes", doc.Text())
}

func TestExtractText(t *testing.T) {
	path := writeText(t, "notes.txt", "  first\n\nsecond  ")
	doc, err := Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "first second", doc.Text())
	assert.Equal(t, "first second", doc.FirstPage())
}

func TestExtractErrors(t *testing.T) {
	_, err := Extract(context.Background(), "slides.pptx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Extract(context.Background(), writeText(t, "blank.txt", " \n\t "))
	assert.ErrorIs(t, err, ErrNoText)

	_, err = Extract(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func TestWordText(t *testing.T) {
	xml := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>Coral</w:t></w:r><w:r><w:t xml:space="preserve"> reefs</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Second</w:t><w:tab/><w:t>para</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	text, err := wordText(xml)
	require.NoError(t, err)
	assert.Equal(t, "Coral reefs\nSecond\tpara\n", text)
}

func TestCollapse(t *testing.T) {
	assert.Equal(t, "a b c", Collapse(" a\n\nb\t c "))
	assert.Equal(t, "", Collapse("   "))
}
