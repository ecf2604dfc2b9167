// Package metadata builds the table descriptions the SQL agent is prompted with.
package metadata

import (
	"path"
	"regexp"
	"strings"

	"github.com/datanooblol/leonidas/internal/core/catalog"
	"github.com/datanooblol/leonidas/internal/models"
)

// TableMetadata is a table's identity plus its ordered column descriptors.
type TableMetadata struct {
	FileID      string                    `json:"file_id,omitempty"`
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Columns     []models.ColumnDescriptor `json:"columns"`
}

// FromIntrospection derives a descriptor from catalog schema introspection.
// Every column starts as INPUT with the catalog type name taken verbatim.
func FromIntrospection(name, description string, cols []catalog.ColumnInfo) TableMetadata {
	out := TableMetadata{
		Name:        name,
		Description: description,
		Columns:     make([]models.ColumnDescriptor, 0, len(cols)),
	}
	for _, c := range cols {
		out.Columns = append(out.Columns, models.ColumnDescriptor{
			Column:    c.Name,
			DType:     c.Type,
			InputType: models.InputTypeInput,
		})
	}
	return out
}

// FromFile builds the descriptor stored on a file record. The table name
// follows the catalog registration name so prompts and SQL agree.
func FromFile(f models.File) TableMetadata {
	return TableMetadata{
		FileID:      f.ID,
		Name:        TableName(f.Filename),
		Description: f.Description,
		Columns:     f.Columns,
	}
}

// RenderPrompt renders the block the SQL agent sees. REJECT columns are
// omitted and the remaining columns keep declaration order, so the output is
// byte-identical across calls.
func (m TableMetadata) RenderPrompt() string {
	var b strings.Builder
	b.WriteString("TABLE: ")
	b.WriteString(m.Name)
	b.WriteString("\nDESCRIPTION: ")
	b.WriteString(m.Description)
	b.WriteString("\nCOLUMNS:")

	for _, c := range m.Columns {
		if c.InputType == models.InputTypeReject {
			continue
		}
		b.WriteString("\n- ")
		b.WriteString(c.Column)
		b.WriteString(" (")
		b.WriteString(c.DType)
		b.WriteString(")")
		if c.Description != "" {
			b.WriteString(": ")
			b.WriteString(c.Description)
		}
	}
	return b.String()
}

// RenderAll joins the prompt blocks of several tables with a blank line.
func RenderAll(tables []TableMetadata) string {
	parts := make([]string, len(tables))
	for i, t := range tables {
		parts[i] = t.RenderPrompt()
	}
	return strings.Join(parts, "\n\n")
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]`)

// TableName maps an uploaded filename to its catalog table name:
// the extension is dropped and anything outside [A-Za-z0-9_] becomes "_".
func TableName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	name := nonIdent.ReplaceAllString(base, "_")
	if name == "" {
		return "data"
	}
	return name
}
