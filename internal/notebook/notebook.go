package notebook

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Notebook is the subset of nbformat v4 that the viewer renders.
type Notebook struct {
	NBFormat int      `json:"nbformat"`
	Metadata Metadata `json:"metadata"`
	Cells    []Cell   `json:"cells"`
}

type Metadata struct {
	KernelSpec struct {
		Language string `json:"language"`
		Name     string `json:"name"`
	} `json:"kernelspec"`
	LanguageInfo struct {
		Name string `json:"name"`
	} `json:"language_info"`
	Title string `json:"title"`
}

type Cell struct {
	CellType string          `json:"cell_type"`
	Source   MultilineString `json:"source"`
	Outputs  []Output        `json:"outputs"`
}

type Output struct {
	OutputType string                     `json:"output_type"`
	Name       string                     `json:"name"`
	Text       MultilineString            `json:"text"`
	Data       map[string]json.RawMessage `json:"data"`
	EName      string                     `json:"ename"`
	EValue     string                     `json:"evalue"`
	Traceback  []string                   `json:"traceback"`
}

// MultilineString accepts both encodings nbformat allows: a single string or
// a list of lines that are concatenated as-is.
type MultilineString string

func (m *MultilineString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*m = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*m = MultilineString(s)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(b, &lines); err != nil {
		return fmt.Errorf("multiline string must be a string or a list of strings: %w", err)
	}
	*m = MultilineString(strings.Join(lines, ""))
	return nil
}

func (m MultilineString) String() string {
	return string(m)
}

// Parse decodes a notebook and checks its major version.
func Parse(data []byte) (*Notebook, error) {
	var nb Notebook
	if err := json.Unmarshal(data, &nb); err != nil {
		return nil, fmt.Errorf("decode notebook failed: %w", err)
	}
	if nb.NBFormat != 4 {
		return nil, fmt.Errorf("unsupported nbformat %d", nb.NBFormat)
	}
	return &nb, nil
}

// Language is the kernel language used for highlighting code cells.
func (nb *Notebook) Language() string {
	if nb.Metadata.LanguageInfo.Name != "" {
		return nb.Metadata.LanguageInfo.Name
	}
	if nb.Metadata.KernelSpec.Language != "" {
		return nb.Metadata.KernelSpec.Language
	}
	return "python"
}

// PlainText joins the cell sources, used for short previews.
func (nb *Notebook) PlainText() string {
	var b strings.Builder
	for _, cell := range nb.Cells {
		src := strings.TrimSpace(cell.Source.String())
		if src == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(src)
	}
	return b.String()
}

func decodeMultiline(raw json.RawMessage) (string, error) {
	var m MultilineString
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	return m.String(), nil
}
