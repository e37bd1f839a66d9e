package models

import "fmt"

// Selection is a text range captured from the active note.
type Selection struct {
	Text       string `json:"text"`
	SourcePath string `json:"sourcePath"`
	StartLine  int    `json:"startLine"`
	EndLine    int    `json:"endLine"`
	CapturedAt int64  `json:"capturedAt"`
}

// Normalize clamps line numbers so that StartLine >= 1 and EndLine >= StartLine.
func (s Selection) Normalize() Selection {
	if s.StartLine < 1 {
		s.StartLine = 1
	}
	if s.EndLine < s.StartLine {
		s.EndLine = s.StartLine
	}
	return s
}

// String renders the selection the way it is recorded in debug traces.
func (s Selection) String() string {
	return fmt.Sprintf("%s:%d-%d\n%s", s.SourcePath, s.StartLine, s.EndLine, s.Text)
}
