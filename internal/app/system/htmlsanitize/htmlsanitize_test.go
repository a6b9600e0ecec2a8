package htmlsanitize_test

import (
	"testing"

	"github.com/dalemusser/commonshub/internal/app/system/htmlsanitize"
)

func TestPlainText_Empty(t *testing.T) {
	if got := htmlsanitize.PlainText("   "); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestPlainText_StripsTags(t *testing.T) {
	if got := htmlsanitize.PlainText("<b>Go</b> club"); got != "Go club" {
		t.Errorf("PlainText = %q, want %q", got, "Go club")
	}
}

func TestPlainText_RemovesScript(t *testing.T) {
	if got := htmlsanitize.PlainText("Hello<script>alert('xss')</script>"); got != "Hello" {
		t.Errorf("PlainText = %q, want %q", got, "Hello")
	}
}

func TestPlainText_KeepsLiteralCharacters(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Q&A for R&D", "Q&A for R&D"},
		{"Don't panic", "Don't panic"},
		{`Say "hi"`, `Say "hi"`},
		{"a > b", "a > b"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
		{"&lt;b&gt;", "<b>"},
	}
	for _, tc := range tests {
		if got := htmlsanitize.PlainText(tc.in); got != tc.want {
			t.Errorf("PlainText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMarkdown_PassesSourceThrough(t *testing.T) {
	in := "> quoted line\n\nuse `a < b && c` and Don't & <kbd>Ctrl</kbd>"
	if got := htmlsanitize.Markdown(in); got != in {
		t.Errorf("Markdown = %q, want %q", got, in)
	}
}

func TestMarkdown_TrimsAndNormalizes(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"   ", ""},
		{"\n\n    code block\r\nnext  \n", "    code block\nnext"},
		{"line1\r\nline2", "line1\nline2"},
	}
	for _, tc := range tests {
		if got := htmlsanitize.Markdown(tc.in); got != tc.want {
			t.Errorf("Markdown(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
