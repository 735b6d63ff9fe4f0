package sanitize

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"純文字", "hello", "hello"},
		{"移除標籤", "<b>hi</b> there", "hi there"},
		{"移除腳本", "<script>alert(1)</script>ok", "ok"},
		{"保留比較符號", "a < b && c > d", "a < b && c > d"},
		{"移除 NULL", "a\x00b", "ab"},
		{"保留換行", "line1\nline2", "line1\nline2"},
		{"保留實體字面", "x &amp; y", "x &amp; y"},
		{"標籤旁的實體字面", "<b>x</b> &amp; &lt;y&gt;", "x &amp; &lt;y&gt;"},
		{"保留引號", `<i>say</i> "hi" & 'bye'`, `say "hi" & 'bye'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.input); got != tt.want {
				t.Errorf("Text(%q) = %q, 期望 %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLine(t *testing.T) {
	if got := Line("  Alice\n<i>Chen</i> "); got != "Alice Chen" {
		t.Errorf("Line() = %q, 期望 %q", got, "Alice Chen")
	}
}
