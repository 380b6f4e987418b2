package security

import (
	"strings"
	"testing"
)

// TestSanitize_AllowedTags は許可タグが正しく通過することを検証する。
func TestSanitize_AllowedTags(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		// want に含まれるべき部分文字列
		wantContains []string
	}{
		{
			name:         "pタグが許可される",
			input:        "<p>ギターの弾き語りです</p>",
			wantContains: []string{"<p>ギターの弾き語りです</p>"},
		},
		{
			name:         "brタグが許可される",
			input:        "1番<br>2番",
			wantContains: []string{"<br>", "1番", "2番"},
		},
		{
			name:         "aタグが許可される",
			input:        `<a href="https://example.com">アーティストサイト</a>`,
			wantContains: []string{"<a", "href", "https://example.com", "アーティストサイト", "</a>"},
		},
		{
			name:         "ulタグとliタグが許可される",
			input:        "<ul><li>トラック1</li><li>トラック2</li></ul>",
			wantContains: []string{"<ul>", "<li>", "トラック1", "トラック2", "</li>", "</ul>"},
		},
		{
			name:         "blockquoteタグが許可される",
			input:        "<blockquote>歌詞の引用</blockquote>",
			wantContains: []string{"<blockquote>歌詞の引用</blockquote>"},
		},
		{
			name:         "strongタグが許可される",
			input:        "<strong>新曲</strong>",
			wantContains: []string{"<strong>新曲</strong>"},
		},
		{
			name:         "emタグが許可される",
			input:        "<em>アコースティック</em>",
			wantContains: []string{"<em>アコースティック</em>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestSanitize_RemovesDangerousContent は危険なタグと属性が除去されることを検証する。
func TestSanitize_RemovesDangerousContent(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name        string
		input       string
		wantAbsent  []string
		wantPresent []string
	}{
		{
			name:        "scriptタグが除去される",
			input:       `<p>説明</p><script>alert("xss")</script>`,
			wantAbsent:  []string{"<script>", "alert"},
			wantPresent: []string{"<p>説明</p>"},
		},
		{
			name:       "iframeタグが除去される",
			input:      `<iframe src="https://evil.example.com"></iframe>`,
			wantAbsent: []string{"<iframe", "evil.example.com"},
		},
		{
			name:        "onclickイベント属性が除去される",
			input:       `<p onclick="steal()">クリック</p>`,
			wantAbsent:  []string{"onclick", "steal"},
			wantPresent: []string{"クリック"},
		},
		{
			name:       "javascriptスキームのリンクが除去される",
			input:      `<a href="javascript:alert(1)">リンク</a>`,
			wantAbsent: []string{"javascript:"},
		},
		{
			name:       "httpスキームのリンクが除去される",
			input:      `<a href="http://example.com">非https</a>`,
			wantAbsent: []string{`href="http://example.com"`},
		},
		{
			name:        "styleタグが除去される",
			input:       `<style>body{display:none}</style><p>本文</p>`,
			wantAbsent:  []string{"<style>", "display:none"},
			wantPresent: []string{"<p>本文</p>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("Sanitize(%q) = %q, should not contain %q", tt.input, got, absent)
				}
			}
			for _, present := range tt.wantPresent {
				if !strings.Contains(got, present) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, present)
				}
			}
		})
	}
}

// TestSanitize_LinkRelAttributes はaタグにrel属性が強制付与されることを検証する。
func TestSanitize_LinkRelAttributes(t *testing.T) {
	sanitizer := NewContentSanitizer()

	got := sanitizer.Sanitize(`<a href="https://example.com">リンク</a>`)

	if !strings.Contains(got, `target="_blank"`) {
		t.Errorf("expected target=_blank in %q", got)
	}
	if !strings.Contains(got, "noopener") || !strings.Contains(got, "noreferrer") {
		t.Errorf("expected noopener noreferrer rel in %q", got)
	}
}

// TestSanitize_EmptyInput は空入力に空出力を返すことを検証する。
func TestSanitize_EmptyInput(t *testing.T) {
	sanitizer := NewContentSanitizer()

	if got := sanitizer.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty string", got)
	}
}

// TestSanitize_Idempotent は同一入力に対して常に同一出力を返すことを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewContentSanitizer()

	input := `<p>説明</p><script>alert(1)</script><a href="https://example.com">リンク</a>`
	first := sanitizer.Sanitize(input)
	second := sanitizer.Sanitize(first)

	if first != second {
		t.Errorf("Sanitize is not idempotent: first = %q, second = %q", first, second)
	}
}
