package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は自動化ワークフローが生成したHTMLをサニタイズする。
type ContentSanitizerService interface {
	// Sanitize は許可リストに含まれるタグと属性のみを残したHTMLを返す。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

type contentSanitizer struct {
	policy *bluemonday.Policy
}

var _ ContentSanitizerService = (*contentSanitizer)(nil)

// NewContentSanitizer は説教記事向けのbluemondayポリシーを構築する。
//   - 見出し、段落、リスト、引用、コード、強調、表を許可
//   - aはhrefのみ、target="_blank"とrel="noopener noreferrer"を付与
//   - imgのsrcはhttpsのみ
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "br", "hr", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "del",
		"table", "thead", "tbody", "tr", "th", "td",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(*url.URL) bool {
		return true
	})

	return &contentSanitizer{policy: p}
}

func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
