package security

import (
	"strings"

	"golang.org/x/net/html"
)

// MetaTag はheadに出力するmetaタグ1件。NameまたはPropertyのどちらかを持つ。
type MetaTag struct {
	Name     string
	Property string
	Content  string
}

// ParseMetaTags は生成されたHTML断片からmetaタグを抽出する。
// name/propertyとcontentを持つmetaタグ以外（script、http-equiv、charsetなど）は捨てる。
func ParseMetaTags(raw string) []MetaTag {
	var tags []MetaTag
	tokenizer := html.NewTokenizer(strings.NewReader(raw))

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return tags

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			if string(tn) != "meta" || !hasAttr {
				continue
			}

			var tag MetaTag
			var hasContent bool
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "name":
					tag.Name = strings.TrimSpace(string(val))
				case "property":
					tag.Property = strings.TrimSpace(string(val))
				case "content":
					tag.Content = string(val)
					hasContent = true
				}
				if !more {
					break
				}
			}

			if !hasContent || (tag.Name == "" && tag.Property == "") {
				continue
			}
			tags = append(tags, tag)
		}
	}
}

// SanitizeMetaTags はParseMetaTagsで残したmetaタグだけを、属性値をエスケープして再構築する。
func SanitizeMetaTags(raw string) string {
	tags := ParseMetaTags(raw)
	if len(tags) == 0 {
		return ""
	}

	var b strings.Builder
	for i, tag := range tags {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("<meta ")
		if tag.Name != "" {
			b.WriteString(`name="` + html.EscapeString(tag.Name) + `" `)
		} else {
			b.WriteString(`property="` + html.EscapeString(tag.Property) + `" `)
		}
		b.WriteString(`content="` + html.EscapeString(tag.Content) + `">`)
	}
	return b.String()
}
