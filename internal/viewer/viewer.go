// Package viewer は教会のコンテンツハブ（外部ページ）の埋め込みと、
// 自動化ワークフローが生成した説教コンテンツの表示を扱う。
package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hitoshi/sermonhub/internal/model"
	"github.com/hitoshi/sermonhub/internal/security"
)

// Mode は埋め込み表示の種別。
type Mode string

const (
	ModeFrame       Mode = "frame"
	ModePlaceholder Mode = "placeholder"
)

const (
	FrameTitle         = "Content Hub"
	PlaceholderTitle   = "Notion Page Not Configured"
	PlaceholderMessage = "Your Notion content hub hasn't been set up yet. Contact your administrator to configure the Notion page URL."
)

// Embed はコンテンツハブの表示指示。
type Embed struct {
	Mode    Mode   `json:"mode"`
	URL     string `json:"url,omitempty"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`

	// FrameSource はframe-srcに指定するオリジン。URLがhttp(s)でない場合は空。
	FrameSource string `json:"-"`
}

// EmbedFor は教会のnotion_page_urlの有無だけで表示を決める。URLは加工しない。
func EmbedFor(church *model.Church) Embed {
	if !church.HasViewer() {
		return Embed{
			Mode:    ModePlaceholder,
			Title:   PlaceholderTitle,
			Message: PlaceholderMessage,
		}
	}

	e := Embed{
		Mode:  ModeFrame,
		URL:   *church.NotionPageURL,
		Title: FrameTitle,
	}
	if u, err := security.ParseHTTPURL(e.URL); err == nil {
		e.FrameSource = security.Origin(u)
	}
	return e
}

// SermonReader は説教をコンテンツ付きで取得するインターフェース。
type SermonReader interface {
	FindByID(ctx context.Context, churchID, id string) (*model.Sermon, error)
}

// RenderedContent はHTMLに変換済みの生成コンテンツ。
type RenderedContent struct {
	SermonID                string                 `json:"sermon_id"`
	Title                   string                 `json:"title"`
	ProcessingStatus        model.ProcessingStatus `json:"processing_status"`
	BlogPostHTML            string                 `json:"blog_post_html,omitempty"`
	DiscussionQuestionsHTML string                 `json:"discussion_questions_html,omitempty"`
	SocialCaptions          string                 `json:"social_captions,omitempty"`
	MetaTags                string                 `json:"meta_tags,omitempty"`
	VideoSchema             json.RawMessage        `json:"video_schema,omitempty"`

	ETag string `json:"-"`
}

// Service は生成コンテンツをMarkdownからHTMLに変換し、サニタイズして返す。
type Service struct {
	sermons   SermonReader
	sanitizer security.ContentSanitizerService
	md        goldmark.Markdown
}

// NewService はServiceを生成する。sermonsがnilの場合は設定欠如を返す。
func NewService(sermons SermonReader, sanitizer security.ContentSanitizerService) *Service {
	if sanitizer == nil {
		sanitizer = security.NewContentSanitizer()
	}
	return &Service{
		sermons:   sermons,
		sanitizer: sanitizer,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
	}
}

// SermonContent は教会に属する説教の生成コンテンツを返す。
func (s *Service) SermonContent(ctx context.Context, churchID, sermonID string) (*RenderedContent, error) {
	if s.sermons == nil {
		return nil, model.NewConfigurationMissingError("DATABASE_URL")
	}

	sermon, err := s.sermons.FindByID(ctx, churchID, sermonID)
	if err != nil {
		return nil, model.Normalize(fmt.Errorf("failed to find sermon: %w", err))
	}
	if sermon == nil {
		return nil, model.NewSermonNotFoundError(sermonID)
	}
	if sermon.Content == nil {
		return nil, model.NewContentNotFoundError(sermonID)
	}

	c := sermon.Content
	out := &RenderedContent{
		SermonID:         sermon.ID,
		Title:            sermon.Title,
		ProcessingStatus: c.ProcessingStatus,
		SocialCaptions:   deref(c.SocialCaptions),
		MetaTags:         security.SanitizeMetaTags(deref(c.MetaTags)),
	}
	if len(c.VideoSchemaJSON) > 0 && json.Valid(c.VideoSchemaJSON) {
		out.VideoSchema = c.VideoSchemaJSON
	}
	if out.BlogPostHTML, err = s.render(deref(c.FullBlogPost)); err != nil {
		return nil, model.Normalize(err)
	}
	if out.DiscussionQuestionsHTML, err = s.render(deref(c.DiscussionQuestions)); err != nil {
		return nil, model.Normalize(err)
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, model.Normalize(fmt.Errorf("failed to encode content: %w", err))
	}
	out.ETag = ETag(body)
	return out, nil
}

// render はMarkdownをHTMLに変換してサニタイズする。空入力には空文字を返す。
func (s *Service) render(markdown string) (string, error) {
	if strings.TrimSpace(markdown) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return s.sanitizer.Sanitize(buf.String()), nil
}

// ETag はbodyのxxHashから強いETagを生成する。
func ETag(body []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
}

// ETagMatches はIf-None-Matchヘッダーの値がetagに一致するかを返す。
// カンマ区切りの複数値、"*"、弱いETag（W/）を扱う。
func ETagMatches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" || etag == "" {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
