package model

import (
	"encoding/json"
	"time"
)

// SermonDateLayout は説教日付の表現形式（YYYY-MM-DD）。
const SermonDateLayout = "2006-01-02"

// Sermon はテナントに属する説教のメタデータを表す。
type Sermon struct {
	ID          string
	ChurchID    string
	Title       string
	SpeakerName string
	SermonDate  string // YYYY-MM-DD
	YouTubeURL  string
	SeriesName  *string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Content はsermon_contentとLEFT JOINして取得される。行がない場合はnil。
	Content *SermonContent
}

// ProcessingStatus は外部ワークフローによる派生コンテンツ生成の進捗を表す。
type ProcessingStatus string

const (
	ProcessingStatusPending    ProcessingStatus = "pending"
	ProcessingStatusProcessing ProcessingStatus = "processing"
	ProcessingStatusCompleted  ProcessingStatus = "completed"
	ProcessingStatusFailed     ProcessingStatus = "failed"
)

// SermonContent は外部ワークフローが生成する派生コンテンツを表す。
// processing_status以外のフィールドはワークフローのみが書き込む。
type SermonContent struct {
	ID                  string
	SermonID            string
	FullBlogPost        *string
	MetaTags            *string
	VideoSchemaJSON     json.RawMessage
	SocialCaptions      *string
	DiscussionQuestions *string
	ProcessingStatus    ProcessingStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SermonInput は説教の新規作成時の入力を表す。
type SermonInput struct {
	Title       string
	SpeakerName string
	SermonDate  string
	YouTubeURL  string
	SeriesName  *string
}

// SermonUpdate は説教の部分更新を表す。nilのフィールドは変更しない。
type SermonUpdate struct {
	Title       *string
	SpeakerName *string
	SermonDate  *string
	YouTubeURL  *string
	SeriesName  *string
}
