package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Type 事件类型，闭集；新增类型必须同时注册 payload 解码器
type Type string

const (
	TypeBoardCreated   Type = "BOARD_CREATED"
	TypeBoardUpdated   Type = "BOARD_UPDATED"
	TypeBoardDeleted   Type = "BOARD_DELETED"
	TypeBoardLiked     Type = "BOARD_LIKED"
	TypeBoardUnliked   Type = "BOARD_UNLIKED"
	TypeBoardViewed    Type = "BOARD_VIEWED"
	TypeCommentCreated Type = "COMMENT_CREATED"
	TypeCommentUpdated Type = "COMMENT_UPDATED"
	TypeCommentDeleted Type = "COMMENT_DELETED"
	TypeRankingUpdated Type = "RANKING_UPDATED"
	TypeEmailNotify    Type = "EMAIL_NOTIFY"
	TypeIncrementView  Type = "INCREMENT_VIEW"
)

// Topic 广播流名称
const (
	TopicCommand = "community-command"
	TopicRead    = "community-read"
)

// DLTSuffix 死信流后缀约定
const DLTSuffix = ".dlt"

var ErrUnknownEventType = errors.New("event: unknown event type")

// Payload 事件负载标记接口
type Payload interface {
	EventType() Type
}

type BoardCreatedPayload struct {
	BoardID  int64     `json:"boardId,string"`
	AuthorID int64     `json:"authorId,string"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	At       time.Time `json:"at"`
}

type BoardUpdatedPayload struct {
	BoardID int64     `json:"boardId,string"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

type BoardDeletedPayload struct {
	BoardID int64     `json:"boardId,string"`
	At      time.Time `json:"at"`
}

type BoardLikedPayload struct {
	BoardID int64 `json:"boardId,string"`
	UserID  int64 `json:"userId,string"`
	// 预留给读模型的点赞总数（可为 0，表示未知）
	LikeCount int64 `json:"likeCount"`
}

type BoardUnlikedPayload struct {
	BoardID   int64 `json:"boardId,string"`
	UserID    int64 `json:"userId,string"`
	LikeCount int64 `json:"likeCount"`
}

// BoardViewedPayload 携带折算后的持久化总量，消费方直接覆盖而非累加
type BoardViewedPayload struct {
	BoardID   int64 `json:"boardId,string"`
	ViewCount int64 `json:"viewCount"`
}

type CommentCreatedPayload struct {
	CommentID int64     `json:"commentId,string"`
	BoardID   int64     `json:"boardId,string"`
	AuthorID  int64     `json:"authorId,string"`
	Content   string    `json:"content"`
	At        time.Time `json:"at"`
}

type CommentUpdatedPayload struct {
	CommentID int64     `json:"commentId,string"`
	BoardID   int64     `json:"boardId,string"`
	Content   string    `json:"content"`
	At        time.Time `json:"at"`
}

type CommentDeletedPayload struct {
	CommentID int64     `json:"commentId,string"`
	BoardID   int64     `json:"boardId,string"`
	At        time.Time `json:"at"`
}

type RankingEntry struct {
	BoardID int64 `json:"boardId,string"`
	Value   int64 `json:"value"`
}

type RankingUpdatedPayload struct {
	Metric  string         `json:"metric"` // views | likes
	Period  string         `json:"period"` // day | week
	Entries []RankingEntry `json:"entries"`
}

type EmailNotifyPayload struct {
	UserID  int64  `json:"userId,string"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type IncrementViewPayload struct {
	BoardID int64 `json:"boardId,string"`
	UserID  int64 `json:"userId,string"`
}

func (BoardCreatedPayload) EventType() Type   { return TypeBoardCreated }
func (BoardUpdatedPayload) EventType() Type   { return TypeBoardUpdated }
func (BoardDeletedPayload) EventType() Type   { return TypeBoardDeleted }
func (BoardLikedPayload) EventType() Type     { return TypeBoardLiked }
func (BoardUnlikedPayload) EventType() Type   { return TypeBoardUnliked }
func (BoardViewedPayload) EventType() Type    { return TypeBoardViewed }
func (CommentCreatedPayload) EventType() Type { return TypeCommentCreated }
func (CommentUpdatedPayload) EventType() Type { return TypeCommentUpdated }
func (CommentDeletedPayload) EventType() Type { return TypeCommentDeleted }
func (RankingUpdatedPayload) EventType() Type { return TypeRankingUpdated }
func (EmailNotifyPayload) EventType() Type    { return TypeEmailNotify }
func (IncrementViewPayload) EventType() Type  { return TypeIncrementView }

// Topic 事件归属的流：热路径指令走 command，读模型更新走 read
func (t Type) Topic() string {
	switch t {
	case TypeIncrementView, TypeEmailNotify:
		return TopicCommand
	default:
		return TopicRead
	}
}

// payloadDecoders 判别值 → 解码函数注册表（避免反射分发）
var payloadDecoders = map[Type]func(json.RawMessage) (Payload, error){
	TypeBoardCreated:   decodeInto[BoardCreatedPayload],
	TypeBoardUpdated:   decodeInto[BoardUpdatedPayload],
	TypeBoardDeleted:   decodeInto[BoardDeletedPayload],
	TypeBoardLiked:     decodeInto[BoardLikedPayload],
	TypeBoardUnliked:   decodeInto[BoardUnlikedPayload],
	TypeBoardViewed:    decodeInto[BoardViewedPayload],
	TypeCommentCreated: decodeInto[CommentCreatedPayload],
	TypeCommentUpdated: decodeInto[CommentUpdatedPayload],
	TypeCommentDeleted: decodeInto[CommentDeletedPayload],
	TypeRankingUpdated: decodeInto[RankingUpdatedPayload],
	TypeEmailNotify:    decodeInto[EmailNotifyPayload],
	TypeIncrementView:  decodeInto[IncrementViewPayload],
}

func decodeInto[T Payload](raw json.RawMessage) (Payload, error) {
	var p T
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Valid 报告 t 是否为注册过的事件类型
func (t Type) Valid() bool {
	_, ok := payloadDecoders[t]
	return ok
}

// Envelope 事件信封。eventId 以十进制字符串上线，避免 JS 侧精度丢失。
type Envelope struct {
	EventID int64
	Type    Type
	Payload Payload
}

type wireEnvelope struct {
	EventID string          `json:"eventId"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEnvelope{
		EventID: strconv.FormatInt(e.EventID, 10),
		Type:    e.Type,
		Payload: raw,
	})
}

// Decode 解析信封；未知类型返回 ErrUnknownEventType（毒消息，调用方路由到死信）
func Decode(data []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return Envelope{}, fmt.Errorf("event: decode envelope: %w", err)
	}
	id, err := strconv.ParseInt(w.EventID, 10, 64)
	if err != nil {
		return Envelope{}, fmt.Errorf("event: bad event id %q: %w", w.EventID, err)
	}
	dec, ok := payloadDecoders[w.Type]
	if !ok {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownEventType, w.Type)
	}
	p, err := dec(w.Payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("event: decode %s payload: %w", w.Type, err)
	}
	return Envelope{EventID: id, Type: w.Type, Payload: p}, nil
}
