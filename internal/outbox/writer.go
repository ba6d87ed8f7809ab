package outbox

import (
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/d60-Lab/community-core/internal/event"
	"github.com/d60-Lab/community-core/internal/idgen"
	"github.com/d60-Lab/community-core/internal/model"
)

// ErrUnsupportedEventType 发布方未注册该事件类型（配置/编程错误，不是运行时客户端错误）
var ErrUnsupportedEventType = errors.New("outbox: event type not registered for this writer")

// Writer 在调用方已开启的业务事务内写外发盒记录。
// 业务变更与事件记录要么一起提交要么一起回滚。
type Writer struct {
	gen       *idgen.Generator
	supported map[event.Type]struct{}
}

// NewWriter 声明该发布方允许发出的事件类型集合
func NewWriter(gen *idgen.Generator, types ...event.Type) *Writer {
	supported := make(map[event.Type]struct{}, len(types))
	for _, t := range types {
		supported[t] = struct{}{}
	}
	return &Writer{gen: gen, supported: supported}
}

// Publish 取号、序列化信封并在 tx 内落一条外发盒记录；返回事件 ID。
// tx 必须是调用方当前打开的事务句柄。
func (w *Writer) Publish(tx *gorm.DB, payload event.Payload) (int64, error) {
	typ := payload.EventType()
	if _, ok := w.supported[typ]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedEventType, typ)
	}

	eventID := w.gen.NextID()
	env := event.Envelope{EventID: eventID, Type: typ, Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("outbox: marshal %s envelope: %w", typ, err)
	}

	rec := &model.Outbox{
		ID:        eventID,
		EventType: string(typ),
		Payload:   string(data),
	}
	if err := tx.Create(rec).Error; err != nil {
		return 0, fmt.Errorf("outbox: persist %s record: %w", typ, err)
	}
	return eventID, nil
}
