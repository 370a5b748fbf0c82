package tokenizer

import (
	"github.com/BaSui01/roundtable/types"
)

// Counter 是统一的 token 计数接口.
type Counter interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Name 返回计数器名称.
	Name() string
}

// messageOverhead 每条消息的开销: <|start|>role\n content<|end|>\n
const (
	messageOverhead      = 4
	conversationOverhead = 3
)

// ForModel 返回模型对应的计数器：优先 tiktoken，初始化失败（如离线无法下载
// BPE 数据）时回退到估算器.
func ForModel(model string) Counter {
	return &fallbackCounter{
		primary:  NewTiktokenCounter(model),
		fallback: NewEstimator(),
	}
}

// CountMessages 返回消息列表的总 token 数，含每条消息的角色开销.
func CountMessages(c Counter, messages []types.Message) int {
	total := 0
	for _, msg := range messages {
		n, err := c.CountTokens(msg.Content)
		if err != nil {
			continue
		}
		total += n + messageOverhead
	}
	return total + conversationOverhead
}

type fallbackCounter struct {
	primary  Counter
	fallback Counter
}

func (f *fallbackCounter) CountTokens(text string) (int, error) {
	if n, err := f.primary.CountTokens(text); err == nil {
		return n, nil
	}
	return f.fallback.CountTokens(text)
}

func (f *fallbackCounter) Name() string {
	return f.primary.Name() + "|" + f.fallback.Name()
}
