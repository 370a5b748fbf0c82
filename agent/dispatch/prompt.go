package dispatch

import (
	"fmt"
	"strings"

	"github.com/BaSui01/roundtable/llm/factory"
	"github.com/BaSui01/roundtable/types"
)

const (
	// MaxReplyChars 是提示词中给出的回复长度上限
	MaxReplyChars = 1000

	// NoResponsePlaceholder 替换空响应
	NoResponsePlaceholder = "[no response]"
)

// SystemInstruction 组装 persona 的 system 指令
func SystemInstruction(p types.Persona) string {
	var b strings.Builder
	name := p.DisplayName()

	fmt.Fprintf(&b, "You are %s", name)
	if role := strings.TrimSpace(p.Role); role != "" {
		fmt.Fprintf(&b, " (%s)", role)
	}
	b.WriteString(", one of several participants in a group chat with a human user and other AI personas.\n")
	if instr := strings.TrimSpace(p.Instruction); instr != "" {
		b.WriteString(instr)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Stay in character as %s. Do not restate points others have already made; "+
		"respond to them or add something new. Keep a natural, conversational tone and keep your reply "+
		"under %d characters. Reply with your message only, without prefixing your name.", name, MaxReplyChars)
	return b.String()
}

// speakerLine 渲染带说话人前缀的一行
func speakerLine(t types.Turn) string {
	name := t.SpeakerName
	if name == "" {
		name = t.SpeakerID
	}
	return name + ": " + t.Text
}

// promptTurns 过滤掉系统通知，它们只面向用户
func promptTurns(context []types.Turn) []types.Turn {
	out := make([]types.Turn, 0, len(context))
	for _, t := range context {
		if t.System {
			continue
		}
		out = append(out, t)
	}
	return out
}

// splitTrigger 把本次运行的用户发言（最后一条与触发文本相同的用户发言）
// 从历史中取出，触发文本总是作为最后一条用户消息出现，每个发言者看到的形态一致。
func splitTrigger(turns []types.Turn, trigger string) []types.Turn {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].IsUser() && turns[i].Text == trigger {
			out := make([]types.Turn, 0, len(turns)-1)
			out = append(out, turns[:i]...)
			return append(out, turns[i+1:]...)
		}
	}
	return turns
}

// RenderTranscript 把上下文渲染为原生约定使用的自由文本
func RenderTranscript(p types.Persona, trigger string, context []types.Turn) string {
	turns := splitTrigger(promptTurns(context), trigger)

	var b strings.Builder
	if len(turns) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, t := range turns {
			b.WriteString(speakerLine(t))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	if strings.TrimSpace(trigger) != "" {
		b.WriteString("User: ")
		b.WriteString(trigger)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Now reply as %s.", p.DisplayName())
	return b.String()
}

// NativeMessages 构建原生约定的消息：system 指令 + 单条渲染后的用户文本
func NativeMessages(p types.Persona, trigger string, context []types.Turn) []types.Message {
	return []types.Message{
		types.NewSystemMessage(SystemInstruction(p)),
		types.NewUserMessage(RenderTranscript(p, trigger, context)),
	}
}

// GenericMessages 构建通用约定的 role 标注消息列表
func GenericMessages(p types.Persona, trigger string, context []types.Turn) []types.Message {
	turns := splitTrigger(promptTurns(context), trigger)

	msgs := make([]types.Message, 0, len(turns)+2)
	msgs = append(msgs, types.NewSystemMessage(SystemInstruction(p)))
	for _, t := range turns {
		if t.IsUser() {
			msgs = append(msgs, types.NewUserMessage(speakerLine(t)))
			continue
		}
		msgs = append(msgs, types.NewAssistantMessage(speakerLine(t)))
	}
	if strings.TrimSpace(trigger) != "" {
		msgs = append(msgs, types.NewUserMessage(trigger))
	}
	return msgs
}

// BuildMessages 按调用约定选择消息形态
func BuildMessages(conv factory.Convention, p types.Persona, trigger string, context []types.Turn) []types.Message {
	if conv == factory.ConventionNative {
		return NativeMessages(p, trigger, context)
	}
	return GenericMessages(p, trigger, context)
}
