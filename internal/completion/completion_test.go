package completion

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// fakeChatModel records the last Generate call.
type fakeChatModel struct {
	reply *schema.Message
	err   error

	gotMsgs []*schema.Message
	gotOpts *model.Options
}

func (f *fakeChatModel) Generate(_ context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.gotMsgs = in
	f.gotOpts = model.GetCommonOptions(nil, opts...)
	return f.reply, f.err
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestNew_NilModel(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, "intent"); err == nil {
		t.Fatal("expected error for nil model")
	}
}

func TestComplete_SendsMessagesAndOptions(t *testing.T) {
	t.Parallel()

	fm := &fakeChatModel{reply: schema.AssistantMessage(`{"ok":true}`, nil)}
	c, err := New(fm, "intent")
	if err != nil {
		t.Fatal(err)
	}

	got, err := c.Complete(context.Background(), Request{
		System:      "be terse",
		User:        "hello",
		Temperature: 0.1,
		MaxTokens:   500,
		JSON:        true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != `{"ok":true}` {
		t.Errorf("reply = %q", got)
	}
	if len(fm.gotMsgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(fm.gotMsgs))
	}
	if fm.gotMsgs[0].Role != schema.System || fm.gotMsgs[0].Content != "be terse" {
		t.Errorf("system message = %+v", fm.gotMsgs[0])
	}
	if fm.gotMsgs[1].Role != schema.User || fm.gotMsgs[1].Content != "hello" {
		t.Errorf("user message = %+v", fm.gotMsgs[1])
	}
	if fm.gotOpts.Temperature == nil || *fm.gotOpts.Temperature != 0.1 {
		t.Errorf("temperature option = %v", fm.gotOpts.Temperature)
	}
	if fm.gotOpts.MaxTokens == nil || *fm.gotOpts.MaxTokens != 500 {
		t.Errorf("max tokens option = %v", fm.gotOpts.MaxTokens)
	}
}

func TestComplete_NoSystemMessage(t *testing.T) {
	t.Parallel()

	fm := &fakeChatModel{reply: schema.AssistantMessage("hi", nil)}
	c, _ := New(fm, "answer")
	if _, err := c.Complete(context.Background(), Request{User: "hello"}); err != nil {
		t.Fatal(err)
	}
	if len(fm.gotMsgs) != 1 || fm.gotMsgs[0].Role != schema.User {
		t.Errorf("messages = %+v, want a single user message", fm.gotMsgs)
	}
}

func TestComplete_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		model     *fakeChatModel
		wantEmpty bool
	}{
		{name: "transport error", model: &fakeChatModel{err: errors.New("connection reset")}},
		{name: "nil reply", model: &fakeChatModel{}, wantEmpty: true},
		{name: "blank reply", model: &fakeChatModel{reply: schema.AssistantMessage("  \n", nil)}, wantEmpty: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c, _ := New(tc.model, "answer")
			_, err := c.Complete(context.Background(), Request{User: "q"})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrEmptyResponse); got != tc.wantEmpty {
				t.Errorf("errors.Is(ErrEmptyResponse) = %v, want %v (err=%v)", got, tc.wantEmpty, err)
			}
		})
	}
}
