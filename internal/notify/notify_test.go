package notify

import (
	"context"
	"errors"
	"testing"
)

type stubDispatcher struct {
	out   Outcome
	err   error
	calls int
}

func (s *stubDispatcher) Dispatch(context.Context, []Recipient, Message) (Outcome, error) {
	s.calls++
	return s.out, s.err
}

func TestFallback(t *testing.T) {
	ctx := context.Background()
	to := []Recipient{{UserID: "a", Phone: "+1"}}

	primary := &stubDispatcher{out: Outcome{Delivered: 1, Channel: "push"}}
	secondary := &stubDispatcher{out: Outcome{Delivered: 1, Channel: "sms"}}
	out, err := (&Fallback{Primary: primary, Secondary: secondary}).Dispatch(ctx, to, Message{})
	if err != nil || out.Channel != "push" || secondary.calls != 0 {
		t.Errorf("primary success: out=%+v err=%v secondary calls=%d", out, err, secondary.calls)
	}

	primary = &stubDispatcher{err: errors.New("push down")}
	out, err = (&Fallback{Primary: primary, Secondary: secondary}).Dispatch(ctx, to, Message{})
	if err != nil || out.Channel != "sms" {
		t.Errorf("fallback: out=%+v err=%v", out, err)
	}

	primary = &stubDispatcher{out: Outcome{Delivered: 0}}
	secondary = &stubDispatcher{err: errors.New("sms down")}
	if _, err := (&Fallback{Primary: primary, Secondary: secondary}).Dispatch(ctx, to, Message{}); err == nil {
		t.Error("both failing should return error")
	}

	if _, err := (&Fallback{}).Dispatch(ctx, to, Message{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("empty fallback err = %v, want ErrNotConfigured", err)
	}
}

func TestLogDispatcher(t *testing.T) {
	out, err := LogDispatcher{}.Dispatch(context.Background(), []Recipient{{UserID: "a"}, {UserID: "b"}}, Message{Title: "t"})
	if err != nil || out.Delivered != 2 {
		t.Errorf("out=%+v err=%v", out, err)
	}
}
