package notify

import (
	"testing"
	"time"

	"github.com/matheus3301/wpparchive/internal/bus"
	"github.com/matheus3301/wpparchive/internal/model"
)

func TestCenterTransientExpires(t *testing.T) {
	c := NewCenter(nil, time.Second)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Success("hello")
	if got := c.Active(now); len(got) != 1 || got[0].Text != "hello" {
		t.Fatalf("Active() = %+v, want one alert", got)
	}
	if got := c.Active(now.Add(2 * time.Second)); len(got) != 0 {
		t.Errorf("Active() after expiry = %+v, want none", got)
	}
}

func TestCenterPersistentReplacedByKey(t *testing.T) {
	c := NewCenter(nil, time.Second)
	c.SetPersistent("conn", model.AlertError, "first")
	c.SetPersistent("conn", model.AlertError, "second")

	later := time.Now().Add(time.Hour)
	got := c.Active(later)
	if len(got) != 1 || got[0].Text != "second" {
		t.Fatalf("Active() = %+v, want only the second persistent alert", got)
	}

	c.Clear("conn")
	if got := c.Active(later); len(got) != 0 {
		t.Errorf("Active() after Clear = %+v", got)
	}
}

func TestCenterPublishesShown(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("alert.", 4)
	defer unsub()

	c := NewCenter(b, 0)
	c.Error("boom")

	select {
	case evt := <-ch:
		a, ok := evt.Payload.(model.Alert)
		if evt.Kind != KindAlertShown || !ok || a.Level != model.AlertError || a.ID == "" {
			t.Errorf("event = %+v", evt)
		}
		if a.ExpiresAt.Sub(a.CreatedAt) != DefaultAlertDuration {
			t.Errorf("duration = %v, want %v", a.ExpiresAt.Sub(a.CreatedAt), DefaultAlertDuration)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for alert.shown")
	}
}
