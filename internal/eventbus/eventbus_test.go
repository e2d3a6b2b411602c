package eventbus

import (
	"errors"
	"testing"
)

type widgetCreated struct{ Name string }
type widgetDeleted struct{ Name string }

func TestDeliversInRegistrationOrder(t *testing.T) {
	b := New()
	var order []string
	b.Subscribe(widgetCreated{}, func(e any) error {
		order = append(order, "first:"+e.(widgetCreated).Name)
		return nil
	})
	b.Subscribe(widgetCreated{}, func(e any) error {
		order = append(order, "second:"+e.(widgetCreated).Name)
		return nil
	})

	b.Publish(widgetCreated{Name: "a"})

	want := []string{"first:a", "second:a"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestSubscriberPanicDoesNotStopDelivery(t *testing.T) {
	b := New()
	delivered := false
	b.Subscribe(widgetCreated{}, func(e any) error {
		panic("boom")
	})
	b.Subscribe(widgetCreated{}, func(e any) error {
		delivered = true
		return nil
	})

	b.Publish(widgetCreated{Name: "a"})

	if !delivered {
		t.Fatal("second subscriber should still run after the first panics")
	}
}

func TestSubscriberErrorDoesNotStopDelivery(t *testing.T) {
	b := New()
	delivered := false
	b.Subscribe(widgetCreated{}, func(e any) error {
		return errors.New("boom")
	})
	b.Subscribe(widgetCreated{}, func(e any) error {
		delivered = true
		return nil
	})

	b.Publish(widgetCreated{Name: "a"})

	if !delivered {
		t.Fatal("second subscriber should still run after the first errors")
	}
}

func TestEventsRoutedByConcreteType(t *testing.T) {
	b := New()
	var gotCreated, gotDeleted int
	b.Subscribe(widgetCreated{}, func(e any) error { gotCreated++; return nil })
	b.Subscribe(widgetDeleted{}, func(e any) error { gotDeleted++; return nil })

	b.Publish(widgetCreated{Name: "a"})
	b.Publish(widgetDeleted{Name: "a"})
	b.Publish(widgetCreated{Name: "b"})

	if gotCreated != 2 {
		t.Fatalf("expected 2 widgetCreated deliveries, got %d", gotCreated)
	}
	if gotDeleted != 1 {
		t.Fatalf("expected 1 widgetDeleted delivery, got %d", gotDeleted)
	}
}
