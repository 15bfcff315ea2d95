package hostrpc

import (
	"errors"
	"testing"
)

type captureLogger struct {
	warnings []string
}

func (c *captureLogger) Warnf(format string, args ...any) {
	c.warnings = append(c.warnings, format)
}

func TestSubscriptionTable_RouteDeliversToInstalledChannel(t *testing.T) {
	tbl := NewSubscriptionTable(nil)
	var key Key
	key[0] = 1

	recv, err := tbl.Install(key, 1)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	frame := RpcFrame{Header: VarHeader{Key: NewVarKey(key)}, Body: []byte("hi")}
	if outcome := tbl.Route(frame); outcome != Delivered {
		t.Fatalf("Route = %v, want Delivered", outcome)
	}

	got := <-recv
	if string(got.Body) != "hi" {
		t.Fatalf("got body %q, want %q", got.Body, "hi")
	}
}

func TestSubscriptionTable_RouteWithNoSubscriberDropsSilently(t *testing.T) {
	tbl := NewSubscriptionTable(nil)
	var key Key
	key[0] = 2
	frame := RpcFrame{Header: VarHeader{Key: NewVarKey(key)}}
	if outcome := tbl.Route(frame); outcome != DroppedNoSubscriber {
		t.Fatalf("Route = %v, want DroppedNoSubscriber", outcome)
	}
}

func TestSubscriptionTable_RouteWithFullChannelDrops(t *testing.T) {
	tbl := NewSubscriptionTable(nil)
	var key Key
	key[0] = 3
	if _, err := tbl.Install(key, 1); err != nil {
		t.Fatalf("Install: %v", err)
	}

	frame := RpcFrame{Header: VarHeader{Key: NewVarKey(key)}}
	if outcome := tbl.Route(frame); outcome != Delivered {
		t.Fatalf("first Route = %v, want Delivered", outcome)
	}
	if outcome := tbl.Route(frame); outcome != DroppedFull {
		t.Fatalf("second Route = %v, want DroppedFull", outcome)
	}
}

func TestSubscriptionTable_InstallReplacesAndClosesOldChannelWithWarning(t *testing.T) {
	log := &captureLogger{}
	tbl := NewSubscriptionTable(log)
	var key Key
	key[0] = 4

	oldCh, err := tbl.Install(key, 1)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	newCh, err := tbl.Install(key, 1)
	if err != nil {
		t.Fatalf("second Install: %v", err)
	}
	if len(log.warnings) != 1 {
		t.Fatalf("warnings = %d, want 1", len(log.warnings))
	}

	if _, ok := <-oldCh; ok {
		t.Fatal("old channel should be closed, not merely idle")
	}

	frame := RpcFrame{Header: VarHeader{Key: NewVarKey(key)}, Body: []byte("new")}
	if outcome := tbl.Route(frame); outcome != Delivered {
		t.Fatalf("Route after replace = %v, want Delivered", outcome)
	}
	got := <-newCh
	if string(got.Body) != "new" {
		t.Fatalf("got body %q, want %q", got.Body, "new")
	}
}

func TestSubscriptionTable_InstallAfterCloseFails(t *testing.T) {
	tbl := NewSubscriptionTable(nil)
	tbl.Close()
	var key Key
	if _, err := tbl.Install(key, 1); !errors.Is(err, ErrTopicClosed) {
		t.Fatalf("Install after Close err = %v, want ErrTopicClosed", err)
	}
}

func TestSubscription_RecvSkipsUndecodableFrames(t *testing.T) {
	tbl := NewSubscriptionTable(nil)
	var key Key
	key[0] = 5
	recv, err := tbl.Install(key, 4)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	raw := RawSubscription{ch: recv}
	decode := func(body []byte) (uint32, error) {
		if len(body) != 4 {
			return 0, errShortBody
		}
		return uint32(body[0]), nil
	}
	sub := &Subscription[uint32]{raw: raw, decode: decode}

	tbl.Route(RpcFrame{Header: VarHeader{Key: NewVarKey(key)}, Body: []byte{1}})          // undecodable
	tbl.Route(RpcFrame{Header: VarHeader{Key: NewVarKey(key)}, Body: []byte{7, 0, 0, 0}}) // decodable

	got, ok := sub.Recv()
	if !ok {
		t.Fatal("Recv() reported ended")
	}
	if got != 7 {
		t.Fatalf("got = %d, want 7", got)
	}
}

var errShortBody = shortBodyError{}

type shortBodyError struct{}

func (shortBodyError) Error() string { return "short body" }
