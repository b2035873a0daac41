package command

import (
	"testing"

	"go.uber.org/zap"

	"github.com/DK5EN/mcapp-gateway/internal/router"
)

func newTestEngine(t *testing.T, admins []string) *Engine {
	t.Helper()
	r := router.New(zap.NewNop(), "DK5EN-1")
	return New(zap.NewNop(), r, nil, "DK5EN-1", admins, func() uint32 { return 1 })
}

func TestDecideSelfOriginatedRepliesToOwnBrowser(t *testing.T) {
	e := newTestEngine(t, nil)
	d := e.decide("DK5EN-1", "OE5HWN-12", "", false)
	if !d.Execute || d.ResponseKind != responseDirectWebsocket || d.ResponseTarget != "OE5HWN-12" {
		t.Fatalf("got %+v", d)
	}
}

func TestDecideSelfOriginatedWithRemoteTargetNeverExecutesHere(t *testing.T) {
	e := newTestEngine(t, nil)
	d := e.decide("DK5EN-1", "OE5HWN-12", "OE5HWN-12", true)
	if d.Execute {
		t.Fatalf("expected execute=false when self-originated targets a remote station, got %+v", d)
	}
}

func TestDecideDirectMessageToMeRepliesOnMesh(t *testing.T) {
	e := newTestEngine(t, nil)
	d := e.decide("OE5HWN-12", "DK5EN-1", "", false)
	if !d.Execute || d.ResponseKind != responseMesh || d.ResponseTarget != "OE5HWN-12" {
		t.Fatalf("got %+v", d)
	}
}

func TestDecideGroupMessageRequiresGroupModeOrAdmin(t *testing.T) {
	e := newTestEngine(t, nil)
	d := e.decide("OE5HWN-12", "777", "", false)
	if d.Execute {
		t.Fatalf("expected execute=false for a group message with group mode off and a non-admin sender, got %+v", d)
	}

	e.SetGroupMode(true)
	d = e.decide("OE5HWN-12", "777", "", false)
	if !d.Execute || d.ResponseKind != responseMesh || d.ResponseTarget != "777" {
		t.Fatalf("expected execute with group mode on, got %+v", d)
	}
}

func TestDecideGroupMessageFromAdminAlwaysExecutes(t *testing.T) {
	e := newTestEngine(t, []string{"OE5HWN-12"})
	d := e.decide("OE5HWN-12", "777", "", false)
	if !d.Execute {
		t.Fatalf("expected admin sender to execute group commands regardless of group mode, got %+v", d)
	}
}

func TestDecideUnrelatedMessageIsIgnored(t *testing.T) {
	e := newTestEngine(t, nil)
	d := e.decide("OE5HWN-12", "OE1XYZ-1", "", false)
	if d.Execute {
		t.Fatalf("expected a message neither to nor from us nor a group to be ignored, got %+v", d)
	}
}
