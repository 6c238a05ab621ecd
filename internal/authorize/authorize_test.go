package authorize

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/droidian/droidian-encryption-service/internal/polkit"
)

type fakeOracle struct {
	authorized bool
	err        error
	gotAction  string
}

func (f *fakeOracle) CheckAuthorization(_ context.Context, _, actionID string, _ map[string]string, _ polkit.CheckFlags) (bool, error) {
	f.gotAction = actionID
	return f.authorized, f.err
}

type fakeClock struct{ calls int }

func (f *fakeClock) RegisterTimestamp() { f.calls++ }

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func TestAuthorizeRefreshStatusNeverNeedsOracle(t *testing.T) {
	oracle := &fakeOracle{authorized: false}
	clock := &fakeClock{}
	g := New(oracle, clock, testLogger())

	ok, err := g.Authorize(context.Background(), ":1.1", "RefreshStatus")
	if err != nil || !ok {
		t.Fatalf("Authorize(RefreshStatus) = %v, %v; want true, nil", ok, err)
	}
	if oracle.gotAction != "" {
		t.Errorf("oracle was consulted for RefreshStatus, action=%q", oracle.gotAction)
	}
	if clock.calls != 1 {
		t.Errorf("RegisterTimestamp called %d times, want 1", clock.calls)
	}
}

func TestAuthorizeStartGrantedAndDenied(t *testing.T) {
	clock := &fakeClock{}

	granted := &fakeOracle{authorized: true}
	g := New(granted, clock, testLogger())
	ok, err := g.Authorize(context.Background(), ":1.2", "Start")
	if err != nil || !ok {
		t.Fatalf("Authorize(Start) granted = %v, %v; want true, nil", ok, err)
	}
	if granted.gotAction != "org.droidian.EncryptionService.EncryptionStart" {
		t.Errorf("action = %q, want EncryptionStart", granted.gotAction)
	}

	denied := &fakeOracle{authorized: false}
	g = New(denied, clock, testLogger())
	ok, err = g.Authorize(context.Background(), ":1.2", "Start")
	if ok || err != ErrNotAuthorized {
		t.Fatalf("Authorize(Start) denied = %v, %v; want false, ErrNotAuthorized", ok, err)
	}
}

func TestAuthorizeOracleErrorPropagates(t *testing.T) {
	clock := &fakeClock{}
	oracleErr := errOracle{}
	g := New(oracleErr, clock, testLogger())

	ok, err := g.Authorize(context.Background(), ":1.3", "Start")
	if ok || err == nil {
		t.Fatalf("Authorize(Start) with failing oracle = %v, %v; want false, err", ok, err)
	}
}

type errOracle struct{}

func (errOracle) CheckAuthorization(context.Context, string, string, map[string]string, polkit.CheckFlags) (bool, error) {
	return false, context.DeadlineExceeded
}
