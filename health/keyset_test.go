package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeKeySet struct {
	keys       int
	fresh      bool
	refreshErr error
	refreshes  int
	lastFetch  time.Time
}

func (k *fakeKeySet) Len() int    { return k.keys }
func (k *fakeKeySet) Fresh() bool { return k.fresh }

func (k *fakeKeySet) LastFetch() (time.Time, error) {
	return k.lastFetch, k.refreshErr
}

func (k *fakeKeySet) Refresh(context.Context) error {
	k.refreshes++
	if k.refreshErr != nil {
		return k.refreshErr
	}
	k.keys, k.fresh = 2, true
	return nil
}

func TestKeySetChecker(t *testing.T) {
	errFetch := errors.New("jwks: 503")

	tests := []struct {
		name          string
		keys          *fakeKeySet
		want          Status
		wantRefreshes int
	}{
		{
			name: "fresh keys",
			keys: &fakeKeySet{keys: 2, fresh: true},
			want: StatusHealthy,
		},
		{
			name:          "stale keys refreshed",
			keys:          &fakeKeySet{keys: 1},
			want:          StatusHealthy,
			wantRefreshes: 1,
		},
		{
			name:          "stale keys and refresh fails",
			keys:          &fakeKeySet{keys: 1, refreshErr: errFetch},
			want:          StatusDegraded,
			wantRefreshes: 1,
		},
		{
			name:          "no keys and refresh fails",
			keys:          &fakeKeySet{refreshErr: errFetch},
			want:          StatusUnhealthy,
			wantRefreshes: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewKeySetChecker(tt.keys).Check(context.Background())
			if got.Status != tt.want {
				t.Errorf("Status = %v, want %v", got.Status, tt.want)
			}
			if tt.keys.refreshes != tt.wantRefreshes {
				t.Errorf("refreshes = %d, want %d", tt.keys.refreshes, tt.wantRefreshes)
			}
			if _, ok := got.Details["keys"]; !ok {
				t.Error("Details missing keys")
			}
		})
	}
}
