package domain

import "testing"

func TestNextStatus(t *testing.T) {
	tests := []struct {
		name        string
		from        TaskStatus
		result      string
		want        TaskStatus
		wantChanged bool
	}{
		{"success", StatusPublishing, "SUCCESS", StatusPublishSuccess, true},
		{"failure", StatusPublishing, "FAILURE", StatusPublishFailed, true},
		{"in progress", StatusPublishing, "ABORTED", StatusPublishing, false},
		{"empty result keeps publishing", StatusPublishing, "", StatusPublishing, false},
		{"success is absorbing", StatusPublishSuccess, "FAILURE", StatusPublishSuccess, false},
		{"failure is absorbing", StatusPublishFailed, "SUCCESS", StatusPublishFailed, false},
		{"replayed success", StatusPublishSuccess, "SUCCESS", StatusPublishSuccess, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := NextStatus(tt.from, EventForStatus(StatusFromResult(tt.result)))
			if got != tt.want || changed != tt.wantChanged {
				t.Errorf("NextStatus(%s, %q) = (%s, %v), want (%s, %v)", tt.from, tt.result, got, changed, tt.want, tt.wantChanged)
			}
		})
	}
}

func TestStatusCodes(t *testing.T) {
	for _, s := range []TaskStatus{StatusUnpublished, StatusPublishing, StatusPublishSuccess, StatusPublishFailed} {
		got, err := StatusFromCode(s.Code())
		if err != nil {
			t.Fatalf("StatusFromCode(%d) error = %v", s.Code(), err)
		}
		if got != s {
			t.Errorf("StatusFromCode(%d) = %s, want %s", s.Code(), got, s)
		}
	}
	if _, err := StatusFromCode(9); err == nil {
		t.Error("StatusFromCode(9) should fail")
	}
}
