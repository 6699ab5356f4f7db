package models

import "testing"

func strPtr(s string) *string { return &s }

func TestResolveSettingPriority(t *testing.T) {
	userVal := strPtr("10")
	businessVal := strPtr("20")
	platformVal := strPtr("30")

	cases := []struct {
		name   string
		layers []*string
		want   string
		found  bool
	}{
		{"user wins over everything", []*string{userVal, businessVal, platformVal}, "10", true},
		{"business wins when user absent", []*string{nil, businessVal, platformVal}, "20", true},
		{"platform is the last resort", []*string{nil, nil, platformVal}, "30", true},
		{"nothing resolves", []*string{nil, nil, nil}, "", false},
		{"no layers at all", nil, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, found := ResolveSetting(tc.layers...)
			if got != tc.want || found != tc.found {
				t.Fatalf("ResolveSetting = (%q, %v), want (%q, %v)", got, found, tc.want, tc.found)
			}
		})
	}
}

// An empty string stored at a higher layer is still a value: it must win,
// not fall through.
func TestResolveSettingEmptyStringIsAValue(t *testing.T) {
	got, found := ResolveSetting(strPtr(""), strPtr("fallback"))
	if !found || got != "" {
		t.Fatalf("ResolveSetting = (%q, %v), want empty string override", got, found)
	}
}

func TestSettingDefaultsPinned(t *testing.T) {
	// These defaults are documented behavior; changing one silently would
	// shift matching and detection outcomes for every tenant without an
	// override.
	pinned := map[string]string{
		SettingKeyScoreMatched:      "95",
		SettingKeyScorePartial:      "80",
		SettingKeyVarianceThreshold: "100",
		SettingKeyAgingWarningDays:  "30",
		SettingKeyAgingCriticalDays: "60",
		SettingKeyStaleWarningDays:  "3",
		SettingKeyStaleCriticalDays: "7",
		SettingKeyStaleSevereDays:   "14",
	}
	for key, want := range pinned {
		if got := settingDefault(key); got != want {
			t.Fatalf("default for %s = %q, want %q", key, got, want)
		}
	}
}
