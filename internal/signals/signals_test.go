package signals

import (
	"reflect"
	"testing"
)

func TestDetectEducation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "abbreviation", text: "B.Tech in CSE", want: []string{EducationBTech}},
		{name: "full name", text: "bachelor of technology, 2019", want: []string{EducationBTech}},
		{name: "spaced abbreviation", text: "M Tech (VLSI)", want: []string{EducationMTech}},
		{name: "several degrees in pattern order", text: "MBA after a B.Sc and an M.Sc", want: []string{EducationBSc, EducationMSc, EducationMBA}},
		{name: "bachelor and master", text: "BTech 2015, MTech 2017", want: []string{EducationBTech, EducationMTech}},
		{name: "no match", text: "self-taught engineer", want: nil},
		{name: "empty", text: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DetectEducation(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("DetectEducation(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestDetectLocationUsesGazetteerOrder(t *testing.T) {
	t.Parallel()

	// Delhi appears first in the text but Pune comes first in the gazetteer.
	if got := DetectLocation("Born in Delhi, now working from pune."); got != "Pune" {
		t.Fatalf("expected Pune, got %q", got)
	}

	if got := DetectLocation("Offices: Mumbai / Bengaluru / Hyderabad"); got != "Hyderabad" {
		t.Fatalf("expected Hyderabad, got %q", got)
	}
}

func TestDetectLocationWholeWord(t *testing.T) {
	t.Parallel()

	if got := DetectLocation("Punekar Street"); got != "" {
		t.Fatalf("expected no match for partial word, got %q", got)
	}
	if got := DetectLocation(""); got != "" {
		t.Fatalf("expected no match for empty text, got %q", got)
	}
}

func TestEstimateExperienceMonths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want int
	}{
		{text: "3 years 6 months, previously 2 years", want: 66},
		{text: "3 years at A. Again: 3 years at A.", want: 72},
		{text: "1 year and 1 month", want: 13},
		{text: "6 Months internship", want: 6},
		{text: "several years", want: 0},
		{text: "", want: 0},
	}

	for _, tt := range tests {
		if got := EstimateExperienceMonths(tt.text); got != tt.want {
			t.Errorf("EstimateExperienceMonths(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestExtract(t *testing.T) {
	t.Parallel()

	got := Extract("B.Tech graduate based in Chennai with 2 years of Go")
	want := Signals{Education: []string{EducationBTech}, Location: "Chennai", ExperienceMonths: 24}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Extract() = %+v, want %+v", got, want)
	}
}
