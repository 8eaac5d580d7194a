package capabilities

import "testing"

func TestBuildRoutesToOnboardingWhenNotIndexed(t *testing.T) {
	caps := Build("0.1.0", false)
	if caps.StartRoute.Tool != "read_pack" {
		t.Errorf("expected read_pack, got %s", caps.StartRoute.Tool)
	}
	if caps.StartRoute.Args["intent"] != "onboarding" {
		t.Errorf("expected onboarding intent, got %v", caps.StartRoute.Args["intent"])
	}
}

func TestBuildRoutesToMemoryWhenIndexed(t *testing.T) {
	caps := Build("0.1.0", true)
	if caps.StartRoute.Args["intent"] != "memory" {
		t.Errorf("expected memory intent, got %v", caps.StartRoute.Args["intent"])
	}
}

func TestBuildReportsSchemaVersion(t *testing.T) {
	caps := Build("0.1.0", false)
	if caps.SchemaVersion != SchemaVersion {
		t.Errorf("expected schema version %d, got %d", SchemaVersion, caps.SchemaVersion)
	}
}

func TestHelpLegendCoversAllPrefixes(t *testing.T) {
	legend := Help()
	if len(legend.Fields) != 4 {
		t.Fatalf("expected 4 legend fields, got %d", len(legend.Fields))
	}
	for _, f := range legend.Fields {
		if f.Description == "" {
			t.Errorf("prefix %s missing description", f.Prefix)
		}
	}
}
