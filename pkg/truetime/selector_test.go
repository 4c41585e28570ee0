package truetime

import "testing"

func TestSelectSamplePerHostMinDelayThenMedian(t *testing.T) {
	hosts := []string{"a", "b", "c"}
	samples := map[string][]Sample{
		"a": {
			{ServerHost: "a", DelayMS: 40, OffsetMS: 10},
			{ServerHost: "a", DelayMS: 20, OffsetMS: 50}, // winner for a: lower delay
		},
		"b": {
			{ServerHost: "b", DelayMS: 5, OffsetMS: 5},
		},
		"c": {
			{ServerHost: "c", DelayMS: 15, OffsetMS: 100},
		},
	}

	got, ok := selectSample(hosts, samples)
	if !ok {
		t.Fatal("expected a selection")
	}

	// Winners by offset: b=5, a=50, c=100. Median (middle of 3) is a=50.
	if got.OffsetMS != 50 {
		t.Fatalf("expected median offset 50, got %d", got.OffsetMS)
	}
	if got.ServerHost != "a" {
		t.Fatalf("expected winner from host a, got %s", got.ServerHost)
	}
}

func TestSelectSampleNoCandidates(t *testing.T) {
	_, ok := selectSample([]string{"a"}, map[string][]Sample{})
	if ok {
		t.Fatal("expected no selection when no host produced a sample")
	}
}

func TestSelectSampleTieBrokenByHostOrder(t *testing.T) {
	// Two hosts tie on offset; the selector must pick deterministically
	// based on hosts order (stable sort keeps first-seen first among ties,
	// and with an even count the median index favors the later element).
	hosts := []string{"x", "y"}
	samples := map[string][]Sample{
		"x": {{ServerHost: "x", DelayMS: 1, OffsetMS: 7}},
		"y": {{ServerHost: "y", DelayMS: 1, OffsetMS: 7}},
	}

	got, ok := selectSample(hosts, samples)
	if !ok {
		t.Fatal("expected a selection")
	}
	if got.OffsetMS != 7 {
		t.Fatalf("expected offset 7, got %d", got.OffsetMS)
	}
	if got.ServerHost != "y" {
		t.Fatalf("expected stable-sort median to land on second-seen host y, got %s", got.ServerHost)
	}
}

func TestSelectSampleSingleHost(t *testing.T) {
	hosts := []string{"only"}
	samples := map[string][]Sample{
		"only": {
			{ServerHost: "only", DelayMS: 9, OffsetMS: 3},
			{ServerHost: "only", DelayMS: 2, OffsetMS: 99},
		},
	}

	got, ok := selectSample(hosts, samples)
	if !ok {
		t.Fatal("expected a selection")
	}
	if got.OffsetMS != 99 {
		t.Fatalf("expected the single host's min-delay winner (offset 99), got %d", got.OffsetMS)
	}
}
