package redisstore

import "testing"

func TestKeyLayout(t *testing.T) {
	t.Parallel()

	if got := JobKey("abc"); got != "job:abc" {
		t.Fatalf("JobKey = %q", got)
	}
	if got := ResultsKey("abc"); got != "results:abc" {
		t.Fatalf("ResultsKey = %q", got)
	}
}
