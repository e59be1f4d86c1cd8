package main

import "testing"

func TestSplitJobs(t *testing.T) {
	got := splitJobs(" activity-cycle, ,pending-transfer-sweep ")
	if len(got) != 2 || got[0] != "activity-cycle" || got[1] != "pending-transfer-sweep" {
		t.Fatalf("unexpected jobs %v", got)
	}
	if splitJobs("") != nil {
		t.Fatal("empty flag should select every job")
	}
}

func TestEnvOrLocal(t *testing.T) {
	if envOrLocal("") != "local" || envOrLocal("prod") != "prod" {
		t.Fatal("unexpected env fallback")
	}
}
