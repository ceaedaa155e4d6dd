package control_test

import (
	"sync"
	"testing"

	"github.com/momentics/hioload-transport/control"
)

func TestCountersConcurrent(t *testing.T) {
	mr := control.NewMetricsRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				mr.Add(control.MetricBytesSent, 2)
			}
		}()
	}
	wg.Wait()
	if got := mr.Counter(control.MetricBytesSent); got != 16000 {
		t.Fatalf("counter = %d, want 16000", got)
	}
	mr.Set("state", "ok")
	snap := mr.GetSnapshot()
	if snap[control.MetricBytesSent] != int64(16000) || snap["state"] != "ok" {
		t.Errorf("snapshot = %v", snap)
	}
	var nilReg *control.MetricsRegistry
	nilReg.Add("x", 1)
}

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	control.RegisterPlatformProbes(dp)
	dp.RegisterProbe("answer", func() any { return 42 })
	state := dp.DumpState()
	if state["answer"] != 42 {
		t.Errorf("answer = %v", state["answer"])
	}
	if _, ok := state["platform.cpus"]; !ok {
		t.Error("platform probe missing")
	}
	dp.UnregisterProbe("answer")
	if _, ok := dp.DumpState()["answer"]; ok {
		t.Error("probe not removed")
	}
}
