package manager

import (
	"context"
	"testing"
	"time"

	"inferd/internal/config"
	"inferd/internal/engine"
)

func TestCapacityInvariantPerType(t *testing.T) {
	slots := config.MaxSlots{LLMs: 2, Embeddings: 1, Rerankings: 1, Audio: 1}
	m := newTestManager(t, slots, nil)
	sequence := []string{"llm-a", "llm-b", "llm-c", "embed-a", "rerank-a", "llm-d", "llm-a", "whisper-a"}
	for _, name := range sequence {
		mustLoad(t, m, name)
		m.mu.RLock()
		for typ, max := range map[engine.ModelType]int{
			engine.TypeLLM:       slots.LLMs,
			engine.TypeEmbedding: slots.Embeddings,
			engine.TypeReranking: slots.Rerankings,
			engine.TypeAudio:     slots.Audio,
		} {
			if n := m.countOf(typ); n > max {
				m.mu.RUnlock()
				t.Fatalf("after loading %s: %d resident %s instances, limit %d", name, n, typ, max)
			}
		}
		m.mu.RUnlock()
	}
}

func TestLRUWithinTypeEvictsOldest(t *testing.T) {
	m := newTestManager(t, config.MaxSlots{LLMs: 3, Embeddings: 1, Rerankings: 1, Audio: 1}, nil)
	mustLoad(t, m, "llm-a")
	mustLoad(t, m, "llm-b")
	mustLoad(t, m, "llm-c")
	base := time.Now()
	touchAt(t, m, "llm-a", base.Add(1*time.Second))
	touchAt(t, m, "llm-b", base.Add(2*time.Second))
	touchAt(t, m, "llm-c", base.Add(3*time.Second))

	mustLoad(t, m, "llm-d")

	resident := residentNames(m)
	if resident["llm-a"] {
		t.Fatalf("llm-a should have been evicted as LRU, resident: %v", resident)
	}
	for _, keep := range []string{"llm-b", "llm-c", "llm-d"} {
		if !resident[keep] {
			t.Fatalf("%s should still be resident: %v", keep, resident)
		}
	}
}

func TestLRUTieBrokenByInsertionOrder(t *testing.T) {
	m := newTestManager(t, config.MaxSlots{LLMs: 2, Embeddings: 1, Rerankings: 1, Audio: 1}, nil)
	mustLoad(t, m, "llm-a")
	mustLoad(t, m, "llm-b")
	same := time.Now().Add(-time.Minute)
	touchAt(t, m, "llm-a", same)
	touchAt(t, m, "llm-b", same)

	mustLoad(t, m, "llm-c")

	resident := residentNames(m)
	if resident["llm-a"] || !resident["llm-b"] {
		t.Fatalf("tie should evict the earlier insertion (llm-a): %v", resident)
	}
}

func TestNPUExclusivityOverridesSlotMath(t *testing.T) {
	// Plenty of LLM slots, so the capacity pass alone would evict
	// nothing; the NPU holder must still go.
	m := newTestManager(t, config.MaxSlots{LLMs: 4, Embeddings: 1, Rerankings: 1, Audio: 1}, nil)
	mustLoad(t, m, "hybrid-llm") // occupies GPU|NPU
	mustLoad(t, m, "llm-a")

	mustLoad(t, m, "npu-llm")

	resident := residentNames(m)
	if resident["hybrid-llm"] {
		t.Fatalf("NPU holder should have been evicted: %v", resident)
	}
	if !resident["npu-llm"] || !resident["llm-a"] {
		t.Fatalf("unexpected residents: %v", resident)
	}

	// At most one instance holds the NPU at any time.
	m.mu.RLock()
	holders := 0
	for _, inst := range m.instances {
		if inst.Devices.Has(engine.NPU) {
			holders++
		}
	}
	m.mu.RUnlock()
	if holders != 1 {
		t.Fatalf("expected exactly one NPU holder, got %d", holders)
	}
}

func TestNPUReloadDoesNotEvictItself(t *testing.T) {
	m := newTestManager(t, config.DefaultMaxSlots(), nil)
	mustLoad(t, m, "npu-llm")
	d := m.admit(engine.TypeLLM, engine.NPU, "npu-llm")
	for _, v := range d.evict {
		if v.Name == "npu-llm" {
			t.Fatalf("reload target selected as its own victim")
		}
	}
}

func TestBusyVictimDrainsBeforeDestruction(t *testing.T) {
	m := newTestManager(t, config.MaxSlots{LLMs: 1, Embeddings: 1, Rerankings: 1, Audio: 1}, nil)
	mustLoad(t, m, "llm-a")

	guard, err := m.acquire("llm-a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	loadDone := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		loadDone <- m.RequestLoad(ctx, LoadSpec{ModelName: "llm-b"})
	}()

	// The load must stall behind the busy victim.
	select {
	case err := <-loadDone:
		t.Fatalf("load completed while victim busy: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	// The victim must never be torn down while a guard is held.
	m.mu.RLock()
	inst, ok := m.find("llm-a")
	state := StateFailed
	if ok {
		state = inst.State
	}
	m.mu.RUnlock()
	if !ok || state == StateUnloading {
		t.Fatalf("busy victim was destroyed: ok=%v state=%v", ok, state)
	}

	guard.Release()
	if err := <-loadDone; err != nil {
		t.Fatalf("load after drain: %v", err)
	}
	resident := residentNames(m)
	if resident["llm-a"] || !resident["llm-b"] {
		t.Fatalf("expected llm-a evicted after drain: %v", resident)
	}
}

func TestAdmitUnderCapacityEvictsNothing(t *testing.T) {
	m := newTestManager(t, config.MaxSlots{LLMs: 2, Embeddings: 1, Rerankings: 1, Audio: 1}, nil)
	mustLoad(t, m, "llm-a")
	d := m.admit(engine.TypeLLM, engine.CPU, "")
	if len(d.evict) != 0 {
		t.Fatalf("no eviction expected under capacity, got %d", len(d.evict))
	}
}
