package idhash

import "testing"

func TestComputeRunID(t *testing.T) {
	key := RunKey{
		StrategyID:     "MOMENTUM_20_1",
		Symbols:        []string{"AAPL"},
		FirstBar:       1704153600000,
		LastBar:        1711670400000,
		InitialCapital: 100000,
		CostRate:       0.001,
		Allocation:     1,
	}

	id := ComputeRunID(key)
	if id == "" {
		t.Fatal("empty run id")
	}
	if id != ComputeRunID(key) {
		t.Error("ComputeRunID() not deterministic")
	}

	changes := map[string]func(k *RunKey){
		"strategy":   func(k *RunKey) { k.StrategyID = "MOMENTUM_30_1" },
		"symbols":    func(k *RunKey) { k.Symbols = []string{"MSFT"} },
		"pair order": func(k *RunKey) { k.Symbols = []string{"AAPL", "MSFT"} },
		"range":      func(k *RunKey) { k.LastBar++ },
		"cost":       func(k *RunKey) { k.CostRate = 0.002 },
		"capital":    func(k *RunKey) { k.InitialCapital = 50000 },
		"allocation": func(k *RunKey) { k.Allocation = 0.5 },
	}
	for name, change := range changes {
		k := key
		change(&k)
		if ComputeRunID(k) == id {
			t.Errorf("%s change did not alter run id", name)
		}
	}
}
