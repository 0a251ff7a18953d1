package strategy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry()

	tests := []struct {
		requested string
		id        string
		fellBack  bool
	}{
		{requested: "rsi", id: IDRSI},
		{requested: "RSI_Strategy", id: IDRSI},
		{requested: "Bollinger-Bands", id: IDBollinger},
		{requested: "moving average", id: IDMACrossover},
		{requested: "stoch", id: IDStochastic},
		{requested: "combined", id: IDComposite},
		{requested: "does-not-exist", id: DefaultID, fellBack: true},
		{requested: "ml", id: DefaultID, fellBack: true}, // no predictor injected
	}

	for _, tt := range tests {
		t.Run(tt.requested, func(t *testing.T) {
			resolution := registry.Resolve(tt.requested, "ETHUSD", Options{})
			require.NotNil(t, resolution.Strategy)
			require.Equal(t, tt.id, resolution.ID)
			require.Equal(t, tt.id, resolution.Strategy.Name())
			require.Equal(t, tt.fellBack, resolution.FellBack)
			if tt.fellBack {
				require.NotEmpty(t, resolution.Reason)
			}
		})
	}
}

func TestRegistryExtractsVariantOptions(t *testing.T) {
	registry := NewRegistry()

	resolution := registry.Resolve("rsi", "ETHUSD", Options{
		"indicator_settings": map[string]any{"period": 9, "oversold": 30},
		"overbought":         "75",
		"unrelated":          true,
	})

	rsi, ok := resolution.Strategy.(*RSI)
	require.True(t, ok)
	require.Equal(t, 9, rsi.period)
	require.Equal(t, 30.0, rsi.oversold)
	require.Equal(t, 75.0, rsi.overbought)
}

func TestRegistryCompositeMembers(t *testing.T) {
	registry := NewRegistry()

	resolution := registry.Resolve("composite", "ETHUSD", Options{
		"members": []string{"rsi", "bb", "vwap"},
		"rsi":     map[string]any{"period": 4},
	})
	require.False(t, resolution.FellBack)

	composite := resolution.Strategy.(*Composite)
	require.Len(t, composite.members, 3)
	require.Equal(t, 4, composite.members[0].(*RSI).period)

	resolution = registry.Resolve("composite", "ETHUSD", Options{"members": []string{"rsi", "nope"}})
	require.True(t, resolution.FellBack)
}

func TestRegistryEntriesAndAliases(t *testing.T) {
	registry := NewRegistry()

	ids := make([]string, 0)
	for _, entry := range registry.Entries() {
		ids = append(ids, entry.ID)
	}
	require.Equal(t, []string{IDBollinger, IDBreakout, IDComposite, IDMACrossover, IDMACD, IDML, IDRSI, IDStochastic, IDVWAP}, ids)

	require.Equal(t, []string{"bb", "bollinger_bands", "bollinger_tick"}, registry.Aliases(IDBollinger))
	require.Empty(t, registry.Aliases("unknown"))
}
