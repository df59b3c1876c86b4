package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "data", "settings.json"), nil)
}

func TestLoadMissingWritesDefaults(t *testing.T) {
	s := newTestStore(t)
	got := s.Load()
	assert.Equal(t, Default(), got)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	var onDisk Settings
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, Default(), onDisk)
}

func TestLoadCorruptRestoresDefaults(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("not json"), 0o644))

	assert.Equal(t, Default(), s.Load())
	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"lot_size": 65`)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{
		"nifty": {"strike_ce": 25800},
		"common": {"quantity_lots": 3}
	}`), 0o644))

	got := s.Load()
	assert.Equal(t, Strike("25800"), got.Nifty.StrikeCE)
	assert.Equal(t, "17FEB26", got.Nifty.Expiry)
	assert.Equal(t, 65, got.Nifty.LotSize)
	assert.Equal(t, 3, got.Common.QuantityLots)
	assert.Equal(t, "MIS", got.Common.Product)
	assert.Equal(t, Default().BankNifty, got.BankNifty)
}

func TestSymbolsAndCards(t *testing.T) {
	sym := Default().Symbols()
	assert.Equal(t, "NIFTY17FEB2625700CE", sym.NiftyCE)
	assert.Equal(t, "NIFTY17FEB2625600PE", sym.NiftyPE)
	assert.Equal(t, "BANKNIFTY24FEB2660500CE", sym.BankNiftyCE)
	assert.Equal(t, "BANKNIFTY24FEB2660600PE", sym.BankNiftyPE)

	cards := Default().Cards()
	require.Len(t, cards, 4)
	assert.Equal(t, "BNIFTY PE", cards[3].Label)
	assert.Equal(t, 30, cards[3].LotSize)
	assert.Equal(t, 2, cards[3].QuantityLots)
}

func TestTargetFor(t *testing.T) {
	s := Default()
	target, err := s.TargetFor("NIFTY17FEB2625700CE", 1)
	require.NoError(t, err)
	assert.Equal(t, 130, target)

	target, err = s.TargetFor("BANKNIFTY24FEB2660600PE", -1)
	require.NoError(t, err)
	assert.Equal(t, -60, target)

	_, err = s.TargetFor("UNKNOWN", 1)
	assert.True(t, IsInvalid(err))
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]int{"LONG": 1, " long ": 1, "BUY": 1, "SHORT": -1, "sell": -1, "FLAT": 0, "exit": 0} {
		got, err := ParseDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDirection("UP")
	assert.True(t, IsInvalid(err))
}

func TestSaveValidatesAndNormalizes(t *testing.T) {
	s := newTestStore(t)
	var notified []Settings
	s.OnChange(func(cur Settings) { notified = append(notified, cur) })

	next := Default()
	next.Nifty.Expiry = " 24feb26 "
	next.Common.Product = "nrml"
	saved, err := s.Save(next)
	require.NoError(t, err)
	assert.Equal(t, "24FEB26", saved.Nifty.Expiry)
	assert.Equal(t, "NRML", s.Load().Common.Product)
	assert.Len(t, notified, 1)

	bad := Default()
	bad.Nifty.LotSize = 0
	_, err = s.Save(bad)
	assert.True(t, IsInvalid(err))

	bad = Default()
	bad.BankNifty.StrikePE = "abc"
	_, err = s.Save(bad)
	assert.True(t, IsInvalid(err))

	bad = Default()
	bad.UI.CardsLayout = "grid"
	_, err = s.Save(bad)
	assert.True(t, IsInvalid(err))
	assert.Len(t, notified, 1)
}

func TestUpdateStrike(t *testing.T) {
	s := newTestStore(t)
	up, err := s.UpdateStrike("nifty", "ce", 50)
	require.NoError(t, err)
	assert.Equal(t, StrikeUpdate{
		OldStrike: "25700",
		NewStrike: "25750",
		OldSymbol: "NIFTY17FEB2625700CE",
		NewSymbol: "NIFTY17FEB2625750CE",
	}, up)
	assert.Equal(t, Strike("25750"), s.Load().Nifty.StrikeCE)

	up, err = s.UpdateStrike("banknifty", "pe", -100)
	require.NoError(t, err)
	assert.Equal(t, "BANKNIFTY24FEB2660500PE", up.NewSymbol)

	// option_type 缺省为 ce
	up, err = s.UpdateStrike("banknifty", "", 100)
	require.NoError(t, err)
	assert.Equal(t, "60600", up.NewStrike)

	_, err = s.UpdateStrike("sensex", "ce", 100)
	assert.True(t, IsInvalid(err))
	_, err = s.UpdateStrike("nifty", "fut", 100)
	assert.True(t, IsInvalid(err))
	_, err = s.UpdateStrike("nifty", "ce", -100000)
	assert.True(t, IsInvalid(err))
}
