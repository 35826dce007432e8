package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/litterally/internal/catalog"
	"github.com/mmeshcher/litterally/internal/model"
	"github.com/mmeshcher/litterally/internal/storage"
)

type recordingWriter struct {
	keys   []string
	values []string
}

func (w *recordingWriter) Set(key string, value []byte) {
	w.keys = append(w.keys, key)
	w.values = append(w.values, string(value))
}

type brokenKV struct{}

func (brokenKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("unavailable")
}

func (brokenKV) Set(ctx context.Context, key string, value []byte) error {
	return errors.New("unavailable")
}

func newLedger(t *testing.T, kv storage.KV, w Writer) *Ledger {
	t.Helper()

	c, err := catalog.Default()
	require.NoError(t, err)

	return New(model.UserProfile{ID: "p1", Name: "Guest"}, c.Badges(), kv, w, nil)
}

func TestAddPointsIsIdempotentPerResult(t *testing.T) {
	w := &recordingWriter{}
	l := newLedger(t, storage.NewMemory(), w)

	p, added, err := l.AddPoints("r1", 20)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 20, p.Points)

	p, added, err = l.AddPoints("r1", 20)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 20, p.Points)

	p, _, err = l.AddPoints("r2", 5)
	require.NoError(t, err)
	assert.Equal(t, 25, p.Points)

	assert.Equal(t, []string{"20", "25"}, w.values)
	assert.Equal(t, storage.PointsKey("p1"), w.keys[0])
}

func TestAddPointsRejectsNegative(t *testing.T) {
	l := newLedger(t, nil, nil)

	_, _, err := l.AddPoints("r1", -1)
	assert.ErrorIs(t, err, ErrNegativePoints)
	assert.False(t, l.Credited("r1"))
}

func TestCreditUpdatesCountersOnce(t *testing.T) {
	l := newLedger(t, nil, nil)

	p, added, err := l.Credit("r1", 20)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 20, p.Points)
	assert.Equal(t, 1, p.Scans)
	assert.Equal(t, 1, p.CorrectSorts)

	p, added, err = l.Credit("r1", 20)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 20, p.Points)
	assert.Equal(t, 1, p.Scans)
}

func TestCreditAfterAddPointsDoesNotDoubleCount(t *testing.T) {
	l := newLedger(t, nil, nil)

	_, _, err := l.AddPoints("r1", 10)
	require.NoError(t, err)

	p, added, err := l.Credit("r1", 10)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 10, p.Points)
}

func TestCounters(t *testing.T) {
	l := newLedger(t, nil, nil)

	assert.Equal(t, 1, l.IncrementScanCount())
	assert.Equal(t, 2, l.IncrementScanCount())
	assert.Equal(t, 1, l.IncrementCorrectSorts())

	p := l.Profile()
	assert.Equal(t, 2, p.Scans)
	assert.Equal(t, 1, p.CorrectSorts)
	assert.Equal(t, 0.5, p.Impact.CO2SavedKg)
}

func TestBadgesDerivedFromPoints(t *testing.T) {
	l := newLedger(t, nil, nil)

	unlocked := func(p model.UserProfile) map[string]bool {
		res := make(map[string]bool)
		for _, b := range p.Badges {
			res[b.ID] = b.Unlocked
		}
		return res
	}

	p := l.Profile()
	for _, b := range p.Badges {
		assert.False(t, b.Unlocked, "badge %s must be locked at 0 points", b.Name)
	}

	prev := unlocked(p)
	for i, n := range []int{5, 20, 25, 49, 1, 100, 300} {
		p, _, err := l.AddPoints(string(rune('a'+i)), n)
		require.NoError(t, err)

		cur := unlocked(p)
		for id, was := range prev {
			if was {
				assert.True(t, cur[id], "badge %s relocked at %d points", id, p.Points)
			}
		}
		for _, b := range p.Badges {
			assert.Equal(t, p.Points >= b.Threshold, b.Unlocked, "badge %s at %d points", b.Name, p.Points)
		}
		prev = cur
	}
}

func TestResetClearsPoints(t *testing.T) {
	w := &recordingWriter{}
	l := newLedger(t, nil, w)

	_, _, _ = l.AddPoints("r1", 50)
	p := l.Reset()

	assert.Equal(t, 0, p.Points)
	for _, b := range p.Badges {
		assert.False(t, b.Unlocked)
	}
	assert.Equal(t, "0", w.values[len(w.values)-1])

	_, added, _ := l.AddPoints("r1", 50)
	assert.False(t, added)
}

func TestLoadRestoresPoints(t *testing.T) {
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(context.Background(), storage.PointsKey("p1"), []byte("75")))

	l := newLedger(t, kv, nil)
	require.NoError(t, l.Load(context.Background()))

	assert.Equal(t, 75, l.Profile().Points)
}

func TestLoadIgnoresCorruptValue(t *testing.T) {
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(context.Background(), storage.PointsKey("p1"), []byte("lots")))

	l := newLedger(t, kv, nil)
	require.NoError(t, l.Load(context.Background()))

	assert.Equal(t, 0, l.Profile().Points)
}

func TestLoadReportsStorageFailure(t *testing.T) {
	l := newLedger(t, brokenKV{}, nil)

	assert.Error(t, l.Load(context.Background()))
}

func TestEstimateImpact(t *testing.T) {
	impact := EstimateImpact(22)

	assert.Equal(t, 11.0, impact.CO2SavedKg)
	assert.Equal(t, 220.0, impact.WaterSavedLiters)
	assert.Equal(t, 5.5, impact.EnergySavedKWh)
	assert.Equal(t, 4.4, impact.LandfillReducedKg)
}

func TestUpdateIdentityKeepsCounters(t *testing.T) {
	l := newLedger(t, nil, nil)
	_, _, _ = l.Credit("r1", 5)

	p := l.UpdateIdentity("John ACMHack", "hack@uclaacm.com")

	assert.Equal(t, "John ACMHack", p.Name)
	assert.Equal(t, "hack@uclaacm.com", p.Email)
	assert.Equal(t, 5, p.Points)
	assert.Equal(t, 1, p.Scans)
}
