package interval

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type minute int

func (m minute) Before(o minute) bool { return m < o }
func (m minute) Equal(o minute) bool  { return m == o }

func r(start, end minute) Range[minute] { return New(start, end) }

func TestIntersects(t *testing.T) {
	tests := []struct {
		name string
		a, b Range[minute]
		want bool
	}{
		{"overlap", r(0, 10), r(5, 15), true},
		{"contained", r(0, 10), r(2, 3), true},
		{"back to back", r(0, 30), r(30, 60), false},
		{"apart", r(0, 10), r(20, 30), false},
		{"identical", r(5, 10), r(5, 10), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Intersects(tt.a, tt.b))
			assert.Equal(t, tt.want, Intersects(tt.b, tt.a))
		})
	}
}

func TestMerge(t *testing.T) {
	t.Run("adjacent", func(t *testing.T) {
		got, err := Merge(r(540, 570), r(570, 600))
		require.NoError(t, err)
		assert.Equal(t, r(540, 600), got)
	})

	t.Run("overlapping", func(t *testing.T) {
		got, err := Merge(r(10, 50), r(0, 20))
		require.NoError(t, err)
		assert.Equal(t, r(0, 50), got)
	})

	t.Run("disjoint", func(t *testing.T) {
		_, err := Merge(r(0, 10), r(11, 20))
		assert.ErrorIs(t, err, ErrDisjoint)
	})
}

func TestMergeAll(t *testing.T) {
	in := []Range[minute]{r(780, 1020), r(540, 720), r(700, 780), r(1100, 1200), r(50, 50)}
	want := []Range[minute]{r(540, 1020), r(1100, 1200)}

	got := MergeAll(in)
	assert.Equal(t, want, got)
	assert.Equal(t, got, MergeAll(got), "merging merged ranges must be a no-op")

	reversed := make([]Range[minute], len(in))
	for i := range in {
		reversed[len(in)-1-i] = in[i]
	}
	assert.Equal(t, want, MergeAll(reversed))

	assert.Nil(t, MergeAll[minute](nil))
}

func TestSubtract(t *testing.T) {
	tests := []struct {
		name string
		a    Range[minute]
		busy []Range[minute]
		want []Range[minute]
	}{
		{"no busy", r(540, 1020), nil, []Range[minute]{r(540, 1020)}},
		{"middle", r(540, 1020), []Range[minute]{r(720, 780)}, []Range[minute]{r(540, 720), r(780, 1020)}},
		{"covers all", r(540, 600), []Range[minute]{r(500, 700)}, nil},
		{"head and tail", r(0, 100), []Range[minute]{r(-10, 10), r(90, 200)}, []Range[minute]{r(10, 90)}},
		{"outside", r(0, 100), []Range[minute]{r(-50, -10), r(100, 150)}, []Range[minute]{r(0, 100)}},
		{"many", r(0, 100), []Range[minute]{r(10, 20), r(30, 40), r(50, 60)}, []Range[minute]{r(0, 10), r(20, 30), r(40, 50), r(60, 100)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Subtract(tt.a, tt.busy))
		})
	}
}

func TestSubtractProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		a := r(minute(rng.Intn(500)), 0)
		a.End = a.Start + minute(1+rng.Intn(500))

		raw := make([]Range[minute], rng.Intn(8))
		for j := range raw {
			s := minute(rng.Intn(1000))
			raw[j] = r(s, s+minute(1+rng.Intn(100)))
		}
		busy := MergeAll(raw)

		free := Subtract(a, busy)
		for k, f := range free {
			assert.False(t, f.Empty())
			assert.True(t, a.Contains(f), "free range %v escapes %v", f, a)
			for _, b := range busy {
				assert.False(t, Intersects(f, b), "free range %v hits busy %v", f, b)
			}
			if k > 0 {
				assert.False(t, Intersects(free[k-1], f))
				assert.True(t, free[k-1].End.Before(f.Start) || free[k-1].End.Equal(f.Start))
			}
		}
	}
}

func TestTimeRanges(t *testing.T) {
	base := time.Date(2026, 1, 12, 14, 0, 0, 0, time.UTC)
	a := New(base, base.Add(8*time.Hour))
	busy := MergeAll([]Range[time.Time]{
		New(base.Add(3*time.Hour), base.Add(4*time.Hour)),
		New(base.Add(3*time.Hour+30*time.Minute), base.Add(4*time.Hour+30*time.Minute)),
	})
	require.Len(t, busy, 1)

	free := Subtract(a, busy)
	require.Len(t, free, 2)
	assert.True(t, free[0].End.Equal(base.Add(3*time.Hour)))
	assert.True(t, free[1].Start.Equal(base.Add(4*time.Hour+30*time.Minute)))
	assert.True(t, a.ContainsPoint(base))
	assert.False(t, a.ContainsPoint(a.End))
}
