package store

import (
	"testing"

	"github.com/jitgraph/jitgraph/internal/alloc"
	"github.com/jitgraph/jitgraph/internal/jitstats"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return New(alloc.New(jitstats.New()), jitstats.New())
}

func f32Lit(f float64) [8]byte {
	var lit [8]byte
	b := floatLiteral(f)
	copy(lit[:], b[:])
	return lit
}

// Scenario 2 from spec.md §8: CSE collapses equivalent nodes.
func TestCSECollapsesEquivalentNodes(t *testing.T) {
	s := newTestStore()

	x := s.NewLiteral(Float32, 4, f32Lit(1))
	y, err := s.NewOp("mul", Float32, 4, x, x)
	require.NoError(t, err)
	z, err := s.NewOp("mul", Float32, 4, x, x)
	require.NoError(t, err)

	require.Equal(t, y, z)
	require.Equal(t, uint32(2), s.Get(y).RefExt)
}

// Scenario 3: refcount cascade empties the store once all external handles
// are released.
func TestRefcountCascade(t *testing.T) {
	s := newTestStore()

	v1 := s.NewLiteral(Int32, 1, intLitBytes(1))
	v2, err := s.NewOp("id", Int32, 1, v1)
	require.NoError(t, err)
	s.DecRefExt(v1) // v1's only remaining reference is v2's dependency slot
	v3, err := s.NewOp("id", Int32, 1, v2)
	require.NoError(t, err)
	s.DecRefExt(v2)
	v4, err := s.NewOp("id", Int32, 1, v3)
	require.NoError(t, err)
	s.DecRefExt(v3)

	require.Equal(t, 4, s.Len())

	s.DecRefExt(v4)
	// v4 had RefExt=1, RefInt=0; releasing it cascades through v3 -> v2 -> v1
	// since each is referenced only by its sole dependent.
	require.Equal(t, 0, s.Len())
}

func intLitBytes(i int64) [8]byte {
	return intLiteral(i)
}

// Law: CSE idempotence with refcount increment.
func TestNewOpIdempotent(t *testing.T) {
	s := newTestStore()
	a := s.NewLiteral(Int32, 1, intLitBytes(2))
	b := s.NewLiteral(Int32, 1, intLitBytes(3))

	id1, err := s.NewOp("add", Int32, 1, a, b)
	require.NoError(t, err)
	id2, err := s.NewOp("add", Int32, 1, a, b)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

// Law: size broadcast — op(a: size 1, b: size N) yields size N; mismatched
// non-broadcastable sizes raise InvalidArgument.
func TestSizeBroadcastRule(t *testing.T) {
	s := newTestStore()
	a := s.NewLiteral(Float32, 1, f32Lit(3))
	// b stands for a size-8 input with per-element values, which a literal
	// (one repeated payload) cannot hold; simulate it by inserting a
	// placeholder-shaped node directly.
	bPlaceholder := &Variable{Type: Float32, Size: 8, Backend: BackendHost, Device: -1, RefExt: 1, Placeholder: true}
	bid := s.insert(bPlaceholder)

	c, err := s.NewOp("add", Float32, 8, a, bid)
	require.NoError(t, err)
	require.Equal(t, uint32(8), s.Get(c).Size)

	mPlaceholder := &Variable{Type: Float32, Size: 5, Backend: BackendHost, Device: -1, RefExt: 1, Placeholder: true}
	mid := s.insert(mPlaceholder)
	nPlaceholder := &Variable{Type: Float32, Size: 7, Backend: BackendHost, Device: -1, RefExt: 1, Placeholder: true}
	nid := s.insert(nPlaceholder)

	_, err = s.NewOp("add", Float32, 7, mid, nid)
	require.Error(t, err)
}

// Law: literal-fold round trip.
func TestLiteralFoldRoundTrip(t *testing.T) {
	s := newTestStore()
	a := s.NewLiteral(Int32, 1, intLitBytes(4))
	b := s.NewLiteral(Int32, 1, intLitBytes(5))

	sum, err := s.NewOp("add", Int32, 1, a, b)
	require.NoError(t, err)

	folded := s.Get(sum)
	require.True(t, folded.IsLiteral)
	require.Equal(t, int64(9), litInt(folded))
}
