package repository

import (
	"math/rand"

	"github.com/okian/flatrank/internal/domain/model"
)

// Treap-ordered index of the comparable members of one band.
//
// Ordering: rating DESC, then id ASC. "less" means ranks earlier, so an
// in-order traversal yields the band ranking from best to worst.

type node struct {
	id     model.ListingID
	rating float64
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func less(aRating float64, aID model.ListingID, bRating float64, bID model.ListingID) bool {
	if aRating != bRating {
		return aRating > bRating
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id model.ListingID, rating float64, prio uint64) *node {
	if n == nil {
		return &node{id: id, rating: rating, prio: prio, size: 1}
	}
	if less(rating, id, n.rating, n.id) {
		n.left = insert(n.left, id, rating, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, rating, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id model.ListingID, rating float64) *node {
	if n == nil {
		return nil
	}
	switch {
	case id == n.id && rating == n.rating:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, rating)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, rating)
		}
	case less(rating, id, n.rating, n.id):
		n.left = deleteNode(n.left, id, rating)
	default:
		n.right = deleteNode(n.right, id, rating)
	}
	fix(n)
	return n
}

func collect(n *node, out *[]model.ListingID) {
	if n == nil {
		return
	}
	collect(n.left, out)
	*out = append(*out, n.id)
	collect(n.right, out)
}

// bandIndex tracks membership of every band. Callers hold the store lock.
type bandIndex struct {
	rng   *rand.Rand
	roots map[string]*node
	// entries remembers where each id is indexed so it can be removed.
	entries map[model.ListingID]indexEntry
}

type indexEntry struct {
	band   string
	rating float64
}

func newBandIndex(rng *rand.Rand) *bandIndex {
	return &bandIndex{rng: rng, roots: make(map[string]*node), entries: make(map[model.ListingID]indexEntry)}
}

// sync places id according to its current state, removing any stale entry.
func (x *bandIndex) sync(rl model.RatedListing) {
	x.remove(rl.ID)
	if !rl.Comparable() {
		return
	}
	b := string(rl.Band)
	x.roots[b] = insert(x.roots[b], rl.ID, rl.Rating.Rating, x.rng.Uint64())
	x.entries[rl.ID] = indexEntry{band: b, rating: rl.Rating.Rating}
}

func (x *bandIndex) remove(id model.ListingID) {
	e, ok := x.entries[id]
	if !ok {
		return
	}
	root := deleteNode(x.roots[e.band], id, e.rating)
	if root == nil {
		delete(x.roots, e.band)
	} else {
		x.roots[e.band] = root
	}
	delete(x.entries, id)
}

// ranked returns the band members best first.
func (x *bandIndex) ranked(band string) []model.ListingID {
	root := x.roots[band]
	out := make([]model.ListingID, 0, nsize(root))
	collect(root, &out)
	return out
}

func (x *bandIndex) size(band string) int {
	return nsize(x.roots[band])
}
