package configuration

import (
	"errors"

	"github.com/hupe1980/cthyb/internal/timept"
)

// ErrConflict is returned when an operator of the same flavor already sits
// at the requested time.
var ErrConflict = errors.New("operator of the same flavor already placed at this time")

// Op is a fundamental operator placed in the configuration.
type Op struct {
	Dagger bool
	Block  int
	Inner  int
	// Linear is the global index of the fundamental operator.
	Linear int
}

// SameFlavor reports whether o and p are the same fundamental operator.
func (o Op) SameFlavor(p Op) bool {
	return o.Dagger == p.Dagger && o.Block == p.Block && o.Inner == p.Inner
}

// Connector reports the subspace reached when the fundamental operator
// (dagger, linear) acts on subspace sub, or -1.
type Connector interface {
	Connection(dagger bool, linear, sub int) int
}

// Handle addresses an operator for as long as it stays in the store.
type Handle int32

// Entry is an operator with its placement.
type Entry struct {
	Handle Handle
	Time   timept.Time
	Seq    uint64
	Op     Op
}

const nilNode int32 = -1

type node struct {
	t     timept.Time
	seq   uint64
	prio  uint64
	op    Op
	left  int32
	right int32
	size  int32
	live  bool
	dirty bool
	m     []int32
}

// Config is the ordered, cyclically closed operator sequence.
type Config struct {
	conn  Connector
	nSub  int
	nodes []node
	free  []int32
	root  int32
	seq   uint64
	stack []int32
}

// New returns an empty configuration over nSubspaces subspaces.
func New(nSubspaces int, conn Connector) *Config {
	return &Config{
		conn: conn,
		nSub: nSubspaces,
		root: nilNode,
	}
}

// Len returns the number of operators.
func (c *Config) Len() int {
	return int(c.sizeOf(c.root))
}

// Seq returns the next sequence number that Insert will assign.
func (c *Config) Seq() uint64 { return c.seq }

// RewindSeq resets the sequence counter after the operators inserted since
// the counter had value seq were removed again.
func (c *Config) RewindSeq(seq uint64) { c.seq = seq }

// Insert places op at time t.
func (c *Config) Insert(t timept.Time, op Op) (Handle, error) {
	if c.occupied(c.root, t, op) {
		return -1, ErrConflict
	}
	x := c.alloc()
	nd := &c.nodes[x]
	nd.t = t
	nd.seq = c.seq
	nd.prio = mix(c.seq)
	nd.op = op
	c.seq++
	c.root = c.insert(c.root, x)
	return Handle(x), nil
}

// Restore puts back an entry removed earlier, keeping its sequence number.
// The time may differ from the original one.
func (c *Config) Restore(e Entry) (Handle, error) {
	if c.occupied(c.root, e.Time, e.Op) {
		return -1, ErrConflict
	}
	x := c.alloc()
	nd := &c.nodes[x]
	nd.t = e.Time
	nd.seq = e.Seq
	nd.prio = mix(e.Seq)
	nd.op = e.Op
	c.root = c.insert(c.root, x)
	return Handle(x), nil
}

// Find returns the handle of the operator placed at (t, seq), or -1.
func (c *Config) Find(t timept.Time, seq uint64) Handle {
	n := c.root
	for n != nilNode {
		nd := &c.nodes[n]
		switch {
		case t < nd.t || (t == nd.t && seq < nd.seq):
			n = nd.left
		case t == nd.t && seq == nd.seq:
			return Handle(n)
		default:
			n = nd.right
		}
	}
	return -1
}

// Remove takes the operator addressed by h out of the store.
func (c *Config) Remove(h Handle) Op {
	x := int32(h)
	op := c.nodes[x].op
	c.root = c.remove(c.root, x)
	c.release(x)
	return op
}

// Get returns the entry addressed by h.
func (c *Config) Get(h Handle) Entry {
	nd := &c.nodes[h]
	return Entry{Handle: h, Time: nd.t, Seq: nd.seq, Op: nd.op}
}

// At returns the k-th operator in time order (0-based).
func (c *Config) At(k int) Handle {
	n := c.root
	for n != nilNode {
		l := int(c.sizeOf(c.nodes[n].left))
		switch {
		case k < l:
			n = c.nodes[n].left
		case k == l:
			return Handle(n)
		default:
			k -= l + 1
			n = c.nodes[n].right
		}
	}
	return -1
}

// Rank returns the position of h in time order.
func (c *Config) Rank(h Handle) int {
	x := int32(h)
	rank := 0
	n := c.root
	for n != nilNode {
		if n == x {
			return rank + int(c.sizeOf(c.nodes[n].left))
		}
		if c.less(x, n) {
			n = c.nodes[n].left
		} else {
			rank += int(c.sizeOf(c.nodes[n].left)) + 1
			n = c.nodes[n].right
		}
	}
	return -1
}

// Flatten appends all entries in ascending time order to dst.
func (c *Config) Flatten(dst []Entry) []Entry {
	st := c.stack[:0]
	n := c.root
	for n != nilNode || len(st) > 0 {
		for n != nilNode {
			st = append(st, n)
			n = c.nodes[n].left
		}
		n = st[len(st)-1]
		st = st[:len(st)-1]
		nd := &c.nodes[n]
		dst = append(dst, Entry{Handle: Handle(n), Time: nd.t, Seq: nd.seq, Op: nd.op})
		n = nd.right
	}
	c.stack = st
	return dst
}

// Relabel replaces every operator by fn(op) keeping times and sequence
// numbers. It fails with ErrConflict, leaving the store unchanged, if two
// operators of the same flavor would end up at the same time.
func (c *Config) Relabel(fn func(Op) Op) error {
	entries := c.Flatten(nil)
	for i := 1; i < len(entries); i++ {
		if entries[i].Time != entries[i-1].Time {
			continue
		}
		for j := i - 1; j >= 0 && entries[j].Time == entries[i].Time; j-- {
			if fn(entries[j].Op).SameFlavor(fn(entries[i].Op)) {
				return ErrConflict
			}
		}
	}
	for _, e := range entries {
		nd := &c.nodes[e.Handle]
		nd.op = fn(nd.op)
		nd.dirty = true
	}
	return nil
}

// Map returns the subspace reached from sub after the full cycle, or -1.
func (c *Config) Map(sub int) int {
	if c.root == nilNode {
		return sub
	}
	c.ensure(c.root)
	return int(c.nodes[c.root].m[sub])
}

// Closes reports whether the chain starting in sub returns to sub.
func (c *Config) Closes(sub int) bool {
	return c.Map(sub) == sub
}

// Path returns the subspace reached from sub after applying, in time order,
// all operators with lo <= t < hi. hi may be timept.Ticks. If lo > hi the
// interval wraps through β.
func (c *Config) Path(sub int, lo, hi timept.Time) int {
	if sub < 0 {
		return -1
	}
	s := int32(sub)
	if lo > hi {
		s = c.pathRange(c.root, s, lo, timept.Time(timept.Ticks))
		return int(c.pathRange(c.root, s, 0, hi))
	}
	return int(c.pathRange(c.root, s, lo, hi))
}

func (c *Config) pathRange(n, s int32, lo, hi timept.Time) int32 {
	for n != nilNode && s >= 0 {
		nd := &c.nodes[n]
		if nd.t < lo {
			n = nd.right
			continue
		}
		if nd.t >= hi {
			n = nd.left
			continue
		}
		s = c.suffix(nd.left, s, lo)
		s = c.apply(nd.op, s)
		return c.prefix(nd.right, s, hi)
	}
	return s
}

// suffix applies the operators of subtree n with t >= lo.
func (c *Config) suffix(n, s int32, lo timept.Time) int32 {
	if n == nilNode || s < 0 {
		return s
	}
	nd := &c.nodes[n]
	if nd.t < lo {
		return c.suffix(nd.right, s, lo)
	}
	s = c.suffix(nd.left, s, lo)
	s = c.apply(nd.op, s)
	return c.full(nd.right, s)
}

// prefix applies the operators of subtree n with t < hi.
func (c *Config) prefix(n, s int32, hi timept.Time) int32 {
	if n == nilNode || s < 0 {
		return s
	}
	nd := &c.nodes[n]
	if nd.t >= hi {
		return c.prefix(nd.left, s, hi)
	}
	s = c.full(nd.left, s)
	s = c.apply(nd.op, s)
	return c.prefix(nd.right, s, hi)
}

func (c *Config) full(n, s int32) int32 {
	if n == nilNode || s < 0 {
		return s
	}
	c.ensure(n)
	return c.nodes[n].m[s]
}

func (c *Config) apply(op Op, s int32) int32 {
	if s < 0 {
		return s
	}
	return int32(c.conn.Connection(op.Dagger, op.Linear, int(s)))
}

func (c *Config) ensure(n int32) {
	nd := &c.nodes[n]
	if !nd.dirty {
		return
	}
	if nd.left != nilNode {
		c.ensure(nd.left)
	}
	if nd.right != nilNode {
		c.ensure(nd.right)
	}
	for s := range c.nSub {
		nd.m[s] = c.full(nd.right, c.apply(nd.op, c.full(nd.left, int32(s))))
	}
	nd.dirty = false
}

func (c *Config) occupied(n int32, t timept.Time, op Op) bool {
	for n != nilNode {
		nd := &c.nodes[n]
		switch {
		case t < nd.t:
			n = nd.left
		case t > nd.t:
			n = nd.right
		default:
			if nd.op.SameFlavor(op) {
				return true
			}
			return c.occupied(nd.left, t, op) || c.occupied(nd.right, t, op)
		}
	}
	return false
}

func (c *Config) alloc() int32 {
	var x int32
	if k := len(c.free); k > 0 {
		x = c.free[k-1]
		c.free = c.free[:k-1]
	} else {
		c.nodes = append(c.nodes, node{m: make([]int32, c.nSub)})
		x = int32(len(c.nodes) - 1)
	}
	nd := &c.nodes[x]
	nd.left, nd.right = nilNode, nilNode
	nd.size = 1
	nd.live = true
	nd.dirty = true
	return x
}

func (c *Config) release(x int32) {
	nd := &c.nodes[x]
	nd.live = false
	nd.op = Op{}
	nd.left, nd.right = nilNode, nilNode
	c.free = append(c.free, x)
}

func (c *Config) less(a, b int32) bool {
	na, nb := &c.nodes[a], &c.nodes[b]
	if na.t != nb.t {
		return na.t < nb.t
	}
	return na.seq < nb.seq
}

func (c *Config) sizeOf(n int32) int32 {
	if n == nilNode {
		return 0
	}
	return c.nodes[n].size
}

func (c *Config) update(n int32) {
	nd := &c.nodes[n]
	nd.size = 1 + c.sizeOf(nd.left) + c.sizeOf(nd.right)
	nd.dirty = true
}

func (c *Config) insert(n, x int32) int32 {
	if n == nilNode {
		return x
	}
	if c.less(x, n) {
		c.nodes[n].left = c.insert(c.nodes[n].left, x)
		if c.nodes[c.nodes[n].left].prio > c.nodes[n].prio {
			n = c.rotateRight(n)
		}
	} else {
		c.nodes[n].right = c.insert(c.nodes[n].right, x)
		if c.nodes[c.nodes[n].right].prio > c.nodes[n].prio {
			n = c.rotateLeft(n)
		}
	}
	c.update(n)
	return n
}

func (c *Config) remove(n, x int32) int32 {
	if n == nilNode {
		panic("configuration: invalid handle")
	}
	if n == x {
		return c.merge(c.nodes[n].left, c.nodes[n].right)
	}
	if c.less(x, n) {
		c.nodes[n].left = c.remove(c.nodes[n].left, x)
	} else {
		c.nodes[n].right = c.remove(c.nodes[n].right, x)
	}
	c.update(n)
	return n
}

func (c *Config) merge(a, b int32) int32 {
	if a == nilNode {
		return b
	}
	if b == nilNode {
		return a
	}
	if c.nodes[a].prio > c.nodes[b].prio {
		c.nodes[a].right = c.merge(c.nodes[a].right, b)
		c.update(a)
		return a
	}
	c.nodes[b].left = c.merge(a, c.nodes[b].left)
	c.update(b)
	return b
}

func (c *Config) rotateRight(n int32) int32 {
	l := c.nodes[n].left
	c.nodes[n].left = c.nodes[l].right
	c.nodes[l].right = n
	c.update(n)
	c.update(l)
	return l
}

func (c *Config) rotateLeft(n int32) int32 {
	r := c.nodes[n].right
	c.nodes[n].right = c.nodes[r].left
	c.nodes[r].left = n
	c.update(n)
	c.update(r)
	return r
}

// mix is splitmix64.
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
