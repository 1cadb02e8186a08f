package operator

// Block is one block of the Green's function structure.
type Block struct {
	Name    string   `yaml:"name" json:"name" validate:"required"`
	Indices []string `yaml:"indices" json:"indices" validate:"required,min=1,dive,required"`
}

// FundamentalSet assigns a linear index to every fundamental operator.
type FundamentalSet struct {
	indices []Index
	pos     map[Index]int
}

// NewFundamentalSet returns a set with the given operators in order.
func NewFundamentalSet(indices ...Index) *FundamentalSet {
	s := &FundamentalSet{pos: make(map[Index]int, len(indices))}
	for _, idx := range indices {
		if _, ok := s.pos[idx]; ok {
			continue
		}
		s.pos[idx] = len(s.indices)
		s.indices = append(s.indices, idx)
	}
	return s
}

// FromBlocks lists the operators of all blocks, block by block.
func FromBlocks(blocks []Block) *FundamentalSet {
	var indices []Index
	for _, b := range blocks {
		for _, inner := range b.Indices {
			indices = append(indices, Index{Block: b.Name, Inner: inner})
		}
	}
	return NewFundamentalSet(indices...)
}

// Len returns the number of fundamental operators.
func (s *FundamentalSet) Len() int { return len(s.indices) }

// Index returns the operator with linear index i.
func (s *FundamentalSet) Index(i int) Index { return s.indices[i] }

// Position returns the linear index of idx.
func (s *FundamentalSet) Position(idx Index) (int, bool) {
	p, ok := s.pos[idx]
	return p, ok
}
