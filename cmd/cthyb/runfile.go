package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/cthyb"
	"github.com/hupe1980/cthyb/gf"
	"github.com/hupe1980/cthyb/operator"
)

// runFile is the YAML description of one solve.
type runFile struct {
	cthyb.ConstrParams `yaml:",inline"`

	HLoc []operator.TermSpec `yaml:"h_loc"`
	// Bath maps a block name to its discrete bath levels.
	Bath map[string][]gf.BathLevel `yaml:"bath"`

	QuantumNumbers    [][]operator.TermSpec          `yaml:"quantum_numbers"`
	StaticObservables map[string][]operator.TermSpec `yaml:"static_observables"`
	Moments           map[string][]operator.TermSpec `yaml:"moments"`
	Correlators       []correlatorSpec               `yaml:"correlators"`
	Solve             cthyb.SolveParams              `yaml:"solve"`
	Chains            int                            `yaml:"chains"`
}

type correlatorSpec struct {
	Name   string              `yaml:"name"`
	A      []operator.TermSpec `yaml:"a"`
	B      []operator.TermSpec `yaml:"b"`
	NOmega int                 `yaml:"n_omega"`
}

func loadRunFile(path string) (*runFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseRunFile(raw)
}

func parseRunFile(raw []byte) (*runFile, error) {
	rf := &runFile{
		ConstrParams: cthyb.DefaultConstrParams(0, nil),
		Solve:        cthyb.DefaultSolveParams(operator.Expr{}),
		Chains:       1,
	}
	if err := yaml.Unmarshal(raw, rf); err != nil {
		return nil, fmt.Errorf("parse run file: %w", err)
	}
	return rf, nil
}

// params resolves the operator expressions of the run file.
func (rf *runFile) params() (cthyb.SolveParams, error) {
	p := rf.Solve
	var err error
	if p.HLoc, err = operator.Parse(rf.HLoc); err != nil {
		return p, fmt.Errorf("h_loc: %w", err)
	}
	p.QuantumNumbers = p.QuantumNumbers[:0]
	for i, qn := range rf.QuantumNumbers {
		e, err := operator.Parse(qn)
		if err != nil {
			return p, fmt.Errorf("quantum number %d: %w", i, err)
		}
		p.QuantumNumbers = append(p.QuantumNumbers, e)
	}
	if p.StaticObservables, err = parseNamed(rf.StaticObservables); err != nil {
		return p, fmt.Errorf("static observable %w", err)
	}
	if p.Moments, err = parseNamed(rf.Moments); err != nil {
		return p, fmt.Errorf("moments %w", err)
	}
	p.Correlators = nil
	for _, c := range rf.Correlators {
		a, err := operator.Parse(c.A)
		if err != nil {
			return p, fmt.Errorf("correlator %q: a: %w", c.Name, err)
		}
		b, err := operator.Parse(c.B)
		if err != nil {
			return p, fmt.Errorf("correlator %q: b: %w", c.Name, err)
		}
		p.Correlators = append(p.Correlators, cthyb.Correlator{Name: c.Name, A: a, B: b, NOmega: c.NOmega})
	}
	return p, nil
}

func parseNamed(m map[string][]operator.TermSpec) (map[string]operator.Expr, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]operator.Expr, len(m))
	for name, terms := range m {
		e, err := operator.Parse(terms)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", name, err)
		}
		out[name] = e
	}
	return out, nil
}

// bath orders the bath levels like the block structure.
func (rf *runFile) bath() ([][]gf.BathLevel, error) {
	out := make([][]gf.BathLevel, len(rf.GFStruct))
	for b, blk := range rf.GFStruct {
		levels, ok := rf.Bath[blk.Name]
		if !ok {
			return nil, fmt.Errorf("%w: no bath for block %q", cthyb.ErrInvalidBlockStructure, blk.Name)
		}
		out[b] = levels
	}
	return out, nil
}
